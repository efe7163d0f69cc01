package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"storefront-commerce-api/internal/models"
	"storefront-commerce-api/internal/utils"
)

const (
	DefaultAuthURL = "https://auth.commercelayer.io/oauth/token"

	// Upstream market ids used before they were externalized
	defaultUKMarketID = "vjzmJhvEDo"
	defaultEUMarketID = "qjANwhQrJg"
)

// MarketConfig holds the upstream identifiers of one storefront market
type MarketConfig struct {
	MarketID  string
	SKUListID string
}

// Config holds all configuration for the application
type Config struct {
	Port        string
	LogLevel    string
	LogFormat   string
	Environment string

	ClientID         string
	ClientSecret     string
	Endpoint         string
	AuthURL          string
	OrganizationSlug string
	Markets          map[models.Market]MarketConfig
	DefaultMarket    models.Market

	TokenRequestTimeout   time.Duration
	CatalogRequestTimeout time.Duration
	ShutdownTimeout       time.Duration

	CORSAllowedOrigins []string
	MetricsExporter    string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() *Config {
	// Existing environment variables take precedence over .env
	err := godotenv.Load()
	if err != nil {
		slog.Warn("Could not load .env file, continuing with system environment variables only", "error", err)
	} else {
		slog.Info("Successfully loaded .env file")
	}

	cfg := loadFromEnv()

	utils.SetupLogging(cfg.LogLevel, cfg.LogFormat)

	slog.Info("Configuration loaded",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"logLevel", cfg.LogLevel,
		"endpoint", cfg.Endpoint,
		"authURL", cfg.AuthURL,
		"organization", cfg.OrganizationSlug,
		"defaultMarket", cfg.DefaultMarket,
		"tokenRequestTimeout", cfg.TokenRequestTimeout.String(),
		"catalogRequestTimeout", cfg.CatalogRequestTimeout.String(),
		"corsAllowedOrigins", cfg.CORSAllowedOrigins,
		"metricsExporter", cfg.MetricsExporter)

	if missing := cfg.MissingRequired(); len(missing) > 0 {
		slog.Warn("Commerce Layer configuration incomplete", "missing", missing)
	}

	return cfg
}

func loadFromEnv() *Config {
	cfg := &Config{
		Port:             getEnvWithDefault("PORT", "8080"),
		LogLevel:         getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat:        getEnvWithDefault("LOG_FORMAT", "text"),
		Environment:      getEnvWithDefault("ENVIRONMENT", "development"),
		ClientID:         os.Getenv("COMMERCE_LAYER_CLIENT_ID"),
		ClientSecret:     os.Getenv("COMMERCE_LAYER_CLIENT_SECRET"),
		Endpoint:         strings.TrimRight(os.Getenv("COMMERCE_LAYER_ENDPOINT"), "/"),
		AuthURL:          getEnvWithDefault("COMMERCE_LAYER_AUTH_URL", DefaultAuthURL),
		OrganizationSlug: os.Getenv("COMMERCE_LAYER_ORGANIZATION_SLUG"),
		Markets: map[models.Market]MarketConfig{
			models.MarketUK: {
				MarketID:  getEnvWithDefault("COMMERCE_LAYER_UK_MARKET_ID", defaultUKMarketID),
				SKUListID: os.Getenv("COMMERCE_LAYER_UK_SKU_LIST_ID"),
			},
			models.MarketEU: {
				MarketID:  getEnvWithDefault("COMMERCE_LAYER_EU_MARKET_ID", defaultEUMarketID),
				SKUListID: os.Getenv("COMMERCE_LAYER_EU_SKU_LIST_ID"),
			},
		},
		TokenRequestTimeout:   getDurationWithDefault("TOKEN_REQUEST_TIMEOUT", 10*time.Second),
		CatalogRequestTimeout: getDurationWithDefault("CATALOG_REQUEST_TIMEOUT", 15*time.Second),
		ShutdownTimeout:       getDurationWithDefault("SHUTDOWN_TIMEOUT", 30*time.Second),
		CORSAllowedOrigins:    splitList(getEnvWithDefault("CORS_ALLOWED_ORIGINS", "*")),
		MetricsExporter:       os.Getenv("METRICS_EXPORTER"),
	}

	defaultMarket, err := models.ParseMarket(getEnvWithDefault("DEFAULT_MARKET", string(models.MarketUK)))
	if err != nil {
		slog.Warn("Invalid default market, using UK", "error", err)
		defaultMarket = models.MarketUK
	}
	cfg.DefaultMarket = defaultMarket

	return cfg
}

// getEnvWithDefault gets an environment variable with a default fallback
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		slog.Warn("Invalid duration, using default", "key", key, "provided", value, "default", defaultValue.String())
		return defaultValue
	}
	return parsed
}

func splitList(value string) []string {
	items := make([]string, 0)
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Market returns the identifiers configured for market
func (c *Config) Market(market models.Market) (MarketConfig, bool) {
	mc, ok := c.Markets[market]
	return mc, ok
}

// MarketIDMap returns market name to upstream market id for every configured market
func (c *Config) MarketIDMap() map[string]string {
	ids := make(map[string]string, len(c.Markets))
	for market, mc := range c.Markets {
		if mc.MarketID != "" {
			ids[string(market)] = mc.MarketID
		}
	}
	return ids
}

// MissingRequired lists the required environment keys that are unset
func (c *Config) MissingRequired() []string {
	missing := make([]string, 0)
	if c.ClientID == "" {
		missing = append(missing, "COMMERCE_LAYER_CLIENT_ID")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "COMMERCE_LAYER_CLIENT_SECRET")
	}
	if c.Endpoint == "" {
		missing = append(missing, "COMMERCE_LAYER_ENDPOINT")
	}
	for _, market := range models.SupportedMarkets {
		mc := c.Markets[market]
		if mc.SKUListID == "" {
			missing = append(missing, "COMMERCE_LAYER_"+string(market)+"_SKU_LIST_ID")
		}
		if mc.MarketID == "" {
			missing = append(missing, "COMMERCE_LAYER_"+string(market)+"_MARKET_ID")
		}
	}
	return missing
}
