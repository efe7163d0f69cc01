package services

import (
	"context"
	"log/slog"
	"strings"

	"storefront-commerce-api/internal/client"
	"storefront-commerce-api/internal/config"
	"storefront-commerce-api/internal/models"
)

// TokenFetcher requests uncached tokens for a market
type TokenFetcher interface {
	FetchToken(ctx context.Context, market models.Market) (*client.TokenResponse, error)
}

// StatusService reports public configuration and upstream health
type StatusService struct {
	cfg    *config.Config
	tokens TokenFetcher
}

// NewStatusService creates a status service
func NewStatusService(cfg *config.Config, tokens TokenFetcher) *StatusService {
	return &StatusService{
		cfg:    cfg,
		tokens: tokens,
	}
}

// GetConfig returns the client id, base URL and market id map the frontend needs
func (s *StatusService) GetConfig() (*models.CoreConfig, error) {
	if s.cfg.ClientID == "" {
		slog.Error("COMMERCE_LAYER_CLIENT_ID is not set")
		return nil, configurationError("Commerce Layer Client ID is not configured")
	}
	if s.cfg.Endpoint == "" {
		slog.Error("COMMERCE_LAYER_ENDPOINT is not set")
		return nil, configurationError("Commerce Layer base URL is not configured")
	}

	marketIDs := s.cfg.MarketIDMap()
	if len(marketIDs) == 0 {
		return nil, configurationError("market id map is empty")
	}

	return &models.CoreConfig{
		ClientID:    s.cfg.ClientID,
		BaseURL:     s.cfg.Endpoint,
		MarketIDMap: marketIDs,
	}, nil
}

// HealthCheck verifies that required settings exist and that a token can be
// obtained for the default market. On failure the returned report describes
// the problem and the error is a service_unavailable Error.
func (s *StatusService) HealthCheck(ctx context.Context) (*models.HealthResponse, error) {
	if missing := s.missingHealthKeys(); len(missing) > 0 {
		message := "Missing critical Commerce Layer configuration: " + strings.Join(missing, ", ")
		slog.Warn("Health check failed", "missing", missing)
		return unhealthy(message, nil)
	}

	if _, err := s.tokens.FetchToken(ctx, s.cfg.DefaultMarket); err != nil {
		slog.Warn("Health check token fetch failed", "market", s.cfg.DefaultMarket, "error", err)
		return unhealthy("Failed to connect or authenticate with Commerce Layer: "+err.Error(), err)
	}

	slog.Debug("Health check passed", "market", s.cfg.DefaultMarket)
	return &models.HealthResponse{
		Status:  models.HealthStatusHealthy,
		Message: "Commerce Layer configuration and connectivity appear OK.",
	}, nil
}

func (s *StatusService) missingHealthKeys() []string {
	missing := make([]string, 0)
	if s.cfg.ClientID == "" {
		missing = append(missing, "COMMERCE_LAYER_CLIENT_ID")
	}
	if s.cfg.ClientSecret == "" {
		missing = append(missing, "COMMERCE_LAYER_CLIENT_SECRET")
	}
	if s.cfg.Endpoint == "" {
		missing = append(missing, "COMMERCE_LAYER_ENDPOINT")
	}
	if mc, _ := s.cfg.Market(s.cfg.DefaultMarket); mc.SKUListID == "" {
		missing = append(missing, "COMMERCE_LAYER_"+string(s.cfg.DefaultMarket)+"_SKU_LIST_ID")
	}
	return missing
}

func unhealthy(message string, cause error) (*models.HealthResponse, error) {
	return &models.HealthResponse{
			Status:  models.HealthStatusUnhealthy,
			Message: message,
		}, &Error{
			Kind:    KindServiceUnavailable,
			Message: message,
			Err:     cause,
		}
}
