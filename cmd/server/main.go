package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"storefront-commerce-api/internal/cache"
	"storefront-commerce-api/internal/client"
	"storefront-commerce-api/internal/config"
	"storefront-commerce-api/internal/handlers"
	"storefront-commerce-api/internal/middleware"
	"storefront-commerce-api/internal/services"
	"storefront-commerce-api/internal/telemetry"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg := config.LoadConfig()

	slog.Info("Starting storefront Commerce Layer API", "version", "1.0.0")

	ctx := context.Background()
	otelTelemetry := telemetry.InitMetrics(ctx, telemetry.MeterName, cfg.MetricsExporter)

	apiTelemetry := telemetry.NewStorefrontApiTelemetry()
	if err := apiTelemetry.InitializeTelemetry(nil); err != nil {
		slog.Error("Failed to initialize API telemetry", "error", err)
		return
	}

	// Upstream client and services
	clClient := client.NewClient(cfg.AuthURL, cfg.Endpoint, cfg.TokenRequestTimeout, cfg.CatalogRequestTimeout)
	clClient.SetObserver(apiTelemetry)

	tokenCache := cache.NewTokenCache(cache.DefaultSafetyMargin, nil)
	tokenProvider := services.NewTokenProvider(cfg, clClient, tokenCache, nil)
	tokenProvider.SetObserver(apiTelemetry)

	catalogService := services.NewCatalogService(cfg, tokenProvider, clClient, nil)
	statusService := services.NewStatusService(cfg, tokenProvider)
	slog.Info("Services initialized", "markets", cfg.MarketIDMap(), "default_market", cfg.DefaultMarket)

	// Initialize handlers
	productsHandler := handlers.NewProductsHandler(catalogService)
	healthHandler := handlers.NewHealthHandler(statusService)
	authHandler := handlers.NewAuthHandler(tokenProvider)

	telemetryMiddleware := telemetry.NewTelemetryMiddleware(apiTelemetry)
	router := handlers.NewRouter(productsHandler, healthHandler, authHandler, telemetryMiddleware.Middleware)

	// CORS sits outside the router so preflight requests never reach method matching
	handler := middleware.WithRequestID(middleware.WithLogging(middleware.CORS(cfg.CORSAllowedOrigins)(router)))

	slog.Debug("Available endpoints",
		"commerce_layer", []string{
			"GET /commerce-layer/products?market=&category=",
			"GET /commerce-layer/featured-products?market=",
			"GET /commerce-layer/products/{skuCode}?market=",
			"GET /commerce-layer/config",
			"GET /commerce-layer/health",
		},
		"auth", []string{"POST /auth/cl-access-token2"},
		"system", []string{"GET /health"})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: cfg.CatalogRequestTimeout,
	}

	go func() {
		slog.Info("Server ready to accept connections", "address", server.Addr, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	stats := tokenCache.GetStats()
	slog.Info("Token cache at shutdown",
		"total_entries", stats["total_entries"],
		"active_entries", stats["active_entries"],
		"expired_entries", stats["expired_entries"])

	otelTelemetry.Close()
	slog.Info("Telemetry shutdown completed")

	slog.Info("Server exited")
}
