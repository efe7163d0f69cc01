package services

import (
	"context"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"storefront-commerce-api/internal/cache"
	"storefront-commerce-api/internal/client"
	"storefront-commerce-api/internal/config"
	"storefront-commerce-api/internal/models"
)

// TokenRequester performs OAuth client-credentials grants and token introspection
type TokenRequester interface {
	RequestToken(ctx context.Context, req client.TokenRequest) (*client.TokenResponse, error)
	IntrospectToken(ctx context.Context, accessToken string) (*client.IntrospectionResponse, error)
}

// TokenCacheObserver is told about every cache lookup
type TokenCacheObserver interface {
	ObserveTokenCache(ctx context.Context, market string, hit bool)
}

// TokenProvider hands out market-scoped access tokens, caching one per market.
// Concurrent misses for the same market each refresh; the last write wins.
type TokenProvider struct {
	cfg       *config.Config
	requester TokenRequester
	cache     *cache.TokenCache
	now       func() time.Time
	observer  TokenCacheObserver
}

// NewTokenProvider creates a token provider. A nil clock uses time.Now.
func NewTokenProvider(cfg *config.Config, requester TokenRequester, tokenCache *cache.TokenCache, now func() time.Time) *TokenProvider {
	if now == nil {
		now = time.Now
	}
	return &TokenProvider{
		cfg:       cfg,
		requester: requester,
		cache:     tokenCache,
		now:       now,
	}
}

// SetObserver registers the cache lookup observer
func (p *TokenProvider) SetObserver(observer TokenCacheObserver) {
	p.observer = observer
}

// GetToken returns a valid access token for market, refreshing it when the
// cached one is missing or inside the safety margin
func (p *TokenProvider) GetToken(ctx context.Context, market models.Market) (string, error) {
	if err := p.checkCredentials(); err != nil {
		return "", err
	}

	mc, ok := p.cfg.Market(market)
	if !ok || mc.MarketID == "" {
		slog.Error("Market id not configured", "market", market)
		return "", configurationError("market id not configured for market %s", market)
	}

	if token, hit := p.cache.Get(market); hit {
		p.observeCache(ctx, market, true)
		return token.AccessToken, nil
	}
	p.observeCache(ctx, market, false)

	tokenResp, err := p.requestToken(ctx, mc.MarketID)
	if err != nil {
		slog.Error("Failed to obtain token", "market", market, "error", err)
		return "", err
	}

	p.cache.Set(market, cache.CachedToken{
		AccessToken: tokenResp.AccessToken,
		TokenType:   tokenResp.TokenType,
		ExpiresIn:   tokenResp.Lifetime(),
		Scope:       tokenResp.Scope,
		CreatedAt:   tokenResp.CreatedAt,
	})

	slog.Info("Obtained Commerce Layer token",
		"market", market,
		"scope", tokenResp.Scope,
		"expires_in", tokenResp.Lifetime())

	return tokenResp.AccessToken, nil
}

// InvalidateToken drops the cached token for market
func (p *TokenProvider) InvalidateToken(market models.Market) {
	p.cache.Delete(market)
}

// FetchToken requests a fresh token for market without touching the cache
func (p *TokenProvider) FetchToken(ctx context.Context, market models.Market) (*client.TokenResponse, error) {
	if err := p.checkCredentials(); err != nil {
		return nil, err
	}
	mc, ok := p.cfg.Market(market)
	if !ok || mc.MarketID == "" {
		return nil, configurationError("market id not configured for market %s", market)
	}
	return p.requestToken(ctx, mc.MarketID)
}

// IssueAccessToken requests an uncached token for an arbitrary upstream market
// id and decorates it with the endpoint and organization slug. Upstream
// failures are reported as bad_gateway whatever the upstream status was.
func (p *TokenProvider) IssueAccessToken(ctx context.Context, marketID string) (*models.AccessTokenResponse, error) {
	marketID = strings.TrimSpace(marketID)
	if marketID == "" {
		return nil, newError(KindInvalidRequest, "market_id is required")
	}

	if err := p.checkCredentials(); err != nil {
		return nil, err
	}
	if p.cfg.OrganizationSlug == "" {
		return nil, configurationError("organization slug not configured")
	}

	tokenResp, err := p.requestToken(ctx, marketID)
	if err != nil {
		slog.Error("Failed to issue access token", "market_id", marketID, "error", err)
		return nil, asBadGateway(err)
	}

	if tokenResp.TokenType == "" || tokenResp.Scope == "" || tokenResp.ExpiresIn == nil {
		slog.Error("Unexpected token response structure", "market_id", marketID)
		return nil, &Error{
			Kind:    KindBadGateway,
			Message: "unexpected token response format from Commerce Layer",
			Failure: FailureMalformed,
		}
	}

	return &models.AccessTokenResponse{
		AccessToken:  tokenResp.AccessToken,
		TokenType:    tokenResp.TokenType,
		ExpiresIn:    *tokenResp.ExpiresIn,
		Scope:        tokenResp.Scope,
		Endpoint:     p.cfg.Endpoint,
		Organization: OrganizationFromEndpoint(p.cfg.Endpoint, p.cfg.OrganizationSlug),
	}, nil
}

// ValidateToken checks accessToken against Commerce Layer's introspection
// endpoint. An inactive token is a valid answer, not an error.
func (p *TokenProvider) ValidateToken(ctx context.Context, accessToken string) (*models.TokenValidationResponse, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, newError(KindInvalidRequest, "Missing access token")
	}
	if p.cfg.Endpoint == "" {
		slog.Error("Commerce Layer endpoint not configured")
		return nil, configurationError("Commerce Layer endpoint not configured")
	}

	introspection, err := p.requester.IntrospectToken(ctx, accessToken)
	if err != nil {
		slog.Error("Token validation failed", "error", err)
		return nil, upstreamError(KindUpstreamAuth, "Token validation failed", err)
	}

	if !introspection.Active {
		slog.Info("Token is not active")
		return &models.TokenValidationResponse{Valid: false}, nil
	}

	userID := introspection.Subject
	if userID == "" {
		userID = "unknown"
	}
	return &models.TokenValidationResponse{
		Valid: true,
		User: &models.TokenUser{
			ID:    userID,
			Email: introspection.Email,
			Scope: introspection.Scope,
		},
	}, nil
}

// OrganizationFromEndpoint derives the organization slug from the first host
// label of endpoint (https://acme.commercelayer.io -> acme), falling back when
// the URL has no usable host name
func OrganizationFromEndpoint(endpoint, fallback string) string {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		slog.Warn("Could not parse endpoint, using configured organization", "error", err)
		return fallback
	}
	host := parsed.Hostname()
	if net.ParseIP(host) != nil {
		return fallback
	}
	slug, _, _ := strings.Cut(host, ".")
	if slug == "" {
		return fallback
	}
	return slug
}

func (p *TokenProvider) checkCredentials() error {
	if p.cfg.ClientID == "" || p.cfg.ClientSecret == "" || p.cfg.Endpoint == "" || p.cfg.AuthURL == "" {
		slog.Error("Commerce Layer credentials not configured")
		return configurationError("Commerce Layer credentials not configured")
	}
	return nil
}

func (p *TokenProvider) requestToken(ctx context.Context, marketID string) (*client.TokenResponse, error) {
	scope := "market:id:" + marketID

	tokenResp, err := p.requester.RequestToken(ctx, client.TokenRequest{
		GrantType:    "client_credentials",
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		Scope:        scope,
	})
	if err != nil {
		return nil, upstreamError(KindUpstreamAuth, "failed to obtain Commerce Layer token", err)
	}

	if tokenResp.AccessToken == "" {
		return nil, &Error{
			Kind:    KindUpstreamAuth,
			Message: "token response carried no access token",
			Failure: FailureMalformed,
		}
	}

	if tokenResp.CreatedAt == 0 {
		tokenResp.CreatedAt = p.now().Unix()
	}
	return tokenResp, nil
}

// asBadGateway reclassifies an upstream token failure so the caller sees 502.
// The upstream status and detail are kept for the error details.
func asBadGateway(err error) error {
	serviceErr, ok := err.(*Error)
	if !ok || serviceErr.Kind != KindUpstreamAuth {
		return err
	}
	reclassified := *serviceErr
	reclassified.Kind = KindBadGateway
	return &reclassified
}

func (p *TokenProvider) observeCache(ctx context.Context, market models.Market, hit bool) {
	if p.observer != nil {
		p.observer.ObserveTokenCache(ctx, string(market), hit)
	}
}
