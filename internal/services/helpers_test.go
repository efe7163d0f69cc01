package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storefront-commerce-api/internal/client"
	"storefront-commerce-api/internal/config"
	"storefront-commerce-api/internal/models"
)

func testConfig() *config.Config {
	return &config.Config{
		ClientID:         "client-123",
		ClientSecret:     "secret-456",
		Endpoint:         "https://acme.commercelayer.io",
		AuthURL:          config.DefaultAuthURL,
		OrganizationSlug: "acme-fallback",
		Markets: map[models.Market]config.MarketConfig{
			models.MarketUK: {MarketID: "vjzmJhvEDo", SKUListID: "ukList"},
			models.MarketEU: {MarketID: "qjANwhQrJg", SKUListID: "euList"},
		},
		DefaultMarket: models.MarketUK,
	}
}

// fakeRequester answers token requests through respond and records each request
type fakeRequester struct {
	mu           sync.Mutex
	requests     []client.TokenRequest
	respond      func(req client.TokenRequest) (*client.TokenResponse, error)
	introspect   func(accessToken string) (*client.IntrospectionResponse, error)
	introspected []string
}

func (f *fakeRequester) RequestToken(ctx context.Context, req client.TokenRequest) (*client.TokenResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.respond(req)
}

func (f *fakeRequester) IntrospectToken(ctx context.Context, accessToken string) (*client.IntrospectionResponse, error) {
	f.mu.Lock()
	f.introspected = append(f.introspected, accessToken)
	f.mu.Unlock()
	return f.introspect(accessToken)
}

func (f *fakeRequester) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// issuingRequester returns a fresh token per call, created at the clock's now
func issuingRequester(clock func() time.Time, expiresIn int64) *fakeRequester {
	f := &fakeRequester{}
	f.respond = func(req client.TokenRequest) (*client.TokenResponse, error) {
		n := f.callCount()
		return &client.TokenResponse{
			AccessToken: fmt.Sprintf("token-%d", n),
			TokenType:   "bearer",
			ExpiresIn:   seconds(expiresIn),
			Scope:       req.Scope,
			CreatedAt:   clock().Unix(),
		}, nil
	}
	return f
}

func seconds(n int64) *int64 {
	return &n
}

type fakeTokens struct {
	token       string
	err         error
	calls       int
	invalidated []models.Market
}

func (f *fakeTokens) GetToken(ctx context.Context, market models.Market) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

func (f *fakeTokens) InvalidateToken(market models.Market) {
	f.invalidated = append(f.invalidated, market)
}

// fakeCatalogAPI serves canned documents and records the queries it saw
type fakeCatalogAPI struct {
	skus        func(query url.Values) (*models.Document, error)
	listSKUs    func(skuListID string, query url.Values) (*models.Document, error)
	skuQueries  []url.Values
	listQueries []url.Values
	listIDs     []string
	tokens      []string
}

func (f *fakeCatalogAPI) ListSKUs(ctx context.Context, accessToken string, query url.Values) (*models.Document, error) {
	f.tokens = append(f.tokens, accessToken)
	f.skuQueries = append(f.skuQueries, query)
	return f.skus(query)
}

func (f *fakeCatalogAPI) ListSKUListSKUs(ctx context.Context, accessToken, skuListID string, query url.Values) (*models.Document, error) {
	f.tokens = append(f.tokens, accessToken)
	f.listIDs = append(f.listIDs, skuListID)
	f.listQueries = append(f.listQueries, query)
	return f.listSKUs(skuListID, query)
}

func decodeDocument(t *testing.T, body string) *models.Document {
	t.Helper()
	var doc models.Document
	require.NoError(t, json.Unmarshal([]byte(body), &doc))
	return &doc
}

// settableClock is shared by the cache and the provider under test
type settableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *settableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *settableClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type cacheLookup struct {
	market string
	hit    bool
}

type recordingCacheObserver struct {
	lookups []cacheLookup
}

func (o *recordingCacheObserver) ObserveTokenCache(ctx context.Context, market string, hit bool) {
	o.lookups = append(o.lookups, cacheLookup{market: market, hit: hit})
}

func serviceError(t *testing.T, err error) *Error {
	t.Helper()
	require.Error(t, err)
	serviceErr, ok := err.(*Error)
	require.True(t, ok, "expected *services.Error, got %T", err)
	return serviceErr
}
