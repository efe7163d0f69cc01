package cache

import (
	"log/slog"
	"sync"
	"time"

	"storefront-commerce-api/internal/models"
)

// DefaultSafetyMargin is subtracted from a token's lifetime so callers never
// receive a token about to expire in flight
const DefaultSafetyMargin = 300 * time.Second

// CachedToken is an OAuth token record as issued by the token endpoint
type CachedToken struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int64 // seconds
	Scope       string
	CreatedAt   int64 // unix seconds
}

// ExpiresAt is the moment the token stops being served from cache
func (t CachedToken) ExpiresAt(safetyMargin time.Duration) time.Time {
	return time.Unix(t.CreatedAt, 0).
		Add(time.Duration(t.ExpiresIn) * time.Second).
		Add(-safetyMargin)
}

// ValidAt reports whether now < CreatedAt + ExpiresIn - safetyMargin
func (t CachedToken) ValidAt(now time.Time, safetyMargin time.Duration) bool {
	return now.Before(t.ExpiresAt(safetyMargin))
}

// TokenCache holds one token per market. Entries are replaced wholesale and
// validity is checked on every read; expired entries are never returned.
type TokenCache struct {
	items        map[models.Market]CachedToken
	mutex        sync.RWMutex
	safetyMargin time.Duration
	now          func() time.Time
}

// NewTokenCache creates an empty token cache. A nil clock uses time.Now.
func NewTokenCache(safetyMargin time.Duration, now func() time.Time) *TokenCache {
	if now == nil {
		now = time.Now
	}
	return &TokenCache{
		items:        make(map[models.Market]CachedToken),
		safetyMargin: safetyMargin,
		now:          now,
	}
}

// Set stores the token for market, replacing any previous record
func (c *TokenCache) Set(market models.Market, token CachedToken) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items[market] = token

	slog.Debug("Token cached",
		"market", market,
		"expires_at", token.ExpiresAt(c.safetyMargin).Format(time.RFC3339))
}

// Get returns the token for market if present and still valid
func (c *TokenCache) Get(market models.Market) (CachedToken, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	token, exists := c.items[market]
	if !exists {
		return CachedToken{}, false
	}

	if !token.ValidAt(c.now(), c.safetyMargin) {
		slog.Debug("Cached token expired", "market", market)
		return CachedToken{}, false
	}

	return token, true
}

// Delete removes the token for market
func (c *TokenCache) Delete(market models.Market) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, ok := c.items[market]; ok {
		delete(c.items, market)
		slog.Debug("Cached token removed", "market", market)
	}
}

// GetStats returns cache statistics
func (c *TokenCache) GetStats() map[string]interface{} {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	now := c.now()
	activeCount := 0
	for _, token := range c.items {
		if token.ValidAt(now, c.safetyMargin) {
			activeCount++
		}
	}

	return map[string]interface{}{
		"total_entries":   len(c.items),
		"active_entries":  activeCount,
		"expired_entries": len(c.items) - activeCount,
		"safety_margin":   c.safetyMargin.String(),
	}
}
