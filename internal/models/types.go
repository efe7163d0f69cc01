package models

import (
	"fmt"
	"strings"
)

// ErrorResponse represents the standard error response format
type ErrorResponse struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

// Market identifies a storefront region with its own SKU list and price scope
type Market string

const (
	MarketUK Market = "UK"
	MarketEU Market = "EU"
)

// SupportedMarkets lists every market the storefront serves
var SupportedMarkets = []Market{MarketUK, MarketEU}

// ParseMarket converts a query value into a Market (case-insensitive)
func ParseMarket(value string) (Market, error) {
	market := Market(strings.ToUpper(strings.TrimSpace(value)))
	for _, supported := range SupportedMarkets {
		if market == supported {
			return market, nil
		}
	}
	return "", fmt.Errorf("unsupported market: %q", value)
}

// Price is copied from the first price record linked to a SKU
type Price struct {
	AmountCents  int64   `json:"amount_cents"`
	AmountFloat  float64 `json:"amount_float"`
	Formatted    string  `json:"formatted"`
	CurrencyCode string  `json:"currency_code"`
}

type ProductImage struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

type ProductAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Product is the flat storefront view of a SKU used by listings and featured products
type Product struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Code        string             `json:"code"`
	Description *string            `json:"description,omitempty"`
	ImageURL    *string            `json:"image_url,omitempty"`
	Price       *Price             `json:"price,omitempty"`
	Images      []ProductImage     `json:"images"`
	Attributes  []ProductAttribute `json:"attributes"`
	Category    *string            `json:"category"`
	Available   bool               `json:"available"`
}

type ProductsResponse struct {
	Products []Product `json:"products"`
}

// ProductDetail is the single-SKU view returned by the product detail endpoint
type ProductDetail struct {
	ID          string         `json:"id"`
	SKU         string         `json:"sku"`
	Name        string         `json:"name"`
	Description *string        `json:"description,omitempty"`
	Price       *Price         `json:"price,omitempty"`
	Images      []ProductImage `json:"images"`
	Available   bool           `json:"available"`
}

// CoreConfig is the public Commerce Layer configuration exposed to the frontend
type CoreConfig struct {
	ClientID    string            `json:"clientId"`
	BaseURL     string            `json:"baseUrl"`
	MarketIDMap map[string]string `json:"marketIdMap"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

const (
	HealthStatusHealthy   = "healthy"
	HealthStatusUnhealthy = "unhealthy"
)

// AccessTokenRequest is the body of POST /auth/cl-access-token2
type AccessTokenRequest struct {
	MarketID string `json:"market_id"`
}

// TokenValidationRequest is the body of POST /auth/validate-token
type TokenValidationRequest struct {
	AccessToken string `json:"access_token"`
}

// TokenValidationResponse reports whether a token is active and, if so, who it belongs to
type TokenValidationResponse struct {
	Valid bool       `json:"valid"`
	User  *TokenUser `json:"user,omitempty"`
}

// TokenUser is the owner of an active token
type TokenUser struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Scope string `json:"scope,omitempty"`
}

// AccessTokenResponse carries a market-scoped token plus the organization it belongs to
type AccessTokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	Endpoint     string `json:"endpoint"`
	Organization string `json:"organization"`
}
