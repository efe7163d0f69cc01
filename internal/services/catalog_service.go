package services

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"storefront-commerce-api/internal/config"
	"storefront-commerce-api/internal/models"
)

const (
	catalogPageSize = 25
	featuredCount   = 3
	catalogIncludes = "prices,stock_items"
)

// category filter values that mean "no filter"
var categorySentinels = map[string]bool{
	"":     true,
	"all":  true,
	"null": true,
}

// TokenSource supplies market-scoped access tokens
type TokenSource interface {
	GetToken(ctx context.Context, market models.Market) (string, error)
	InvalidateToken(market models.Market)
}

// CatalogAPI is the subset of the Commerce Layer JSON:API the catalog reads
type CatalogAPI interface {
	ListSKUs(ctx context.Context, accessToken string, query url.Values) (*models.Document, error)
	ListSKUListSKUs(ctx context.Context, accessToken, skuListID string, query url.Values) (*models.Document, error)
}

// CatalogService reads products for a market from Commerce Layer
type CatalogService struct {
	cfg    *config.Config
	tokens TokenSource
	api    CatalogAPI
	perm   func(n int) []int
}

// NewCatalogService creates a catalog service. perm returns a random
// permutation of [0, n); nil uses math/rand/v2.
func NewCatalogService(cfg *config.Config, tokens TokenSource, api CatalogAPI, perm func(n int) []int) *CatalogService {
	if perm == nil {
		perm = rand.Perm
	}
	return &CatalogService{
		cfg:    cfg,
		tokens: tokens,
		api:    api,
		perm:   perm,
	}
}

// ListProducts returns the first page of the market's SKU list, optionally
// restricted to SKUs tagged with category
func (s *CatalogService) ListProducts(ctx context.Context, market models.Market, category string) ([]models.Product, error) {
	skuListID, err := s.skuListID(market)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.GetToken(ctx, market)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("page[size]", strconv.Itoa(catalogPageSize))
	query.Set("include", catalogIncludes)
	query.Set("filter[q][sku_list_id_eq]", skuListID)

	if tag, ok := CategoryTag(category); ok {
		query.Set("filter[q][tags_name_eq]", tag)
		slog.Debug("Applying category filter", "market", market, "tag", tag)
	}

	doc, err := s.api.ListSKUs(ctx, token, query)
	if err != nil {
		return nil, s.catalogError(market, "failed to fetch products from Commerce Layer", err)
	}

	var categoryValue *string
	if category != "" {
		categoryValue = &category
	}

	products, err := toProducts(doc, productMapping{category: categoryValue, excludeFacets: true})
	if err != nil {
		slog.Error("Failed to map products", "market", market, "error", err)
		return nil, err
	}

	if len(doc.Data) == 0 {
		slog.Warn("Commerce Layer returned no SKUs",
			"market", market,
			"sku_list_id", skuListID,
			"category", category)
	}

	slog.Info("Products listed",
		"market", market,
		"category", category,
		"count", len(products))

	return products, nil
}

// CategoryTag returns the lowercased tag to filter by, or false when the
// category is empty or one of the "all"/"null" sentinels
func CategoryTag(category string) (string, bool) {
	tag := strings.ToLower(category)
	if categorySentinels[tag] {
		return "", false
	}
	return tag, true
}

// GetProductDetail returns a single SKU of the market's SKU list by code
func (s *CatalogService) GetProductDetail(ctx context.Context, market models.Market, skuCode string) (*models.ProductDetail, error) {
	if strings.TrimSpace(skuCode) == "" {
		return nil, newError(KindInvalidRequest, "SKU code is required")
	}

	skuListID, err := s.skuListID(market)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.GetToken(ctx, market)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("filter[q][code_eq]", skuCode)
	query.Set("filter[q][sku_list_id_eq]", skuListID)
	query.Set("include", catalogIncludes)

	doc, err := s.api.ListSKUs(ctx, token, query)
	if err != nil {
		return nil, s.catalogError(market, "failed to fetch product from Commerce Layer", err)
	}

	if len(doc.Data) == 0 {
		slog.Info("SKU not found", "sku_code", skuCode, "market", market, "sku_list_id", skuListID)
		return nil, newError(KindNotFound, fmt.Sprintf("SKU '%s' not found for market '%s'", skuCode, market))
	}

	detail, err := toProductDetail(doc.Data[0], models.NewIncludedIndex(doc.Included))
	if err != nil {
		slog.Error("Failed to map product detail", "sku_code", skuCode, "market", market, "error", err)
		return nil, err
	}

	slog.Info("Product detail retrieved",
		"sku_code", detail.SKU,
		"market", market,
		"available", detail.Available)

	return detail, nil
}

// GetFeaturedProducts returns up to three products sampled uniformly from the
// market's SKU list
func (s *CatalogService) GetFeaturedProducts(ctx context.Context, market models.Market) ([]models.Product, error) {
	skuListID, err := s.skuListID(market)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.GetToken(ctx, market)
	if err != nil {
		return nil, err
	}

	codes, err := s.listSKUCodes(ctx, market, token, skuListID)
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		slog.Warn("No SKU codes in list, returning no featured products", "market", market, "sku_list_id", skuListID)
		return []models.Product{}, nil
	}

	selected := sampleCodes(codes, featuredCount, s.perm)
	slog.Debug("Selected featured SKUs", "market", market, "codes", selected)

	query := url.Values{}
	query.Set("page[size]", strconv.Itoa(len(selected)))
	query.Set("include", catalogIncludes)
	query.Set("filter[q][code_in]", strings.Join(selected, ","))
	query.Set("filter[q][sku_list_id_eq]", skuListID)

	doc, err := s.api.ListSKUs(ctx, token, query)
	if err != nil {
		return nil, s.catalogError(market, "failed to fetch featured products from Commerce Layer", err)
	}

	products, err := toProducts(doc, productMapping{})
	if err != nil {
		slog.Error("Failed to map featured products", "market", market, "error", err)
		return nil, err
	}

	slog.Info("Featured products selected", "market", market, "count", len(products))
	return products, nil
}

// listSKUCodes returns the distinct SKU codes of the first page of a SKU list
func (s *CatalogService) listSKUCodes(ctx context.Context, market models.Market, token, skuListID string) ([]string, error) {
	query := url.Values{}
	query.Set("page[size]", strconv.Itoa(catalogPageSize))
	query.Set("fields[skus]", "code")

	doc, err := s.api.ListSKUListSKUs(ctx, token, skuListID, query)
	if err != nil {
		return nil, s.catalogError(market, "failed to fetch SKU codes from Commerce Layer", err)
	}

	seen := make(map[string]bool, len(doc.Data))
	codes := make([]string, 0, len(doc.Data))
	for _, item := range doc.Data {
		if item.Type != models.ResourceTypeSKUs {
			continue
		}
		var attrs models.SKUAttributes
		if err := item.DecodeAttributes(&attrs); err != nil {
			return nil, mappingError(err)
		}
		if attrs.Code == "" || seen[attrs.Code] {
			continue
		}
		seen[attrs.Code] = true
		codes = append(codes, attrs.Code)
	}
	return codes, nil
}

// catalogError classifies a catalog call failure. A 401 means the cached token
// was revoked upstream, so it is evicted and the next request fetches a new one.
func (s *CatalogService) catalogError(market models.Market, message string, err error) *Error {
	serviceErr := upstreamError(KindUpstreamCatalog, message, err)
	if serviceErr.UpstreamStatus == http.StatusUnauthorized {
		slog.Warn("Commerce Layer rejected the access token, evicting it", "market", market)
		s.tokens.InvalidateToken(market)
	}
	return serviceErr
}

// sampleCodes picks min(k, len(codes)) codes without replacement
func sampleCodes(codes []string, k int, perm func(n int) []int) []string {
	if k > len(codes) {
		k = len(codes)
	}
	order := perm(len(codes))
	selected := make([]string, 0, k)
	for _, i := range order[:k] {
		selected = append(selected, codes[i])
	}
	return selected
}

func (s *CatalogService) skuListID(market models.Market) (string, error) {
	mc, ok := s.cfg.Market(market)
	if !ok || mc.SKUListID == "" {
		slog.Error("SKU list id not configured", "market", market)
		return "", configurationError("SKU list id not configured for market %s", market)
	}
	return mc.SKUListID, nil
}
