package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"storefront-commerce-api/internal/models"
	"storefront-commerce-api/internal/services"
	"storefront-commerce-api/internal/telemetry"
)

// ProductsHandler handles catalog requests
type ProductsHandler struct {
	catalogService *services.CatalogService
}

// NewProductsHandler creates a new products handler
func NewProductsHandler(catalogService *services.CatalogService) *ProductsHandler {
	return &ProductsHandler{
		catalogService: catalogService,
	}
}

// ListProducts handles GET /commerce-layer/products?market=&category=
func (h *ProductsHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	market, ok := marketFromRequest(w, r)
	if !ok {
		return
	}
	category := r.URL.Query().Get("category")

	slog.Debug("Listing products", "market", market, "category", category, "remote_addr", r.RemoteAddr)

	products, err := h.catalogService.ListProducts(r.Context(), market, category)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	telemetry.SetProductCount(r.Context(), len(products))
	writeJSONResponse(w, http.StatusOK, models.ProductsResponse{Products: products})
}

// GetFeaturedProducts handles GET /commerce-layer/featured-products?market=
func (h *ProductsHandler) GetFeaturedProducts(w http.ResponseWriter, r *http.Request) {
	market, ok := marketFromRequest(w, r)
	if !ok {
		return
	}

	products, err := h.catalogService.GetFeaturedProducts(r.Context(), market)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	telemetry.SetProductCount(r.Context(), len(products))
	writeJSONResponse(w, http.StatusOK, products)
}

// GetProduct handles GET /commerce-layer/products/{skuCode}?market=
func (h *ProductsHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	skuCode := mux.Vars(r)["skuCode"]
	if skuCode == "" {
		writeErrorResponse(w, http.StatusBadRequest, string(services.KindInvalidRequest), "SKU code is required", []models.ErrorDetail{
			{Field: "skuCode", Issue: "cannot be empty"},
		})
		return
	}

	market, ok := marketFromRequest(w, r)
	if !ok {
		return
	}

	detail, err := h.catalogService.GetProductDetail(r.Context(), market, skuCode)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	telemetry.SetProductCount(r.Context(), 1)
	writeJSONResponse(w, http.StatusOK, detail)
}
