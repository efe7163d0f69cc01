package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter registers the storefront routes. Route-level middleware runs
// after mux has matched, so route templates are visible to it.
func NewRouter(products *ProductsHandler, health *HealthHandler, auth *AuthHandler, routeMiddleware ...mux.MiddlewareFunc) *mux.Router {
	r := mux.NewRouter()
	for _, mw := range routeMiddleware {
		r.Use(mw)
	}

	cl := r.PathPrefix("/commerce-layer").Subrouter()
	cl.HandleFunc("/products", products.ListProducts).Methods(http.MethodGet)
	cl.HandleFunc("/featured-products", products.GetFeaturedProducts).Methods(http.MethodGet)
	cl.HandleFunc("/products/{skuCode}", products.GetProduct).Methods(http.MethodGet)
	cl.HandleFunc("/config", health.Config).Methods(http.MethodGet)
	cl.HandleFunc("/health", health.CommerceLayerHealth).Methods(http.MethodGet)

	r.HandleFunc("/auth/cl-access-token2", auth.AccessToken).Methods(http.MethodPost)
	r.HandleFunc("/auth/validate-token", auth.ValidateToken).Methods(http.MethodPost)
	r.HandleFunc("/health", health.Health).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErrorResponse(w, http.StatusNotFound, "not_found", "Route not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", nil)
	})

	return r
}
