package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"storefront-commerce-api/internal/models"
	"storefront-commerce-api/internal/services"
)

// AuthHandler issues market-scoped Commerce Layer access tokens to the frontend
type AuthHandler struct {
	tokenProvider *services.TokenProvider
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(tokenProvider *services.TokenProvider) *AuthHandler {
	return &AuthHandler{
		tokenProvider: tokenProvider,
	}
}

// AccessToken handles POST /auth/cl-access-token2
func (h *AuthHandler) AccessToken(w http.ResponseWriter, r *http.Request) {
	var req models.AccessTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Invalid JSON in token request", "error", err, "remote_addr", r.RemoteAddr)
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid JSON", nil)
		return
	}

	slog.Info("Received token request", "market_id", req.MarketID, "remote_addr", r.RemoteAddr)

	resp, err := h.tokenProvider.IssueAccessToken(r.Context(), req.MarketID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

// ValidateToken handles POST /auth/validate-token
func (h *AuthHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	var req models.TokenValidationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Invalid JSON in token validation request", "error", err, "remote_addr", r.RemoteAddr)
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid JSON", nil)
		return
	}

	resp, err := h.tokenProvider.ValidateToken(r.Context(), req.AccessToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, resp)
}
