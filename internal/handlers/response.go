package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"storefront-commerce-api/internal/models"
	"storefront-commerce-api/internal/services"
	"storefront-commerce-api/internal/telemetry"
)

// writeJSONResponse is a helper function to write JSON responses
func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeErrorResponse is a helper function to write error responses
func writeErrorResponse(w http.ResponseWriter, statusCode int, code, message string, details []models.ErrorDetail) {
	writeJSONResponse(w, statusCode, models.ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// writeServiceError translates a service error into its HTTP status and envelope
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := StatusForError(err)

	var serviceErr *services.Error
	if !errors.As(err, &serviceErr) {
		slog.Error("Unexpected error", "path", r.URL.Path, "error", err)
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error", "An internal error occurred", nil)
		return
	}

	telemetry.SetErrorKind(r.Context(), string(serviceErr.Kind))

	var details []models.ErrorDetail
	if serviceErr.UpstreamStatus > 0 {
		details = append(details, models.ErrorDetail{Field: "upstream_status", Issue: strconv.Itoa(serviceErr.UpstreamStatus)})
	}
	if serviceErr.Failure != "" {
		details = append(details, models.ErrorDetail{Field: "upstream_failure", Issue: serviceErr.Failure})
	}
	if serviceErr.Detail != "" {
		details = append(details, models.ErrorDetail{Field: "detail", Issue: serviceErr.Detail})
	}

	if statusCode >= http.StatusInternalServerError {
		slog.Error("Request failed", "path", r.URL.Path, "status_code", statusCode, "error", err)
	} else {
		slog.Warn("Request rejected", "path", r.URL.Path, "status_code", statusCode, "error", err)
	}

	writeErrorResponse(w, statusCode, string(serviceErr.Kind), serviceErr.Message, details)
}

// StatusForError maps a service error kind to an HTTP status. Upstream errors
// surface the upstream status when there is one.
func StatusForError(err error) int {
	var serviceErr *services.Error
	if !errors.As(err, &serviceErr) {
		return http.StatusInternalServerError
	}

	switch serviceErr.Kind {
	case services.KindInvalidRequest:
		return http.StatusBadRequest
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case services.KindBadGateway:
		return http.StatusBadGateway
	case services.KindUpstreamAuth, services.KindUpstreamCatalog:
		if serviceErr.UpstreamStatus >= http.StatusBadRequest {
			return serviceErr.UpstreamStatus
		}
		switch serviceErr.Failure {
		case services.FailureTimeout:
			return http.StatusGatewayTimeout
		case services.FailureNetwork:
			return http.StatusServiceUnavailable
		default:
			return http.StatusBadGateway
		}
	default:
		return http.StatusInternalServerError
	}
}

// marketFromRequest reads the required market query parameter
func marketFromRequest(w http.ResponseWriter, r *http.Request) (models.Market, bool) {
	raw := r.URL.Query().Get("market")
	if raw == "" {
		writeErrorResponse(w, http.StatusBadRequest, string(services.KindInvalidRequest), "market is required", []models.ErrorDetail{
			{Field: "market", Issue: "cannot be empty"},
		})
		return "", false
	}

	market, err := models.ParseMarket(raw)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, string(services.KindInvalidRequest), "Invalid market: "+raw, []models.ErrorDetail{
			{Field: "market", Issue: "must be UK or EU"},
		})
		return "", false
	}

	telemetry.SetMarket(r.Context(), string(market))
	return market, true
}
