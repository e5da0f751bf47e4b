package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"aspire/internal/feature"
	"aspire/internal/gateway"
	"aspire/internal/services"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps service errors to status codes. Unknown errors are logged
// and reported as 500 without detail.
func respondServiceError(w http.ResponseWriter, logger *slog.Logger, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		respondError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, services.ErrSignatureMismatch):
		respondError(w, http.StatusUnauthorized, "invalid_signature")
	case errors.Is(err, services.ErrAccountNotFound):
		respondError(w, http.StatusNotFound, "account_not_found")
	case errors.Is(err, services.ErrPaymentNotFound):
		respondError(w, http.StatusNotFound, "payment_not_found")
	case errors.Is(err, services.ErrInsufficientTokens):
		respondError(w, http.StatusPaymentRequired, "insufficient_tokens")
	case errors.Is(err, services.ErrInvalidAmount):
		respondError(w, http.StatusBadRequest, "invalid_amount")
	case errors.Is(err, services.ErrInvalidPackage):
		respondError(w, http.StatusBadRequest, "invalid_package")
	case errors.Is(err, feature.ErrUnknownFeature):
		respondError(w, http.StatusBadRequest, "unknown_feature")
	case errors.Is(err, services.ErrGenerationFailed):
		respondError(w, http.StatusBadGateway, "generation_failed")
	case errors.Is(err, gateway.ErrGatewayRejected):
		logger.Error(fallback, "error", err)
		respondError(w, http.StatusBadGateway, "payment_gateway_error")
	default:
		logger.Error(fallback, "error", err)
		respondError(w, http.StatusInternalServerError, fallback)
	}
}
