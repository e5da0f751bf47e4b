package handlers

import (
	"encoding/json"
	"net/http"

	"aspire/internal/ai"
	"aspire/internal/feature"
	"aspire/internal/middleware"
	"aspire/internal/services"
	"aspire/internal/validator"

	"github.com/go-chi/chi/v5"
)

type featureCostResponse struct {
	Feature     string `json:"feature"`
	TokenCost   int64  `json:"tokenCost"`
	Description string `json:"description"`
}

func (h *Handler) ListFeatureCosts(w http.ResponseWriter, r *http.Request) {
	prices := h.costs.List(r.Context())
	out := make([]featureCostResponse, 0, len(prices))
	for _, price := range prices {
		out = append(out, featureCostResponse{
			Feature:     price.Feature.String(),
			TokenCost:   price.TokenCost,
			Description: price.Description,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

type generateRequest struct {
	Input string `json:"input"`
}

func (h *Handler) GenerateFeature(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	featureType, err := feature.Parse(chi.URLParam(r, "feature"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unknown_feature")
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validator.ValidateInput(req.Input); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.runner.Run(r.Context(), services.GenerateRequest{
		AccountID: accountID,
		Feature:   featureType,
		Prompt:    ai.Prompt(featureType, req.Input),
	})
	if err != nil {
		respondServiceError(w, h.logger, err, "unable to generate content")
		return
	}
	respondJSON(w, http.StatusOK, result)
}
