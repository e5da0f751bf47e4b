package handlers

import (
	"net/http"
	"strings"

	"aspire/internal/auth"
	"aspire/internal/services"
	"aspire/internal/websocket"
)

func (h *Handler) SeedFeatureCosts(w http.ResponseWriter, r *http.Request) {
	n, err := h.costs.Seed(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err, "unable to seed feature costs")
		return
	}
	h.logger.Info("feature costs seeded", "rows", n)
	respondJSON(w, http.StatusOK, map[string]int{"seeded": n})
}

// Reconcile lists every account whose stored balance differs from its ledger sum.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	rows, err := h.drift.ListDrift(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err, "unable to reconcile balances")
		return
	}
	out := make([]balanceSummaryResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, toBalanceSummaryResponse(row))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"drifted":  len(out),
		"accounts": out,
	})
}

func (h *Handler) WSBalances(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	account, err := h.ledger.EnsureAccount(r.Context(), services.Identity{
		ExternalUserID: claims.UserID(),
		Email:          claims.Email,
		Name:           claims.Name,
	})
	if err != nil {
		respondServiceError(w, h.logger, err, "unable to load account")
		return
	}
	websocket.ServeWS(w, r, h.hub, account.ID)
}
