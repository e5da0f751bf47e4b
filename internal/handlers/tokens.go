package handlers

import (
	"net/http"
	"time"

	"aspire/internal/middleware"
	"aspire/internal/services"
	"aspire/internal/store"
	"aspire/internal/validator"
)

const defaultHistoryLimit = 5

type ledgerEntryResponse struct {
	ID          string    `json:"id"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description"`
	FeatureType *string   `json:"featureType,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toLedgerEntryResponse(entry store.LedgerEntry) ledgerEntryResponse {
	return ledgerEntryResponse{
		ID:          entry.ID,
		Amount:      entry.Amount,
		Description: entry.Description,
		FeatureType: entry.FeatureType,
		CreatedAt:   entry.CreatedAt,
	}
}

// GetTokens reports the caller's balance together with the purchasable packages. A
// balance read failure degrades to the configured default.
func (h *Handler) GetTokens(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"tokens":   h.ledger.BalanceOrDefault(r.Context(), accountID),
		"packages": services.Packages(),
	})
}

func (h *Handler) CheckTokens(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	amount, err := validator.ParseAmount(r.URL.Query().Get("amount"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	enough, err := h.ledger.CheckBalance(r.Context(), accountID, amount)
	if err != nil {
		respondServiceError(w, h.logger, err, "unable to check balance")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"amount":     amount,
		"sufficient": enough,
	})
}

func (h *Handler) ListTokenTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, err := validator.ParseLimit(r.URL.Query().Get("limit"), defaultHistoryLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := h.ledger.History(r.Context(), accountID, limit)
	if err != nil {
		respondServiceError(w, h.logger, err, "unable to load transactions")
		return
	}
	out := make([]ledgerEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toLedgerEntryResponse(entry))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) SelfCheck(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	summary, err := h.ledger.SelfCheck(r.Context(), accountID)
	if err != nil {
		respondServiceError(w, h.logger, err, "unable to verify balance")
		return
	}
	respondJSON(w, http.StatusOK, toBalanceSummaryResponse(summary))
}

type balanceSummaryResponse struct {
	AccountID         string `json:"accountId"`
	ExternalUserID    string `json:"externalUserId"`
	StoredBalance     int64  `json:"storedBalance"`
	CalculatedBalance int64  `json:"calculatedBalance"`
	Difference        int64  `json:"difference"`
	EntryCount        int64  `json:"entryCount"`
	Consistent        bool   `json:"consistent"`
}

func toBalanceSummaryResponse(summary store.AccountBalanceSummary) balanceSummaryResponse {
	return balanceSummaryResponse{
		AccountID:         summary.ID,
		ExternalUserID:    summary.ExternalUserID,
		StoredBalance:     summary.StoredBalance,
		CalculatedBalance: summary.CalculatedBalance,
		Difference:        summary.Difference,
		EntryCount:        summary.EntryCount,
		Consistent:        summary.Difference == 0,
	}
}
