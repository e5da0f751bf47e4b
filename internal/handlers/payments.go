package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"aspire/internal/middleware"
	"aspire/internal/services"
	"aspire/internal/store"
	"aspire/internal/validator"
)

const defaultPaymentHistoryLimit = 20

type createOrderRequest struct {
	PackageID string `json:"packageId"`
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validator.ValidatePackageID(req.PackageID); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	order, err := h.payments.CreateOrder(r.Context(), accountID, req.PackageID)
	if err != nil {
		respondServiceError(w, h.logger, err, "unable to create order")
		return
	}
	respondJSON(w, http.StatusCreated, order)
}

type verifyPaymentRequest struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
	PackageID string `json:"packageId"`
}

func (req verifyPaymentRequest) validate() error {
	if err := validator.ValidateOrderID(req.OrderID); err != nil {
		return err
	}
	if err := validator.ValidatePaymentID(req.PaymentID); err != nil {
		return err
	}
	if err := validator.ValidateSignature(req.Signature); err != nil {
		return err
	}
	return validator.ValidatePackageID(req.PackageID)
}

// VerifyPayment checks the gateway signature and credits the purchased package once.
// Replays of an already completed order answer 200 with status already_processed.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req verifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.payments.VerifyAndRecord(r.Context(), accountID, services.PaymentCallback{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
		PackageID: req.PackageID,
	})
	if err != nil {
		respondServiceError(w, h.logger, err, "unable to verify payment")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type paymentResponse struct {
	OrderID     string     `json:"orderId"`
	PaymentID   *string    `json:"paymentId,omitempty"`
	PackageID   string     `json:"packageId"`
	Amount      string     `json:"amount"`
	Currency    string     `json:"currency"`
	Tokens      int64      `json:"tokens"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func toPaymentResponse(payment store.Payment) paymentResponse {
	return paymentResponse{
		OrderID:     payment.ExternalOrderID,
		PaymentID:   payment.ExternalPaymentID,
		PackageID:   payment.PackageID,
		Amount:      payment.Amount.StringFixed(2),
		Currency:    payment.Currency,
		Tokens:      payment.TokensAdded,
		Status:      payment.Status,
		CreatedAt:   payment.CreatedAt,
		CompletedAt: payment.CompletedAt,
	}
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, err := validator.ParseLimit(r.URL.Query().Get("limit"), defaultPaymentHistoryLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	payments, err := h.payments.History(r.Context(), accountID, limit)
	if err != nil {
		respondServiceError(w, h.logger, err, "unable to load payments")
		return
	}
	out := make([]paymentResponse, 0, len(payments))
	for _, payment := range payments {
		out = append(out, toPaymentResponse(payment))
	}
	respondJSON(w, http.StatusOK, out)
}
