package handlers

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aspire/internal/auth"
	"aspire/internal/config"
	"aspire/internal/feature"
	"aspire/internal/services"
	"aspire/internal/store"
	"aspire/internal/websocket"
)

const testSecret = "secret"

type stubLedger struct {
	ensureAccountFn    func(ctx context.Context, identity services.Identity) (store.Account, error)
	checkBalanceFn     func(ctx context.Context, accountID string, needed int64) (bool, error)
	balanceOrDefaultFn func(ctx context.Context, accountID string) int64
	historyFn          func(ctx context.Context, accountID string, limit int) ([]store.LedgerEntry, error)
	selfCheckFn        func(ctx context.Context, accountID string) (store.AccountBalanceSummary, error)
}

func (s stubLedger) EnsureAccount(ctx context.Context, identity services.Identity) (store.Account, error) {
	if s.ensureAccountFn == nil {
		return store.Account{ID: "acct_" + identity.ExternalUserID, ExternalUserID: identity.ExternalUserID, Tokens: 10000}, nil
	}
	return s.ensureAccountFn(ctx, identity)
}

func (s stubLedger) CheckBalance(ctx context.Context, accountID string, needed int64) (bool, error) {
	if s.checkBalanceFn == nil {
		return true, nil
	}
	return s.checkBalanceFn(ctx, accountID, needed)
}

func (s stubLedger) BalanceOrDefault(ctx context.Context, accountID string) int64 {
	if s.balanceOrDefaultFn == nil {
		return 10000
	}
	return s.balanceOrDefaultFn(ctx, accountID)
}

func (s stubLedger) History(ctx context.Context, accountID string, limit int) ([]store.LedgerEntry, error) {
	if s.historyFn == nil {
		return nil, nil
	}
	return s.historyFn(ctx, accountID, limit)
}

func (s stubLedger) SelfCheck(ctx context.Context, accountID string) (store.AccountBalanceSummary, error) {
	if s.selfCheckFn == nil {
		return store.AccountBalanceSummary{ID: accountID}, nil
	}
	return s.selfCheckFn(ctx, accountID)
}

type stubCosts struct {
	listFn func(ctx context.Context) []feature.Price
	seedFn func(ctx context.Context) (int, error)
}

func (s stubCosts) List(ctx context.Context) []feature.Price {
	if s.listFn == nil {
		return feature.Defaults()
	}
	return s.listFn(ctx)
}

func (s stubCosts) Seed(ctx context.Context) (int, error) {
	if s.seedFn == nil {
		return 0, nil
	}
	return s.seedFn(ctx)
}

type stubRunner struct {
	runFn func(ctx context.Context, req services.GenerateRequest) (services.GenerateResult, error)
}

func (s stubRunner) Run(ctx context.Context, req services.GenerateRequest) (services.GenerateResult, error) {
	if s.runFn == nil {
		return services.GenerateResult{Feature: req.Feature}, nil
	}
	return s.runFn(ctx, req)
}

type stubPayments struct {
	createOrderFn     func(ctx context.Context, accountID, packageID string) (services.OrderResult, error)
	verifyAndRecordFn func(ctx context.Context, accountID string, cb services.PaymentCallback) (services.RecordResult, error)
	historyFn         func(ctx context.Context, accountID string, limit int) ([]store.Payment, error)
}

func (s stubPayments) CreateOrder(ctx context.Context, accountID, packageID string) (services.OrderResult, error) {
	if s.createOrderFn == nil {
		return services.OrderResult{}, nil
	}
	return s.createOrderFn(ctx, accountID, packageID)
}

func (s stubPayments) VerifyAndRecord(ctx context.Context, accountID string, cb services.PaymentCallback) (services.RecordResult, error) {
	if s.verifyAndRecordFn == nil {
		return services.RecordResult{Status: services.StatusProcessed}, nil
	}
	return s.verifyAndRecordFn(ctx, accountID, cb)
}

func (s stubPayments) History(ctx context.Context, accountID string, limit int) ([]store.Payment, error) {
	if s.historyFn == nil {
		return nil, nil
	}
	return s.historyFn(ctx, accountID, limit)
}

type stubDrift struct {
	listDriftFn func(ctx context.Context) ([]store.AccountBalanceSummary, error)
}

func (s stubDrift) ListDrift(ctx context.Context) ([]store.AccountBalanceSummary, error) {
	if s.listDriftFn == nil {
		return nil, nil
	}
	return s.listDriftFn(ctx)
}

type testDeps struct {
	ledger   stubLedger
	costs    stubCosts
	runner   stubRunner
	payments stubPayments
	drift    stubDrift
}

func newTestHandler(deps testDeps) http.Handler {
	cfg := config.Config{JWTSecret: testSecret, AllowedOrigins: "*"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, logger, deps.ledger, deps.costs, deps.runner, deps.payments, deps.drift, websocket.NewHub()).Routes()
}

func serveWithAuth(t *testing.T, handler http.Handler, method, target, body string, roles ...string) *httptest.ResponseRecorder {
	t.Helper()
	token, err := auth.GenerateToken(testSecret, "user_1", time.Minute, roles...)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rr, req)
	return rr
}

func stringPtr(value string) *string {
	return &value
}
