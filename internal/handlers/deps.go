package handlers

import (
	"context"

	"aspire/internal/feature"
	"aspire/internal/services"
	"aspire/internal/store"
)

type Ledger interface {
	EnsureAccount(ctx context.Context, identity services.Identity) (store.Account, error)
	CheckBalance(ctx context.Context, accountID string, needed int64) (bool, error)
	BalanceOrDefault(ctx context.Context, accountID string) int64
	History(ctx context.Context, accountID string, limit int) ([]store.LedgerEntry, error)
	SelfCheck(ctx context.Context, accountID string) (store.AccountBalanceSummary, error)
}

type CostCatalog interface {
	List(ctx context.Context) []feature.Price
	Seed(ctx context.Context) (int, error)
}

type FeatureRunner interface {
	Run(ctx context.Context, req services.GenerateRequest) (services.GenerateResult, error)
}

type PaymentService interface {
	CreateOrder(ctx context.Context, accountID, packageID string) (services.OrderResult, error)
	VerifyAndRecord(ctx context.Context, accountID string, cb services.PaymentCallback) (services.RecordResult, error)
	History(ctx context.Context, accountID string, limit int) ([]store.Payment, error)
}

type DriftReporter interface {
	ListDrift(ctx context.Context) ([]store.AccountBalanceSummary, error)
}
