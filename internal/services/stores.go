package services

import (
	"context"

	"aspire/internal/store"
	"aspire/internal/websocket"
)

type AccountStore interface {
	Create(ctx context.Context, tx store.Execer, input store.AccountInput) error
	GetByID(ctx context.Context, accountID string) (store.Account, error)
	GetByExternalID(ctx context.Context, externalUserID string) (store.Account, error)
	GetForUpdate(ctx context.Context, tx store.Getter, accountID string) (store.Account, error)
	AdjustBalance(ctx context.Context, tx store.Execer, accountID string, delta int64) (int64, error)
	BalanceSummary(ctx context.Context, accountID string) (store.AccountBalanceSummary, error)
}

type LedgerStore interface {
	Insert(ctx context.Context, tx store.Execer, entry store.LedgerEntryInput) error
	Recent(ctx context.Context, accountID string, limit int) ([]store.LedgerEntry, error)
	ListAscending(ctx context.Context, accountID string) ([]store.LedgerEntry, error)
}

type OutboxStore interface {
	Insert(ctx context.Context, tx store.Execer, input store.OutboxInput) error
}

type PaymentStore interface {
	Create(ctx context.Context, tx store.Execer, input store.PaymentInput) error
	GetByOrderIDForUpdate(ctx context.Context, tx store.Getter, orderID string) (store.Payment, error)
	MarkCompleted(ctx context.Context, tx store.Execer, paymentID string, externalPaymentID *string) (int64, error)
	ListByAccount(ctx context.Context, accountID string, limit int) ([]store.Payment, error)
}

type FeatureCostStore interface {
	Get(ctx context.Context, featureName string) (store.FeatureCost, error)
	List(ctx context.Context) ([]store.FeatureCost, error)
	Upsert(ctx context.Context, tx store.Execer, input store.FeatureCostInput) error
}

type BalanceHub interface {
	BroadcastBalance(accountID string, update websocket.BalanceUpdate)
}

var (
	_ AccountStore     = (*store.AccountStore)(nil)
	_ LedgerStore      = (*store.LedgerStore)(nil)
	_ OutboxStore      = (*store.OutboxStore)(nil)
	_ PaymentStore     = (*store.PaymentStore)(nil)
	_ FeatureCostStore = (*store.FeatureCostStore)(nil)
	_ BalanceHub       = (*websocket.Hub)(nil)
)
