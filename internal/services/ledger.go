package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"aspire/internal/cache"
	"aspire/internal/db"
	"aspire/internal/events"
	"aspire/internal/feature"
	"aspire/internal/metrics"
	"aspire/internal/store"
	"aspire/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type LedgerConfig struct {
	LedgerTopic    string
	DefaultBalance int64
	SignupGrant    int64
	CacheTTL       time.Duration
}

// Ledger is the only writer of account balances. Every mutation locks the account row,
// appends the matching token_transactions entry and an outbox event, and commits all of
// them in one serializable transaction.
type Ledger struct {
	txRunner db.TxRunner
	accounts AccountStore
	entries  LedgerStore
	outbox   OutboxStore
	hub      BalanceHub
	cache    cache.Cache
	logger   *slog.Logger
	cfg      LedgerConfig
}

func NewLedger(txRunner db.TxRunner, accounts AccountStore, entries LedgerStore, outbox OutboxStore, hub BalanceHub, balanceCache cache.Cache, logger *slog.Logger, cfg LedgerConfig) *Ledger {
	if cfg.LedgerTopic == "" {
		cfg.LedgerTopic = "token.ledger"
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &Ledger{
		txRunner: txRunner,
		accounts: accounts,
		entries:  entries,
		outbox:   outbox,
		hub:      hub,
		cache:    balanceCache,
		logger:   logger,
		cfg:      cfg,
	}
}

type DebitRequest struct {
	AccountID   string
	Amount      int64
	Description string
	Feature     feature.Type
}

type DebitResult struct {
	EntryID          string
	RemainingBalance int64
}

type CreditRequest struct {
	AccountID   string
	Amount      int64
	Description string
}

type CreditResult struct {
	EntryID    string
	NewBalance int64
}

// posting describes one committed balance change.
type posting struct {
	entryID   string
	accountID string
	delta     int64
	balance   int64
	tag       feature.Type
}

// CheckBalance reports whether the account holds at least needed tokens. It reads the
// stored balance and never the cache, which may lag a concurrent commit.
func (l *Ledger) CheckBalance(ctx context.Context, accountID string, needed int64) (bool, error) {
	if accountID == "" {
		return false, ErrUnauthenticated
	}
	if needed < 0 {
		return false, ErrInvalidAmount
	}
	account, err := l.accounts.GetByID(ctx, accountID)
	if err != nil {
		return false, mapAccountErr(err)
	}
	return account.Tokens >= needed, nil
}

func (l *Ledger) Debit(ctx context.Context, req DebitRequest) (DebitResult, error) {
	if req.AccountID == "" {
		return DebitResult{}, ErrUnauthenticated
	}
	if req.Amount <= 0 {
		return DebitResult{}, ErrInvalidAmount
	}
	var p posting
	err := l.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		p, err = l.apply(ctx, tx, req.AccountID, -req.Amount, req.Description, req.Feature)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientTokens) {
			metrics.DebitRejections.WithLabelValues("insufficient_tokens").Inc()
		}
		return DebitResult{}, err
	}
	l.afterCommit(ctx, p)
	return DebitResult{EntryID: p.entryID, RemainingBalance: p.balance}, nil
}

// Credit adds purchased tokens. The entry is tagged as a purchase.
func (l *Ledger) Credit(ctx context.Context, req CreditRequest) (CreditResult, error) {
	if req.AccountID == "" {
		return CreditResult{}, ErrUnauthenticated
	}
	if req.Amount <= 0 {
		return CreditResult{}, ErrInvalidAmount
	}
	var p posting
	err := l.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		p, err = l.apply(ctx, tx, req.AccountID, req.Amount, req.Description, feature.Purchase)
		return err
	})
	if err != nil {
		return CreditResult{}, err
	}
	l.afterCommit(ctx, p)
	return CreditResult{EntryID: p.entryID, NewBalance: p.balance}, nil
}

// GetBalance is the cached display read. A value cached by a read that raced a commit
// can be served until CacheTTL expires.
func (l *Ledger) GetBalance(ctx context.Context, accountID string) (int64, error) {
	if accountID == "" {
		return 0, ErrUnauthenticated
	}
	key := cache.BalanceKey(accountID)
	if cached, ok, err := l.cache.GetInt(ctx, key); err != nil {
		l.logger.Warn("balance cache read failed", "account_id", accountID, "error", err)
	} else if ok {
		return cached, nil
	}
	account, err := l.accounts.GetByID(ctx, accountID)
	if err != nil {
		return 0, mapAccountErr(err)
	}
	if err := l.cache.SetInt(ctx, key, account.Tokens, l.cfg.CacheTTL); err != nil {
		l.logger.Warn("balance cache write failed", "account_id", accountID, "error", err)
	}
	return account.Tokens, nil
}

// BalanceOrDefault is the display read: any failure yields the configured default
// balance, logged and counted so outages stay visible.
func (l *Ledger) BalanceOrDefault(ctx context.Context, accountID string) int64 {
	balance, err := l.GetBalance(ctx, accountID)
	if err != nil {
		metrics.BalanceFallbacks.Inc()
		l.logger.Warn("balance read failed, serving default", "account_id", accountID, "default", l.cfg.DefaultBalance, "error", err)
		return l.cfg.DefaultBalance
	}
	return balance
}

// History lists the newest entries first.
func (l *Ledger) History(ctx context.Context, accountID string, limit int) ([]store.LedgerEntry, error) {
	if accountID == "" {
		return nil, ErrUnauthenticated
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return l.entries.Recent(ctx, accountID, limit)
}

// SelfCheck compares the stored balance with the ledger sum.
func (l *Ledger) SelfCheck(ctx context.Context, accountID string) (store.AccountBalanceSummary, error) {
	if accountID == "" {
		return store.AccountBalanceSummary{}, ErrUnauthenticated
	}
	summary, err := l.accounts.BalanceSummary(ctx, accountID)
	if err != nil {
		return store.AccountBalanceSummary{}, mapAccountErr(err)
	}
	if summary.Difference != 0 {
		l.logger.Error("ledger drift detected", "account_id", accountID, "stored", summary.StoredBalance, "calculated", summary.CalculatedBalance)
	}
	return summary, nil
}

type ReplayedEntry struct {
	store.LedgerEntry
	RunningBalance int64
}

// Reconstruction is an account's balance rebuilt by replaying its ledger from the
// first entry.
type Reconstruction struct {
	AccountID       string
	StoredBalance   int64
	ReplayedBalance int64
	Entries         []ReplayedEntry
	// FirstNegativeEntry is the entry after which the running balance dropped below
	// zero, or empty.
	FirstNegativeEntry string
}

func (r Reconstruction) Consistent() bool {
	return r.StoredBalance == r.ReplayedBalance && r.FirstNegativeEntry == ""
}

// Reconstruct replays the account's entries in creation order.
func (l *Ledger) Reconstruct(ctx context.Context, accountID string) (Reconstruction, error) {
	if accountID == "" {
		return Reconstruction{}, ErrUnauthenticated
	}
	account, err := l.accounts.GetByID(ctx, accountID)
	if err != nil {
		return Reconstruction{}, mapAccountErr(err)
	}
	entries, err := l.entries.ListAscending(ctx, accountID)
	if err != nil {
		return Reconstruction{}, fmt.Errorf("list ledger entries: %w", err)
	}
	out := Reconstruction{
		AccountID:     accountID,
		StoredBalance: account.Tokens,
		Entries:       make([]ReplayedEntry, 0, len(entries)),
	}
	var running int64
	for _, entry := range entries {
		running += entry.Amount
		if running < 0 && out.FirstNegativeEntry == "" {
			out.FirstNegativeEntry = entry.ID
		}
		out.Entries = append(out.Entries, ReplayedEntry{LedgerEntry: entry, RunningBalance: running})
	}
	out.ReplayedBalance = running
	if !out.Consistent() {
		l.logger.Error("ledger replay mismatch", "account_id", accountID, "stored", out.StoredBalance, "replayed", out.ReplayedBalance, "first_negative_entry", out.FirstNegativeEntry)
	}
	return out, nil
}

// apply runs inside the caller's transaction. Payment completion and sign-up reuse it so
// their credit commits together with their own writes.
func (l *Ledger) apply(ctx context.Context, tx *sqlx.Tx, accountID string, delta int64, description string, tag feature.Type) (posting, error) {
	account, err := l.accounts.GetForUpdate(ctx, tx, accountID)
	if err != nil {
		return posting{}, mapAccountErr(err)
	}
	if account.Tokens+delta < 0 {
		return posting{}, ErrInsufficientTokens
	}
	updated, err := l.accounts.AdjustBalance(ctx, tx, accountID, delta)
	if err != nil {
		return posting{}, fmt.Errorf("adjust balance: %w", err)
	}
	if updated == 0 {
		return posting{}, ErrInsufficientTokens
	}

	entryID := uuid.NewString()
	var tagValue *string
	if tag != "" {
		value := tag.String()
		tagValue = &value
	}
	if err := l.entries.Insert(ctx, tx, store.LedgerEntryInput{
		ID:          entryID,
		AccountID:   accountID,
		Amount:      delta,
		Description: description,
		FeatureType: tagValue,
	}); err != nil {
		return posting{}, fmt.Errorf("insert ledger entry: %w", err)
	}

	balance := account.Tokens + delta
	payload, err := events.Encode(events.LedgerEvent{
		EntryID:     entryID,
		AccountID:   accountID,
		Amount:      delta,
		Balance:     balance,
		Description: description,
		Feature:     tag.String(),
		OccurredAt:  time.Now().UTC(),
	})
	if err != nil {
		return posting{}, err
	}
	if err := l.outbox.Insert(ctx, tx, store.OutboxInput{
		ID:         uuid.NewString(),
		Topic:      l.cfg.LedgerTopic,
		MessageKey: accountID,
		Payload:    payload,
	}); err != nil {
		return posting{}, fmt.Errorf("insert outbox event: %w", err)
	}
	return posting{entryID: entryID, accountID: accountID, delta: delta, balance: balance, tag: tag}, nil
}

func (l *Ledger) afterCommit(ctx context.Context, p posting) {
	if err := l.cache.Delete(ctx, cache.BalanceKey(p.accountID)); err != nil {
		l.logger.Warn("balance cache invalidation failed", "account_id", p.accountID, "error", err)
	}
	l.hub.BroadcastBalance(p.accountID, websocket.BalanceUpdate{
		AccountID: p.accountID,
		Tokens:    p.balance,
		Delta:     p.delta,
		Reason:    p.tag.String(),
	})
	if p.delta < 0 {
		metrics.TokensDebited.WithLabelValues(p.tag.String()).Add(float64(-p.delta))
	} else {
		metrics.TokensCredited.WithLabelValues(p.tag.String()).Add(float64(p.delta))
	}
	l.logger.Info("ledger entry committed", "account_id", p.accountID, "entry_id", p.entryID, "amount", p.delta, "balance", p.balance, "feature", p.tag.String())
}

func mapAccountErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAccountNotFound
	}
	return err
}
