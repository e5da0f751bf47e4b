package services

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"aspire/internal/cache"
	"aspire/internal/gateway"
	"aspire/internal/store"
	"aspire/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// memState is an in-memory database. Transactions are serialized by memTxRunner and
// rolled back by restoring a snapshot, so it behaves like a serializable store.
type memState struct {
	mu       sync.Mutex
	seq      int64
	accounts map[string]store.Account
	entries  []memEntry
	payments map[string]store.Payment
	costs    map[string]store.FeatureCost
	outbox   []store.OutboxInput

	failEntryInsert  error
	failCostRead     error
	failAccountRead  error
	failOutboxInsert error
}

type memEntry struct {
	seq   int64
	entry store.LedgerEntry
}

type memSnapshot struct {
	seq      int64
	accounts map[string]store.Account
	entries  []memEntry
	payments map[string]store.Payment
	costs    map[string]store.FeatureCost
	outbox   []store.OutboxInput
}

func newMemState() *memState {
	return &memState{
		accounts: map[string]store.Account{},
		payments: map[string]store.Payment{},
		costs:    map[string]store.FeatureCost{},
	}
}

func (s *memState) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		seq:      s.seq,
		accounts: make(map[string]store.Account, len(s.accounts)),
		entries:  append([]memEntry(nil), s.entries...),
		payments: make(map[string]store.Payment, len(s.payments)),
		costs:    make(map[string]store.FeatureCost, len(s.costs)),
		outbox:   append([]store.OutboxInput(nil), s.outbox...),
	}
	for k, v := range s.accounts {
		snap.accounts[k] = v
	}
	for k, v := range s.payments {
		snap.payments[k] = v
	}
	for k, v := range s.costs {
		snap.costs[k] = v
	}
	return snap
}

func (s *memState) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = snap.seq
	s.accounts = snap.accounts
	s.entries = snap.entries
	s.payments = snap.payments
	s.costs = snap.costs
	s.outbox = snap.outbox
}

type memTxRunner struct {
	mu    sync.Mutex
	state *memState
}

func (r *memTxRunner) WithTx(_ context.Context, fn func(*sqlx.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.state.snapshot()
	if err := fn(nil); err != nil {
		r.state.restore(snap)
		return err
	}
	return nil
}

type memAccounts struct{ s *memState }

func (m memAccounts) Create(_ context.Context, _ store.Execer, input store.AccountInput) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, account := range m.s.accounts {
		if account.ExternalUserID == input.ExternalUserID {
			return &pq.Error{Code: "23505"}
		}
	}
	m.s.accounts[input.ID] = store.Account{
		ID:             input.ID,
		ExternalUserID: input.ExternalUserID,
		Email:          input.Email,
		Name:           input.Name,
		CreatedAt:      time.Now(),
	}
	return nil
}

func (m memAccounts) GetByID(_ context.Context, accountID string) (store.Account, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failAccountRead != nil {
		return store.Account{}, m.s.failAccountRead
	}
	account, ok := m.s.accounts[accountID]
	if !ok {
		return store.Account{}, sql.ErrNoRows
	}
	return account, nil
}

func (m memAccounts) GetByExternalID(_ context.Context, externalUserID string) (store.Account, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, account := range m.s.accounts {
		if account.ExternalUserID == externalUserID {
			return account, nil
		}
	}
	return store.Account{}, sql.ErrNoRows
}

func (m memAccounts) GetForUpdate(_ context.Context, _ store.Getter, accountID string) (store.Account, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	account, ok := m.s.accounts[accountID]
	if !ok {
		return store.Account{}, sql.ErrNoRows
	}
	return account, nil
}

func (m memAccounts) AdjustBalance(_ context.Context, _ store.Execer, accountID string, delta int64) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	account, ok := m.s.accounts[accountID]
	if !ok || account.Tokens+delta < 0 {
		return 0, nil
	}
	account.Tokens += delta
	m.s.accounts[accountID] = account
	return 1, nil
}

func (m memAccounts) BalanceSummary(_ context.Context, accountID string) (store.AccountBalanceSummary, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	account, ok := m.s.accounts[accountID]
	if !ok {
		return store.AccountBalanceSummary{}, sql.ErrNoRows
	}
	var sum, count int64
	for _, e := range m.s.entries {
		if e.entry.AccountID == accountID {
			sum += e.entry.Amount
			count++
		}
	}
	return store.AccountBalanceSummary{
		ID:                accountID,
		ExternalUserID:    account.ExternalUserID,
		StoredBalance:     account.Tokens,
		CalculatedBalance: sum,
		Difference:        account.Tokens - sum,
		EntryCount:        count,
	}, nil
}

type memLedger struct{ s *memState }

func (m memLedger) Insert(_ context.Context, _ store.Execer, input store.LedgerEntryInput) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failEntryInsert != nil {
		return m.s.failEntryInsert
	}
	m.s.seq++
	m.s.entries = append(m.s.entries, memEntry{seq: m.s.seq, entry: store.LedgerEntry{
		ID:          input.ID,
		AccountID:   input.AccountID,
		Amount:      input.Amount,
		Description: input.Description,
		FeatureType: input.FeatureType,
		CreatedAt:   time.Now(),
	}})
	return nil
}

func (m memLedger) Recent(_ context.Context, accountID string, limit int) ([]store.LedgerEntry, error) {
	all := m.s.entriesFor(accountID)
	sort.Slice(all, func(i, j int) bool { return all[i].seq > all[j].seq })
	var out []store.LedgerEntry
	for _, e := range all {
		if len(out) == limit {
			break
		}
		out = append(out, e.entry)
	}
	return out, nil
}

func (m memLedger) ListAscending(_ context.Context, accountID string) ([]store.LedgerEntry, error) {
	all := m.s.entriesFor(accountID)
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })
	out := make([]store.LedgerEntry, 0, len(all))
	for _, e := range all {
		out = append(out, e.entry)
	}
	return out, nil
}

func (s *memState) entriesFor(accountID string) []memEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []memEntry
	for _, e := range s.entries {
		if e.entry.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out
}

type memOutbox struct{ s *memState }

func (m memOutbox) Insert(_ context.Context, _ store.Execer, input store.OutboxInput) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failOutboxInsert != nil {
		return m.s.failOutboxInsert
	}
	m.s.outbox = append(m.s.outbox, input)
	return nil
}

type memPayments struct{ s *memState }

func (m memPayments) Create(_ context.Context, _ store.Execer, input store.PaymentInput) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, exists := m.s.payments[input.ExternalOrderID]; exists {
		return &pq.Error{Code: "23505"}
	}
	m.s.payments[input.ExternalOrderID] = store.Payment{
		ID:              input.ID,
		AccountID:       input.AccountID,
		Amount:          input.Amount,
		Currency:        input.Currency,
		ExternalOrderID: input.ExternalOrderID,
		PackageID:       input.PackageID,
		TokensAdded:     input.TokensAdded,
		Status:          store.PaymentPending,
		CreatedAt:       time.Now(),
	}
	return nil
}

func (m memPayments) GetByOrderID(_ context.Context, orderID string) (store.Payment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	payment, ok := m.s.payments[orderID]
	if !ok {
		return store.Payment{}, sql.ErrNoRows
	}
	return payment, nil
}

func (m memPayments) GetByOrderIDForUpdate(ctx context.Context, _ store.Getter, orderID string) (store.Payment, error) {
	return m.GetByOrderID(ctx, orderID)
}

func (m memPayments) MarkCompleted(_ context.Context, _ store.Execer, paymentID string, externalPaymentID *string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for orderID, payment := range m.s.payments {
		if payment.ID != paymentID || payment.Status != store.PaymentPending {
			continue
		}
		now := time.Now()
		payment.Status = store.PaymentCompleted
		payment.CompletedAt = &now
		if externalPaymentID != nil {
			payment.ExternalPaymentID = externalPaymentID
		}
		m.s.payments[orderID] = payment
		return 1, nil
	}
	return 0, nil
}

func (m memPayments) ListByAccount(_ context.Context, accountID string, limit int) ([]store.Payment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []store.Payment
	for _, payment := range m.s.payments {
		if payment.AccountID == accountID {
			out = append(out, payment)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memCosts struct{ s *memState }

func (m memCosts) Get(_ context.Context, featureName string) (store.FeatureCost, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failCostRead != nil {
		return store.FeatureCost{}, m.s.failCostRead
	}
	row, ok := m.s.costs[featureName]
	if !ok {
		return store.FeatureCost{}, sql.ErrNoRows
	}
	return row, nil
}

func (m memCosts) List(_ context.Context) ([]store.FeatureCost, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failCostRead != nil {
		return nil, m.s.failCostRead
	}
	var out []store.FeatureCost
	for _, row := range m.s.costs {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FeatureName < out[j].FeatureName })
	return out, nil
}

func (m memCosts) Upsert(_ context.Context, _ store.Execer, input store.FeatureCostInput) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	row, ok := m.s.costs[input.FeatureName]
	if !ok {
		row.ID = "cost-" + input.FeatureName
	}
	row.FeatureName = input.FeatureName
	row.TokenCost = input.TokenCost
	row.Description = input.Description
	m.s.costs[input.FeatureName] = row
	return nil
}

type recordingHub struct {
	mu      sync.Mutex
	updates []websocket.BalanceUpdate
}

func (h *recordingHub) BroadcastBalance(_ string, update websocket.BalanceUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, update)
}

// mapCache is a process-local cache.Cache.
type mapCache struct {
	mu     sync.Mutex
	values map[string]int64
}

func newMapCache() *mapCache {
	return &mapCache{values: map[string]int64{}}
}

func (c *mapCache) GetInt(_ context.Context, key string) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.values[key]
	return value, ok, nil
}

func (c *mapCache) SetInt(_ context.Context, key string, value int64, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *mapCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.values, key)
	}
	return nil
}

type stubGateway struct {
	nextID         string
	err            error
	amountOverride int64
	calls          []gateway.OrderRequest
}

func (g *stubGateway) CreateOrder(_ context.Context, req gateway.OrderRequest) (gateway.Order, error) {
	g.calls = append(g.calls, req)
	if g.err != nil {
		return gateway.Order{}, g.err
	}
	amount := req.AmountMinor
	if g.amountOverride != 0 {
		amount = g.amountOverride
	}
	return gateway.Order{ID: g.nextID, Amount: amount, Currency: req.Currency, Status: "created"}, nil
}

const testKeySecret = "test-secret"

type testEnv struct {
	state    *memState
	runner   *memTxRunner
	hub      *recordingHub
	cache    *mapCache
	gateway  *stubGateway
	ledger   *Ledger
	costs    *CostRegistry
	payments *PaymentService
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	state := newMemState()
	runner := &memTxRunner{state: state}
	hub := &recordingHub{}
	balances := newMapCache()
	orders := &stubGateway{nextID: "order_1"}
	logger := testLogger()
	ledger := NewLedger(runner, memAccounts{state}, memLedger{state}, memOutbox{state}, hub, balances, logger, LedgerConfig{
		DefaultBalance: 10000,
		SignupGrant:    10000,
	})
	costs := NewCostRegistry(runner, memCosts{state}, balances, logger, time.Minute)
	payments := NewPaymentService(runner, memPayments{state}, memOutbox{state}, ledger, orders, cache.NopLocker{}, logger, PaymentConfig{
		KeyID:     "rzp_test",
		KeySecret: testKeySecret,
	})
	return &testEnv{
		state:    state,
		runner:   runner,
		hub:      hub,
		cache:    balances,
		gateway:  orders,
		ledger:   ledger,
		costs:    costs,
		payments: payments,
	}
}

// newAccount signs a user in, which grants the opening 10000 tokens.
func (e *testEnv) newAccount(t *testing.T, externalID string) string {
	t.Helper()
	account, err := e.ledger.EnsureAccount(context.Background(), Identity{ExternalUserID: externalID, Email: externalID + "@example.com"})
	if err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	return account.ID
}

func (e *testEnv) balance(t *testing.T, accountID string) int64 {
	t.Helper()
	e.state.mu.Lock()
	defer e.state.mu.Unlock()
	return e.state.accounts[accountID].Tokens
}

func (e *testEnv) entries(accountID string) []store.LedgerEntry {
	var out []store.LedgerEntry
	for _, row := range e.state.entriesFor(accountID) {
		out = append(out, row.entry)
	}
	return out
}

// assertInvariant checks balance == sum(entries) for every account.
func (e *testEnv) assertInvariant(t *testing.T) {
	t.Helper()
	snap := e.state.snapshot()
	sums := map[string]int64{}
	for _, entry := range snap.entries {
		sums[entry.entry.AccountID] += entry.entry.Amount
	}
	for id, account := range snap.accounts {
		if account.Tokens < 0 {
			t.Fatalf("account %s has negative balance %d", id, account.Tokens)
		}
		if account.Tokens != sums[id] {
			t.Fatalf("account %s balance %d != ledger sum %d", id, account.Tokens, sums[id])
		}
	}
}

func (e *testEnv) seedPayment(t *testing.T, accountID, orderID, packageID string) {
	t.Helper()
	pkg, err := PackageByID(packageID)
	if err != nil {
		t.Fatalf("PackageByID: %v", err)
	}
	if err := (memPayments{e.state}).Create(context.Background(), nil, store.PaymentInput{
		ID:              "pay-" + orderID,
		AccountID:       accountID,
		Amount:          pkg.Price,
		Currency:        "INR",
		ExternalOrderID: orderID,
		PackageID:       pkg.ID,
		TokensAdded:     pkg.Tokens,
	}); err != nil {
		t.Fatalf("seed payment: %v", err)
	}
}

var errBoom = errors.New("boom")
