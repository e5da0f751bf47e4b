package store

import (
	"context"
	"time"
)

type LedgerStore struct {
	db DB
}

type LedgerEntry struct {
	ID          string    `db:"id"`
	AccountID   string    `db:"account_id"`
	Amount      int64     `db:"amount"`
	Description string    `db:"description"`
	FeatureType *string   `db:"feature_type"`
	CreatedAt   time.Time `db:"created_at"`
}

type LedgerEntryInput struct {
	ID          string
	AccountID   string
	Amount      int64
	Description string
	FeatureType *string
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) Insert(ctx context.Context, tx Execer, entry LedgerEntryInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO token_transactions (id, account_id, amount, description, feature_type)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.ID, entry.AccountID, entry.Amount, entry.Description, entry.FeatureType)
	return err
}

// Recent lists the newest entries first.
func (s *LedgerStore) Recent(ctx context.Context, accountID string, limit int) ([]LedgerEntry, error) {
	var rows []LedgerEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, account_id, amount, description, feature_type, created_at
		FROM token_transactions
		WHERE account_id = $1
		ORDER BY seq DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListAscending returns every entry of the account in creation order.
func (s *LedgerStore) ListAscending(ctx context.Context, accountID string) ([]LedgerEntry, error) {
	var rows []LedgerEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, account_id, amount, description, feature_type, created_at
		FROM token_transactions
		WHERE account_id = $1
		ORDER BY seq ASC
	`, accountID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
