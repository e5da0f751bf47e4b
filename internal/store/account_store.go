package store

import (
	"context"
	"time"
)

type AccountStore struct {
	db DB
}

type Account struct {
	ID             string    `db:"id"`
	ExternalUserID string    `db:"external_user_id"`
	Email          *string   `db:"email"`
	Name           *string   `db:"name"`
	Industry       *string   `db:"industry"`
	Tokens         int64     `db:"tokens"`
	CreatedAt      time.Time `db:"created_at"`
}

type AccountInput struct {
	ID             string
	ExternalUserID string
	Email          *string
	Name           *string
}

// AccountBalanceSummary compares the stored balance with the sum of the ledger.
type AccountBalanceSummary struct {
	ID                string `db:"id"`
	ExternalUserID    string `db:"external_user_id"`
	StoredBalance     int64  `db:"stored_balance"`
	CalculatedBalance int64  `db:"calculated_balance"`
	Difference        int64  `db:"difference"`
	EntryCount        int64  `db:"entry_count"`
}

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

// Create inserts an account with a zero balance. Opening grants go through the ledger.
func (s *AccountStore) Create(ctx context.Context, tx Execer, input AccountInput) error {
	query := `
		INSERT INTO accounts (id, external_user_id, email, name, tokens)
		VALUES ($1, $2, $3, $4, 0)
	`
	_, err := tx.ExecContext(ctx, query, input.ID, input.ExternalUserID, input.Email, input.Name)
	return err
}

func (s *AccountStore) GetByID(ctx context.Context, accountID string) (Account, error) {
	var row Account
	err := s.db.GetContext(ctx, &row, `
		SELECT id, external_user_id, email, name, industry, tokens, created_at
		FROM accounts
		WHERE id = $1
	`, accountID)
	if err != nil {
		return Account{}, err
	}
	return row, nil
}

func (s *AccountStore) GetByExternalID(ctx context.Context, externalUserID string) (Account, error) {
	var row Account
	err := s.db.GetContext(ctx, &row, `
		SELECT id, external_user_id, email, name, industry, tokens, created_at
		FROM accounts
		WHERE external_user_id = $1
	`, externalUserID)
	if err != nil {
		return Account{}, err
	}
	return row, nil
}

func (s *AccountStore) GetForUpdate(ctx context.Context, tx Getter, accountID string) (Account, error) {
	var row Account
	err := tx.GetContext(ctx, &row, `
		SELECT id, external_user_id, email, name, industry, tokens, created_at
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`, accountID)
	if err != nil {
		return Account{}, err
	}
	return row, nil
}

// AdjustBalance applies delta and returns the number of rows changed. The guard in the
// WHERE clause keeps the balance non-negative even if a caller skipped its own check.
func (s *AccountStore) AdjustBalance(ctx context.Context, tx Execer, accountID string, delta int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET tokens = tokens + $1, updated_at = NOW()
		WHERE id = $2 AND tokens + $1 >= 0
	`, delta, accountID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *AccountStore) BalanceSummary(ctx context.Context, accountID string) (AccountBalanceSummary, error) {
	var row AccountBalanceSummary
	err := s.db.GetContext(ctx, &row, `
		SELECT a.id,
		       a.external_user_id,
		       a.tokens AS stored_balance,
		       COALESCE(SUM(t.amount), 0) AS calculated_balance,
		       (a.tokens - COALESCE(SUM(t.amount), 0)) AS difference,
		       COUNT(t.id) AS entry_count
		FROM accounts a
		LEFT JOIN token_transactions t ON t.account_id = a.id
		WHERE a.id = $1
		GROUP BY a.id, a.external_user_id, a.tokens
	`, accountID)
	if err != nil {
		return AccountBalanceSummary{}, err
	}
	return row, nil
}

// ListDrift returns every account whose stored balance disagrees with its ledger.
func (s *AccountStore) ListDrift(ctx context.Context) ([]AccountBalanceSummary, error) {
	var rows []AccountBalanceSummary
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.id,
		       a.external_user_id,
		       a.tokens AS stored_balance,
		       COALESCE(SUM(t.amount), 0) AS calculated_balance,
		       (a.tokens - COALESCE(SUM(t.amount), 0)) AS difference,
		       COUNT(t.id) AS entry_count
		FROM accounts a
		LEFT JOIN token_transactions t ON t.account_id = a.id
		GROUP BY a.id, a.external_user_id, a.tokens
		HAVING a.tokens <> COALESCE(SUM(t.amount), 0)
		ORDER BY a.created_at
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
