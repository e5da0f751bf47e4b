package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentPending   = "PENDING"
	PaymentCompleted = "COMPLETED"
)

type PaymentStore struct {
	db DB
}

type Payment struct {
	ID                string          `db:"id"`
	AccountID         string          `db:"account_id"`
	Amount            decimal.Decimal `db:"amount"`
	Currency          string          `db:"currency"`
	ExternalOrderID   string          `db:"external_order_id"`
	ExternalPaymentID *string         `db:"external_payment_id"`
	PackageID         string          `db:"package_id"`
	TokensAdded       int64           `db:"tokens_added"`
	Status            string          `db:"status"`
	CreatedAt         time.Time       `db:"created_at"`
	CompletedAt       *time.Time      `db:"completed_at"`
}

type PaymentInput struct {
	ID              string
	AccountID       string
	Amount          decimal.Decimal
	Currency        string
	ExternalOrderID string
	PackageID       string
	TokensAdded     int64
}

func NewPaymentStore(db DB) *PaymentStore {
	return &PaymentStore{db: db}
}

func (s *PaymentStore) Create(ctx context.Context, tx Execer, input PaymentInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO payments (id, account_id, amount, currency, external_order_id, package_id, tokens_added, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, input.ID, input.AccountID, input.Amount, input.Currency, input.ExternalOrderID, input.PackageID, input.TokensAdded, PaymentPending)
	return err
}

func (s *PaymentStore) GetByOrderIDForUpdate(ctx context.Context, tx Getter, orderID string) (Payment, error) {
	var row Payment
	err := tx.GetContext(ctx, &row, `
		SELECT id, account_id, amount, currency, external_order_id, external_payment_id,
		       package_id, tokens_added, status, created_at, completed_at
		FROM payments
		WHERE external_order_id = $1
		FOR UPDATE
	`, orderID)
	if err != nil {
		return Payment{}, err
	}
	return row, nil
}

// MarkCompleted moves a PENDING payment to COMPLETED. Zero rows affected means another
// caller completed it first.
func (s *PaymentStore) MarkCompleted(ctx context.Context, tx Execer, paymentID string, externalPaymentID *string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE payments
		SET status = $1, external_payment_id = COALESCE($2, external_payment_id), completed_at = NOW()
		WHERE id = $3 AND status = $4
	`, PaymentCompleted, externalPaymentID, paymentID, PaymentPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PaymentStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]Payment, error) {
	var rows []Payment
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, account_id, amount, currency, external_order_id, external_payment_id,
		       package_id, tokens_added, status, created_at, completed_at
		FROM payments
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
