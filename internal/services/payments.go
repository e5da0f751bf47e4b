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
	"aspire/internal/gateway"
	"aspire/internal/metrics"
	"aspire/internal/money"
	"aspire/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	StatusProcessed        = "processed"
	StatusAlreadyProcessed = "already_processed"

	paymentLockTTL = 30 * time.Second
)

type OrderGateway interface {
	CreateOrder(ctx context.Context, req gateway.OrderRequest) (gateway.Order, error)
}

type PaymentConfig struct {
	PaymentTopic string
	KeyID        string
	KeySecret    string
	Currency     string
}

type PaymentService struct {
	txRunner db.TxRunner
	payments PaymentStore
	outbox   OutboxStore
	ledger   *Ledger
	gateway  OrderGateway
	locker   cache.Locker
	logger   *slog.Logger
	cfg      PaymentConfig
}

func NewPaymentService(txRunner db.TxRunner, payments PaymentStore, outbox OutboxStore, ledger *Ledger, orders OrderGateway, locker cache.Locker, logger *slog.Logger, cfg PaymentConfig) *PaymentService {
	if cfg.PaymentTopic == "" {
		cfg.PaymentTopic = "payment.completed"
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &PaymentService{
		txRunner: txRunner,
		payments: payments,
		outbox:   outbox,
		ledger:   ledger,
		gateway:  orders,
		locker:   locker,
		logger:   logger,
		cfg:      cfg,
	}
}

type OrderResult struct {
	OrderID     string `json:"orderId"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	KeyID       string `json:"keyId"`
	PackageID   string `json:"packageId"`
	Tokens      int64  `json:"tokens"`
}

// PaymentCallback is what the checkout widget posts back after a payment.
type PaymentCallback struct {
	OrderID   string
	PaymentID string
	Signature string
	PackageID string
}

type RecordResult struct {
	Status     string `json:"status"`
	Tokens     int64  `json:"tokensAdded"`
	NewBalance int64  `json:"newBalance,omitempty"`
}

// CreateOrder opens a gateway order for the package and records it as PENDING.
func (s *PaymentService) CreateOrder(ctx context.Context, accountID, packageID string) (OrderResult, error) {
	if accountID == "" {
		return OrderResult{}, ErrUnauthenticated
	}
	pkg, err := PackageByID(packageID)
	if err != nil {
		return OrderResult{}, err
	}
	amountMinor, err := money.ToMinor(pkg.Price)
	if err != nil {
		return OrderResult{}, err
	}
	paymentID := uuid.NewString()
	order, err := s.gateway.CreateOrder(ctx, gateway.OrderRequest{
		AmountMinor: amountMinor,
		Currency:    s.cfg.Currency,
		Receipt:     "rcpt_" + paymentID[:8],
		Notes: map[string]string{
			"accountId": accountID,
			"packageId": pkg.ID,
		},
	})
	if err != nil {
		return OrderResult{}, err
	}
	if order.Amount != 0 && order.Amount != amountMinor {
		return OrderResult{}, fmt.Errorf("%w: order amount %s, expected %s", gateway.ErrGatewayRejected,
			money.FormatMinor(order.Amount), money.FormatMinor(amountMinor))
	}

	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.payments.Create(ctx, tx, store.PaymentInput{
			ID:              paymentID,
			AccountID:       accountID,
			Amount:          money.FromMinor(amountMinor),
			Currency:        s.cfg.Currency,
			ExternalOrderID: order.ID,
			PackageID:       pkg.ID,
			TokensAdded:     pkg.Tokens,
		})
	})
	if err != nil {
		return OrderResult{}, fmt.Errorf("record order: %w", err)
	}
	s.logger.Info("payment order created", "account_id", accountID, "order_id", order.ID, "package_id", pkg.ID, "amount", money.Format(pkg.Price))
	return OrderResult{
		OrderID:     order.ID,
		AmountMinor: amountMinor,
		Currency:    s.cfg.Currency,
		KeyID:       s.cfg.KeyID,
		PackageID:   pkg.ID,
		Tokens:      pkg.Tokens,
	}, nil
}

// VerifyAndRecord authenticates a checkout callback for accountID and credits it. A
// callback for another account's order is reported as not found.
func (s *PaymentService) VerifyAndRecord(ctx context.Context, accountID string, cb PaymentCallback) (RecordResult, error) {
	if accountID == "" {
		return RecordResult{}, ErrUnauthenticated
	}
	if !gateway.Verify(s.cfg.KeySecret, cb.OrderID, cb.PaymentID, cb.Signature) {
		metrics.Payments.WithLabelValues("signature_mismatch").Inc()
		s.logger.Warn("payment signature mismatch", "account_id", accountID, "order_id", cb.OrderID)
		return RecordResult{}, ErrSignatureMismatch
	}
	paymentID := cb.PaymentID
	return s.record(ctx, cb.OrderID, cb.PackageID, &paymentID, accountID)
}

// RecordSuccessfulPayment completes the order and credits its owner exactly once.
// Repeated calls for a completed order report StatusAlreadyProcessed.
func (s *PaymentService) RecordSuccessfulPayment(ctx context.Context, orderID, packageID string) (RecordResult, error) {
	return s.record(ctx, orderID, packageID, nil, "")
}

func (s *PaymentService) record(ctx context.Context, orderID, packageID string, externalPaymentID *string, ownerID string) (RecordResult, error) {
	pkg, err := PackageByID(packageID)
	if err != nil {
		return RecordResult{}, err
	}
	if orderID == "" {
		return RecordResult{}, ErrPaymentNotFound
	}

	// The lock only narrows races; the status check under the row lock decides. A lock
	// backend outage therefore falls through to the database path.
	release, err := s.locker.Acquire(ctx, cache.PaymentLockKey(orderID), paymentLockTTL)
	switch {
	case errors.Is(err, cache.ErrLockNotAcquired):
		return RecordResult{}, fmt.Errorf("lock order %s: %w", orderID, err)
	case err != nil:
		s.logger.Warn("payment lock unavailable, relying on row lock", "order_id", orderID, "error", err)
	default:
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release payment lock", "order_id", orderID, "error", err)
			}
		}()
	}

	var (
		result RecordResult
		p      posting
	)
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		result = RecordResult{}
		p = posting{}
		payment, err := s.payments.GetByOrderIDForUpdate(ctx, tx, orderID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPaymentNotFound
		}
		if err != nil {
			return err
		}
		if ownerID != "" && payment.AccountID != ownerID {
			return ErrPaymentNotFound
		}
		if payment.Status == store.PaymentCompleted {
			result = RecordResult{Status: StatusAlreadyProcessed}
			return nil
		}
		if payment.PackageID != pkg.ID || payment.TokensAdded != pkg.Tokens {
			return ErrInvalidPackage
		}
		updated, err := s.payments.MarkCompleted(ctx, tx, payment.ID, externalPaymentID)
		if err != nil {
			return fmt.Errorf("complete payment: %w", err)
		}
		if updated == 0 {
			result = RecordResult{Status: StatusAlreadyProcessed}
			return nil
		}
		p, err = s.ledger.apply(ctx, tx, payment.AccountID, pkg.Tokens, "Purchased "+pkg.Description, feature.Purchase)
		if err != nil {
			return err
		}
		var paymentRef string
		if externalPaymentID != nil {
			paymentRef = *externalPaymentID
		}
		payload, err := events.Encode(events.PaymentCompletedEvent{
			PaymentID:         payment.ID,
			AccountID:         payment.AccountID,
			ExternalOrderID:   orderID,
			ExternalPaymentID: paymentRef,
			PackageID:         pkg.ID,
			TokensAdded:       pkg.Tokens,
			Amount:            money.Format(payment.Amount),
			Currency:          payment.Currency,
			OccurredAt:        time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		if err := s.outbox.Insert(ctx, tx, store.OutboxInput{
			ID:         uuid.NewString(),
			Topic:      s.cfg.PaymentTopic,
			MessageKey: orderID,
			Payload:    payload,
		}); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
		result = RecordResult{Status: StatusProcessed, Tokens: pkg.Tokens, NewBalance: p.balance}
		return nil
	})
	if err != nil {
		metrics.Payments.WithLabelValues("error").Inc()
		return RecordResult{}, err
	}
	metrics.Payments.WithLabelValues(result.Status).Inc()
	if result.Status == StatusAlreadyProcessed {
		s.logger.Info("payment already processed", "order_id", orderID)
		return result, nil
	}
	s.ledger.afterCommit(ctx, p)
	s.logger.Info("payment completed", "order_id", orderID, "account_id", p.accountID, "tokens", pkg.Tokens)
	return result, nil
}

// History lists the account's payments newest first.
func (s *PaymentService) History(ctx context.Context, accountID string, limit int) ([]store.Payment, error) {
	if accountID == "" {
		return nil, ErrUnauthenticated
	}
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}
	return s.payments.ListByAccount(ctx, accountID, limit)
}
