package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"aspire/internal/db"
	"aspire/internal/feature"
	"aspire/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Identity is what the external identity provider tells us about the caller.
type Identity struct {
	ExternalUserID string
	Email          string
	Name           string
}

// EnsureAccount returns the caller's account, creating it on first sign-in. A new
// account starts at zero and receives the sign-up grant as its first ledger entry in
// the same transaction.
func (l *Ledger) EnsureAccount(ctx context.Context, identity Identity) (store.Account, error) {
	if identity.ExternalUserID == "" {
		return store.Account{}, ErrUnauthenticated
	}
	account, err := l.accounts.GetByExternalID(ctx, identity.ExternalUserID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return store.Account{}, err
	}

	accountID := uuid.NewString()
	var p posting
	err = l.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := l.accounts.Create(ctx, tx, store.AccountInput{
			ID:             accountID,
			ExternalUserID: identity.ExternalUserID,
			Email:          optionalString(identity.Email),
			Name:           optionalString(identity.Name),
		}); err != nil {
			return err
		}
		if l.cfg.SignupGrant <= 0 {
			return nil
		}
		var err error
		p, err = l.apply(ctx, tx, accountID, l.cfg.SignupGrant, "Welcome bonus", feature.SignupGrant)
		return err
	})
	if db.IsUniqueViolation(err) {
		// A concurrent first request created it.
		return l.accounts.GetByExternalID(ctx, identity.ExternalUserID)
	}
	if err != nil {
		return store.Account{}, fmt.Errorf("create account: %w", err)
	}
	if p.entryID != "" {
		l.afterCommit(ctx, p)
	}
	l.logger.Info("account created", "account_id", accountID, "external_user_id", identity.ExternalUserID)
	return l.accounts.GetByID(ctx, accountID)
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
