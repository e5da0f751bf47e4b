// Package events defines the messages the token service emits and the broker
// publishers that deliver them. Messages are written to the outbox inside the
// balance transaction and relayed by the jobs package.
package events

import (
	"encoding/json"
	"time"
)

// LedgerEvent mirrors one committed token_transactions row.
type LedgerEvent struct {
	EntryID     string    `json:"entry_id"`
	AccountID   string    `json:"account_id"`
	Amount      int64     `json:"amount"`
	Balance     int64     `json:"balance"`
	Description string    `json:"description"`
	Feature     string    `json:"feature,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type PaymentCompletedEvent struct {
	PaymentID         string    `json:"payment_id"`
	AccountID         string    `json:"account_id"`
	ExternalOrderID   string    `json:"external_order_id"`
	ExternalPaymentID string    `json:"external_payment_id,omitempty"`
	PackageID         string    `json:"package_id"`
	TokensAdded       int64     `json:"tokens_added"`
	Amount            string    `json:"amount"`
	Currency          string    `json:"currency"`
	OccurredAt        time.Time `json:"occurred_at"`
}

func Encode(event any) (string, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}
