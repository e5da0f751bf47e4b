package store

import (
	"context"
	"time"
)

const (
	OutboxPending = "PENDING"
	OutboxSent    = "SENT"
	OutboxFailed  = "FAILED"
)

type OutboxStore struct {
	db DB
}

type OutboxEvent struct {
	ID         string    `db:"id"`
	Seq        int64     `db:"seq"`
	Topic      string    `db:"topic"`
	MessageKey string    `db:"message_key"`
	Payload    string    `db:"payload"`
	Status     string    `db:"status"`
	RetryCount int       `db:"retry_count"`
	CreatedAt  time.Time `db:"created_at"`
}

type OutboxInput struct {
	ID         string
	Topic      string
	MessageKey string
	Payload    string
}

func NewOutboxStore(db DB) *OutboxStore {
	return &OutboxStore{db: db}
}

func (s *OutboxStore) Insert(ctx context.Context, tx Execer, input OutboxInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO outbox_events (id, topic, message_key, payload, status)
		VALUES ($1, $2, $3, $4, $5)
	`, input.ID, input.Topic, input.MessageKey, input.Payload, OutboxPending)
	return err
}

// Pending returns undelivered events in insertion order. seq is drawn while the
// writing transaction holds the account row lock, so events for one account are
// numbered in commit order.
func (s *OutboxStore) Pending(ctx context.Context, limit int) ([]OutboxEvent, error) {
	var rows []OutboxEvent
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, seq, topic, message_key, payload, status, retry_count, created_at
		FROM outbox_events
		WHERE status = $1
		ORDER BY seq ASC
		LIMIT $2
	`, OutboxPending, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, OutboxSent, id)
	return err
}

// MarkAttemptFailed bumps the retry counter and parks the event as FAILED once
// maxAttempts is reached.
func (s *OutboxStore) MarkAttemptFailed(ctx context.Context, id string, maxAttempts int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET retry_count = retry_count + 1,
		    status = CASE WHEN retry_count + 1 >= $1 THEN $2 ELSE status END,
		    updated_at = NOW()
		WHERE id = $3
	`, maxAttempts, OutboxFailed, id)
	return err
}
