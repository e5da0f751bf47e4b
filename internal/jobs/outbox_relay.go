// Package jobs runs the background work of the server process.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"aspire/internal/events"
	"aspire/internal/metrics"
	"aspire/internal/store"
)

type OutboxStore interface {
	Pending(ctx context.Context, limit int) ([]store.OutboxEvent, error)
	MarkSent(ctx context.Context, id string) error
	MarkAttemptFailed(ctx context.Context, id string, maxAttempts int) error
}

type outboxKey struct {
	topic      string
	messageKey string
}

type OutboxRelayConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

// OutboxRelay moves committed outbox rows to the broker. Delivery is at least once:
// a crash between publish and MarkSent republishes the row.
type OutboxRelay struct {
	outbox    OutboxStore
	publisher events.Publisher
	logger    *slog.Logger
	cfg       OutboxRelayConfig
}

func NewOutboxRelay(outbox OutboxStore, publisher events.Publisher, logger *slog.Logger, cfg OutboxRelayConfig) *OutboxRelay {
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &OutboxRelay{outbox: outbox, publisher: publisher, logger: logger, cfg: cfg}
}

// Run polls until ctx is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) {
	r.logger.Info("outbox relay started", "interval", r.cfg.Interval, "batch_size", r.cfg.BatchSize)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
			r.RelayOnce(ctx)
		}
	}
}

// RelayOnce publishes one batch in sequence order and returns how many events were
// delivered. Once an event fails, later events with the same topic and key wait for
// the next round so consumers never see them out of order.
func (r *OutboxRelay) RelayOnce(ctx context.Context) int {
	pending, err := r.outbox.Pending(ctx, r.cfg.BatchSize)
	if err != nil {
		r.logger.Error("load pending outbox events", "error", err)
		return 0
	}
	sent := 0
	blocked := map[outboxKey]bool{}
	for _, event := range pending {
		if ctx.Err() != nil {
			return sent
		}
		key := outboxKey{topic: event.Topic, messageKey: event.MessageKey}
		if blocked[key] {
			metrics.OutboxRelayed.WithLabelValues("held").Inc()
			continue
		}
		if err := r.publisher.Publish(ctx, event.Topic, event.MessageKey, event.Payload); err != nil {
			blocked[key] = true
			metrics.OutboxRelayed.WithLabelValues("error").Inc()
			r.logger.Warn("publish outbox event", "id", event.ID, "topic", event.Topic, "attempt", event.RetryCount+1, "error", err)
			if err := r.outbox.MarkAttemptFailed(ctx, event.ID, r.cfg.MaxAttempts); err != nil {
				r.logger.Error("record outbox failure", "id", event.ID, "error", err)
			}
			if event.RetryCount+1 >= r.cfg.MaxAttempts {
				r.logger.Error("outbox event parked after max attempts", "id", event.ID, "topic", event.Topic)
			}
			continue
		}
		if err := r.outbox.MarkSent(ctx, event.ID); err != nil {
			// Left PENDING, so it will be published again; hold the key behind it.
			blocked[key] = true
			r.logger.Error("mark outbox event sent", "id", event.ID, "error", err)
			continue
		}
		metrics.OutboxRelayed.WithLabelValues("sent").Inc()
		sent++
	}
	return sent
}
