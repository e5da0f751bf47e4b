package events

import (
	"context"
	"log/slog"

	"github.com/IBM/sarama"
)

type Publisher interface {
	Publish(ctx context.Context, topic, key, payload string) error
	Close() error
}

func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Version = sarama.V2_1_0_0
	return sarama.NewSyncProducer(brokers, cfg)
}

type KafkaPublisher struct {
	producer sarama.SyncProducer
}

func NewKafkaPublisher(producer sarama.SyncProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

// Publish blocks until the broker acknowledges. Messages share a partition per key so
// events of one account stay ordered.
func (p *KafkaPublisher) Publish(ctx context.Context, topic, key, payload string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(payload),
	})
	return err
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// LogPublisher stands in for the broker when none is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, topic, key, payload string) error {
	p.logger.Debug("event", "topic", topic, "key", key, "payload", payload)
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
