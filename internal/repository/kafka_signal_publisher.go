package repository

import (
	"context"
	"fmt"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	pkgkafka "FinSignal/pkg/kafka"
)

// KafkaSignalPublisher implements SignalPublisher for Kafka. Events are keyed
// by symbol so one instrument's lifecycle stays on one partition.
type KafkaSignalPublisher struct {
	producer *pkgkafka.Producer
}

var _ domrepo.SignalPublisher = (*KafkaSignalPublisher)(nil)

func NewKafkaSignalPublisher(producer *pkgkafka.Producer) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{producer: producer}
}

func (p *KafkaSignalPublisher) Publish(ctx context.Context, ev models.SignalEvent) error {
	if err := p.producer.Publish(ctx, []byte(ev.Signal.Symbol), ev); err != nil {
		return fmt.Errorf("publish %s event for %s: %w", ev.Event, ev.Signal.ID, err)
	}
	return nil
}

// PublishBatch sends events in a single write.
func (p *KafkaSignalPublisher) PublishBatch(ctx context.Context, evs []models.SignalEvent) error {
	if len(evs) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(evs))
	for i, ev := range evs {
		msgs[i] = pkgkafka.Message{Key: []byte(ev.Signal.Symbol), Value: ev}
	}
	return p.producer.PublishBatch(ctx, msgs)
}

func (p *KafkaSignalPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
