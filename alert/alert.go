// Package alert tells the outside world that a periodic reconciliation run
// had to repair the ledger.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"git.sr.ht/~aondrejcak/payrecon/kernel"
	"git.sr.ht/~aondrejcak/payrecon/reconcile"
	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"
)

const EVENT_RECONCILED = "payment.reconciled"

type Event struct {
	EventID    string                    `json:"event_id"`
	EventType  string                    `json:"event_type"`
	OccurredAt time.Time                 `json:"occurred_at"`
	Data       reconcile.RecoverySummary `json:"data"`
}

func NewEvent(summary reconcile.RecoverySummary, at time.Time) (Event, error) {
	id, err := kernel.UuidV7()
	if err != nil {
		return Event{}, err
	}
	return Event{
		EventID:    id,
		EventType:  EVENT_RECONCILED,
		OccurredAt: at.UTC(),
		Data:       summary,
	}, nil
}

// KafkaAlerter publishes one event per repairing run.
type KafkaAlerter struct {
	producer sarama.SyncProducer
	topic    string
	now      func() time.Time
}

func NewKafkaAlerter(brokers []string, topic string) (*KafkaAlerter, error) {
	config := sarama.NewConfig()
	config.ClientID = "payrecon"
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewKafkaAlerterWithProducer(producer, topic), nil
}

func NewKafkaAlerterWithProducer(producer sarama.SyncProducer, topic string) *KafkaAlerter {
	return &KafkaAlerter{producer: producer, topic: topic, now: time.Now}
}

func (a *KafkaAlerter) NotifyRepairs(ctx context.Context, summary reconcile.RecoverySummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	event, err := NewEvent(summary, a.now())
	if err != nil {
		return fmt.Errorf("event id: %w", err)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.EventType, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: a.topic,
		Key:   sarama.StringEncoder(event.EventType),
		Value: sarama.ByteEncoder(data),
	}
	partition, offset, err := a.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.EventType, err)
	}

	log.Info().
		Str("event_id", event.EventID).
		Str("topic", a.topic).
		Int32("partition", partition).
		Int64("offset", offset).
		Int("repairs", summary.Repairs()).
		Msg("published reconciliation alert")
	return nil
}

func (a *KafkaAlerter) Close() error {
	return a.producer.Close()
}

// LogAlerter is used when no broker is configured.
type LogAlerter struct{}

func (LogAlerter) NotifyRepairs(_ context.Context, summary reconcile.RecoverySummary) error {
	log.Warn().
		Str("event_type", EVENT_RECONCILED).
		Int("hours", summary.Hours).
		Int("recovered", summary.Recovered).
		Int("updated", summary.Updated).
		Int("failed", summary.Failed).
		Int("review", len(summary.Review)).
		Msg("reconciliation repaired the ledger")
	return nil
}
