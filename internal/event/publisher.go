package event

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"indexcover/internal/platform/kafka"
)

// Publisher delivers lifecycle events to a sink.
type Publisher interface {
	Emit(ctx context.Context, e Event) error
}

// LogPublisher writes events to the structured log. It is the default sink
// when Kafka is not configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Emit(ctx context.Context, e Event) error {
	stamp(&e)
	p.logger.InfoContext(ctx, "policy event",
		"event_id", e.ID,
		"type", string(e.Type),
		"policy_id", e.PolicyID,
		"account", e.Account,
		"amount", e.Amount,
		"status", e.Status,
		"request_id", e.RequestID,
	)
	return nil
}

// KafkaPublisher produces JSON events keyed by policy id so all events for a
// policy land on one partition in order.
type KafkaPublisher struct {
	producer *kafka.Producer
}

func NewKafkaPublisher(producer *kafka.Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) Emit(ctx context.Context, e Event) error {
	stamp(&e)
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, []byte(e.PolicyID.String()), payload)
}

// Fanout emits to every sink, returning the first error after trying all.
type Fanout []Publisher

func (f Fanout) Emit(ctx context.Context, e Event) error {
	var firstErr error
	for _, p := range f {
		if err := p.Emit(ctx, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func stamp(e *Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
}
