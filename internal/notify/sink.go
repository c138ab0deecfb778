package notify

import (
	"context"

	"rally/pkg/kafka"
	"rally/pkg/logger"
)

// Sink delivers lifecycle events to the notification pipeline. Callers
// invoke it only after their state transition has committed; a failed
// publish is compensated, never rolled back into.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

type kafkaSink struct {
	producer *kafka.Producer
	source   string
}

// NewKafkaSink publishes events through the shared producer, keyed by
// entity ID.
func NewKafkaSink(producer *kafka.Producer, source string) Sink {
	return &kafkaSink{producer: producer, source: source}
}

func (s *kafkaSink) Publish(ctx context.Context, event Event) error {
	msg := kafka.NewMessage().
		WithKey(event.EntityID).
		WithValue(event).
		WithEventType(string(event.Type)).
		WithSource(s.source).
		Build()

	return s.producer.Publish(ctx, msg)
}

type noopSink struct {
	log *logger.Logger
}

// NewNoopSink logs events instead of publishing them. Used when no
// brokers are configured, and in tests.
func NewNoopSink(log *logger.Logger) Sink {
	return &noopSink{log: log}
}

func (s *noopSink) Publish(_ context.Context, event Event) error {
	if s.log != nil {
		s.log.Debug("Notification suppressed (no broker configured)",
			"event_type", event.Type,
			"entity_id", event.EntityID,
		)
	}
	return nil
}
