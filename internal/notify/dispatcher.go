package notify

import (
	"context"

	"rally/internal/notify/repository"
	"rally/pkg/clock"
	"rally/pkg/kafka"
	"rally/pkg/logger"
	"rally/pkg/model"
)

// Dispatcher is the consumer side of the pipeline: it fans one event out
// to a stored notification per recipient. Delivery beyond storage (push,
// mail) is out of scope; the log line is the delivery stand-in.
type Dispatcher struct {
	repo  repository.NotificationRepository
	clock clock.Clock
	log   *logger.Logger
}

func NewDispatcher(repo repository.NotificationRepository, clk clock.Clock, log *logger.Logger) *Dispatcher {
	return &Dispatcher{repo: repo, clock: clk, log: log}
}

// Handle implements kafka.MessageHandler.
func (d *Dispatcher) Handle(ctx context.Context, msg kafka.Message) error {
	var event Event
	if err := msg.DecodeValue(&event); err != nil {
		// Undecodable payloads are permanent failures; let the consumer
		// route them to the DLQ.
		return kafka.NewPermanentError("failed to decode event", err)
	}

	for _, userID := range event.Recipients {
		n := &model.Notification{
			UserID:    userID,
			Type:      string(event.Type),
			EntityID:  event.EntityID,
			Payload:   event.Payload,
			CreatedAt: model.NewDateTime(d.clock.Now()),
		}
		if err := d.repo.Create(ctx, n); err != nil {
			return kafka.NewTransientError("failed to store notification", err)
		}

		d.log.Info("Notification dispatched",
			"event_type", event.Type,
			"entity_id", event.EntityID,
			"user_id", userID,
		)
	}

	return nil
}
