package service

import (
	"context"
	"encoding/json"
	"time"

	"rally/internal/ledger/repository"
	"rally/internal/notify"
	"rally/pkg/clock"
	"rally/pkg/config"
	"rally/pkg/model"
)

// Compensator persists downstream effects that failed after a lifecycle
// transition committed, and retries them until done or the attempt budget
// runs out. Transitions are never rolled back.
type Compensator interface {
	EnqueueCharge(ctx context.Context, userID string, amount model.Amount, relatedID string)
	EnqueueRefund(ctx context.Context, userID string, amount model.Amount, relatedID string)
	EnqueueNotify(ctx context.Context, event notify.Event)
	// Run drains pending tasks on the configured interval until ctx is
	// cancelled.
	Run(ctx context.Context)
}

// ChargeGuard ties a queued charge back to the record that owes it. The
// owning record can reach a state where the debt no longer applies (a
// cancelled course) between enqueue and replay; the guard keeps the
// compensator from debiting for it, and records charges that do land so a
// later cancellation refunds them.
type ChargeGuard interface {
	ChargeDue(ctx context.Context, relatedID string) (bool, error)
	ChargeApplied(ctx context.Context, relatedID string, at model.DateTime) error
}

type compensator struct {
	repo   repository.CompensationRepository
	ledger Ledger
	sink   notify.Sink
	guard  ChargeGuard
	clock  clock.Clock
	cfg    *config.Config
}

func NewCompensator(
	repo repository.CompensationRepository,
	ledger Ledger,
	sink notify.Sink,
	guard ChargeGuard,
	clk clock.Clock,
	cfg *config.Config,
) Compensator {
	return &compensator{
		repo:   repo,
		ledger: ledger,
		sink:   sink,
		guard:  guard,
		clock:  clk,
		cfg:    cfg,
	}
}

func (c *compensator) enqueue(ctx context.Context, task *model.CompensationTask) {
	task.Status = model.CompensationPending
	task.CreatedAt = model.NewDateTime(c.clock.Now())
	task.UpdatedAt = task.CreatedAt

	if err := c.repo.Create(ctx, task); err != nil {
		// Nothing left to do but make noise: the transition is committed
		// and the effect is lost until an operator replays it.
		c.cfg.Log.Error("Failed to enqueue compensation task",
			"kind", task.Kind,
			"user_id", task.UserID,
			"related_id", task.RelatedID,
			"error", err,
		)
		return
	}

	c.cfg.Log.Warn("Compensation task enqueued",
		"kind", task.Kind,
		"user_id", task.UserID,
		"related_id", task.RelatedID,
	)
}

func (c *compensator) EnqueueCharge(ctx context.Context, userID string, amount model.Amount, relatedID string) {
	c.enqueue(ctx, &model.CompensationTask{
		Kind:      model.CompensateCharge,
		UserID:    userID,
		Amount:    amount,
		RelatedID: relatedID,
	})
}

func (c *compensator) EnqueueRefund(ctx context.Context, userID string, amount model.Amount, relatedID string) {
	c.enqueue(ctx, &model.CompensationTask{
		Kind:      model.CompensateRefund,
		UserID:    userID,
		Amount:    amount,
		RelatedID: relatedID,
	})
}

func (c *compensator) EnqueueNotify(ctx context.Context, event notify.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		c.cfg.Log.Error("Failed to encode notify compensation payload",
			"event_type", event.Type,
			"entity_id", event.EntityID,
			"error", err,
		)
		return
	}

	c.enqueue(ctx, &model.CompensationTask{
		Kind:      model.CompensateNotify,
		RelatedID: event.EntityID,
		Payload:   string(payload),
	})
}

func (c *compensator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.CompensationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.drain(ctx)
		}
	}
}

func (c *compensator) drain(ctx context.Context) {
	const batchSize = 50

	tasks, err := c.repo.FindPending(ctx, batchSize)
	if err != nil {
		c.cfg.Log.Error("Failed to load pending compensation tasks", "error", err)
		return
	}

	for _, task := range tasks {
		if err := c.execute(ctx, task); err != nil {
			now := model.NewDateTime(c.clock.Now())
			if markErr := c.repo.MarkAttempt(ctx, task.ID, err.Error(), c.cfg.CompensationMaxAttempts, now); markErr != nil {
				c.cfg.Log.Error("Failed to record compensation attempt", "task_id", task.ID, "error", markErr)
			}
			c.cfg.Log.Warn("Compensation attempt failed",
				"task_id", task.ID,
				"kind", task.Kind,
				"attempts", task.Attempts+1,
				"error", err,
			)
			continue
		}

		now := model.NewDateTime(c.clock.Now())
		if err := c.repo.MarkDone(ctx, task.ID, now); err != nil {
			c.cfg.Log.Error("Failed to mark compensation task done", "task_id", task.ID, "error", err)
			continue
		}
		c.cfg.Log.Info("Compensation task completed",
			"task_id", task.ID,
			"kind", task.Kind,
			"related_id", task.RelatedID,
		)
	}
}

func (c *compensator) execute(ctx context.Context, task *model.CompensationTask) error {
	switch task.Kind {
	case model.CompensateCharge:
		due, err := c.guard.ChargeDue(ctx, task.RelatedID)
		if err != nil {
			return err
		}
		if !due {
			c.cfg.Log.Warn("Dropping charge task, the related record no longer owes it",
				"task_id", task.ID,
				"user_id", task.UserID,
				"related_id", task.RelatedID,
			)
			return nil
		}
		if _, err := c.ledger.Charge(ctx, task.UserID, task.Amount, task.RelatedID); err != nil {
			return err
		}
		if err := c.guard.ChargeApplied(ctx, task.RelatedID, model.NewDateTime(c.clock.Now())); err != nil {
			c.cfg.Log.Error("Charge replayed but could not be recorded on the related record",
				"task_id", task.ID,
				"related_id", task.RelatedID,
				"error", err,
			)
		}
		return nil
	case model.CompensateRefund:
		_, err := c.ledger.Refund(ctx, task.UserID, task.Amount, task.RelatedID)
		return err
	case model.CompensateNotify:
		var event notify.Event
		if err := json.Unmarshal([]byte(task.Payload), &event); err != nil {
			return err
		}
		return c.sink.Publish(ctx, event)
	}
	return nil
}
