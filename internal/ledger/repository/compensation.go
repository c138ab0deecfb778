package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/google/uuid"

	"rally/pkg/config"
	"rally/pkg/model"
)

const CompensationCollection = "compensation_tasks"

// CompensationRepository stores downstream effects that failed after their
// state transition committed, for the retry worker to drain.
type CompensationRepository interface {
	Create(ctx context.Context, task *model.CompensationTask) error
	FindPending(ctx context.Context, limit int) ([]*model.CompensationTask, error)
	MarkDone(ctx context.Context, id string, at model.DateTime) error
	// MarkAttempt records a failed attempt; once attempts reach maxAttempts
	// the task flips to FAILED and leaves the retry queue.
	MarkAttempt(ctx context.Context, id string, lastError string, maxAttempts int, at model.DateTime) error
}

type mongoCompensationRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoCompensationRepository(cfg *config.Config) CompensationRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoCompensationRepository{cfg: cfg, collection: db.Collection(CompensationCollection)}
}

func (r *mongoCompensationRepository) Create(ctx context.Context, task *model.CompensationTask) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Status == "" {
		task.Status = model.CompensationPending
	}
	if _, err := r.collection.InsertOne(ctx, task); err != nil {
		return fmt.Errorf("failed to create compensation task: %w", err)
	}
	return nil
}

func (r *mongoCompensationRepository) FindPending(ctx context.Context, limit int) ([]*model.CompensationTask, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{"status": model.CompensationPending}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find pending compensation tasks: %w", err)
	}
	defer cursor.Close(ctx)

	tasks := make([]*model.CompensationTask, 0)
	if err = cursor.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode compensation tasks: %w", err)
	}
	return tasks, nil
}

func (r *mongoCompensationRepository) MarkDone(ctx context.Context, id string, at model.DateTime) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": model.CompensationDone, "updated_at": at}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark compensation task done: %w", err)
	}
	return nil
}

func (r *mongoCompensationRepository) MarkAttempt(ctx context.Context, id string, lastError string, maxAttempts int, at model.DateTime) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	var task model.CompensationTask
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{
			"$inc": bson.M{"attempts": 1},
			"$set": bson.M{"last_error": lastError, "updated_at": at},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&task)
	if err != nil {
		return fmt.Errorf("failed to record compensation attempt: %w", err)
	}

	if task.Attempts >= maxAttempts {
		_, err = r.collection.UpdateOne(ctx,
			bson.M{"_id": id},
			bson.M{"$set": bson.M{"status": model.CompensationFailed, "updated_at": at}},
		)
		if err != nil {
			return fmt.Errorf("failed to mark compensation task failed: %w", err)
		}
	}
	return nil
}
