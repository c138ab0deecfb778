package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rally/pkg/config"
	"rally/pkg/model"
)

const CounterCollection = "cancel_counters"

// CounterRepository stores per-student monthly cancellation counters. A
// unique index on (student_id, year_month) makes the upsert race-safe.
type CounterRepository interface {
	Count(ctx context.Context, studentID, yearMonth string) (int, error)
	Increment(ctx context.Context, studentID, yearMonth string) error
}

type mongoCounterRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoCounterRepository(cfg *config.Config) CounterRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoCounterRepository{cfg: cfg, collection: db.Collection(CounterCollection)}
}

func (r *mongoCounterRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoCounterRepository) Count(ctx context.Context, studentID, yearMonth string) (int, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var counter model.CancelCounter
	err := r.collection.FindOne(ctx, bson.M{
		"student_id": studentID,
		"year_month": yearMonth,
	}).Decode(&counter)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read cancel counter: %w", err)
	}
	return counter.Count, nil
}

func (r *mongoCounterRepository) Increment(ctx context.Context, studentID, yearMonth string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	_, err := r.collection.UpdateOne(ctx,
		bson.M{"student_id": studentID, "year_month": yearMonth},
		bson.M{"$inc": bson.M{"count": 1}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to increment cancel counter: %w", err)
	}
	return nil
}
