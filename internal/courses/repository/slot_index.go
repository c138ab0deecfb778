package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/google/uuid"

	courseerrors "rally/internal/courses/errors"
	"rally/pkg/config"
	"rally/pkg/model"
)

const (
	SlotReservationCollection = "slot_reservations"
	SlotLockCollection        = "slot_locks"
)

// SlotIndex is the durable (coach, table, slot) -> course index. Reserve
// and Release run inside the booking transaction; FindOverlapping answers
// the collision check for both coach and table dimensions.
type SlotIndex interface {
	Reserve(ctx context.Context, res *model.SlotReservation) error
	ReleaseByCourse(ctx context.Context, courseID string) error
	FindOverlapping(ctx context.Context, coachID, tableID string, start, end time.Time) ([]*model.SlotReservation, error)
	BusyTableIDs(ctx context.Context, start, end time.Time) ([]string, error)
}

type mongoSlotIndex struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoSlotIndex(cfg *config.Config) SlotIndex {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSlotIndex{
		cfg:        cfg,
		collection: db.Collection(SlotReservationCollection),
	}
}

func (r *mongoSlotIndex) Reserve(ctx context.Context, res *model.SlotReservation) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if res.ID == "" {
		res.ID = uuid.New().String()
	}

	if _, err := r.collection.InsertOne(ctx, res); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return courseerrors.ErrSlotTaken
		}
		return fmt.Errorf("failed to reserve slot: %w", err)
	}
	return nil
}

func (r *mongoSlotIndex) ReleaseByCourse(ctx context.Context, courseID string) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.DeleteMany(ctx, bson.M{"course_id": courseID}); err != nil {
		return fmt.Errorf("failed to release slot reservation: %w", err)
	}
	return nil
}

func (r *mongoSlotIndex) FindOverlapping(ctx context.Context, coachID, tableID string, start, end time.Time) ([]*model.SlotReservation, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	query := bson.M{
		"$or": []bson.M{
			{"coach_id": coachID},
			{"table_id": tableID},
		},
		"start_time": bson.M{"$lt": end},
		"end_time":   bson.M{"$gt": start},
	}

	cursor, err := r.collection.Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to find overlapping reservations: %w", err)
	}
	defer cursor.Close(ctx)

	reservations := make([]*model.SlotReservation, 0)
	if err = cursor.All(ctx, &reservations); err != nil {
		return nil, fmt.Errorf("failed to decode reservations: %w", err)
	}
	return reservations, nil
}

func (r *mongoSlotIndex) BusyTableIDs(ctx context.Context, start, end time.Time) ([]string, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	ids, err := r.collection.Distinct(ctx, "table_id", bson.M{
		"start_time": bson.M{"$lt": end},
		"end_time":   bson.M{"$gt": start},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list busy tables: %w", err)
	}

	tableIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		if s, ok := id.(string); ok {
			tableIDs = append(tableIDs, s)
		}
	}
	return tableIDs, nil
}
