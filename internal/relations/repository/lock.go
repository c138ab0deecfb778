package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"rally/pkg/config"
	"rally/pkg/model"
)

const RelationLockCollection = "relation_locks"

// RelationLockRepository provides per-key advisory locks for relation
// check-then-write sections, backed by unique _id inserts with a TTL index
// on expires_at. Lock keys are "pair:<coach>:<student>" and "coach:<id>".
type RelationLockRepository interface {
	Acquire(ctx context.Context, lock *model.SlotLock) error
	Release(ctx context.Context, lockID string) error
}

type mongoRelationLockRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoRelationLockRepository(cfg *config.Config) RelationLockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoRelationLockRepository{
		cfg:        cfg,
		collection: db.Collection(RelationLockCollection),
	}
}

func (r *mongoRelationLockRepository) Acquire(ctx context.Context, lock *model.SlotLock) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, lock); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return err
		}
		return fmt.Errorf("failed to acquire lock %s: %w", lock.ID, err)
	}
	return nil
}

func (r *mongoRelationLockRepository) Release(ctx context.Context, lockID string) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": lockID}); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", lockID, err)
	}
	return nil
}
