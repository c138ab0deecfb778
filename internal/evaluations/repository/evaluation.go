package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/google/uuid"

	evalerrors "rally/internal/evaluations/errors"
	"rally/pkg/config"
	"rally/pkg/model"
)

const EvaluationCollection = "evaluations"

// EvaluationRepository stores post-course feedback. A unique index on
// (course_id, author_id) rejects duplicate evaluations.
type EvaluationRepository interface {
	Create(ctx context.Context, evaluation *model.Evaluation) error
	FindByCourse(ctx context.Context, courseID string) ([]*model.Evaluation, error)
	FindByAuthor(ctx context.Context, authorID string, page, size int) ([]*model.Evaluation, error)
	CountByAuthor(ctx context.Context, authorID string) (int64, error)
}

type mongoEvaluationRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoEvaluationRepository(cfg *config.Config) EvaluationRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoEvaluationRepository{
		cfg:        cfg,
		collection: db.Collection(EvaluationCollection),
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoEvaluationRepository) Create(ctx context.Context, evaluation *model.Evaluation) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if evaluation.ID == "" {
		evaluation.ID = uuid.New().String()
	}

	if _, err := r.collection.InsertOne(ctx, evaluation); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return evalerrors.ErrDuplicate
		}
		return fmt.Errorf("failed to create evaluation: %w", err)
	}
	return nil
}

func (r *mongoEvaluationRepository) FindByCourse(ctx context.Context, courseID string) ([]*model.Evaluation, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"course_id": courseID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer cursor.Close(ctx)

	var evaluations []*model.Evaluation
	if err := cursor.All(ctx, &evaluations); err != nil {
		return nil, fmt.Errorf("failed to decode evaluations: %w", err)
	}
	return evaluations, nil
}

func (r *mongoEvaluationRepository) FindByAuthor(ctx context.Context, authorID string, page, size int) ([]*model.Evaluation, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(page * size)).
		SetLimit(int64(size))

	cursor, err := r.collection.Find(ctx, bson.M{"author_id": authorID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer cursor.Close(ctx)

	var evaluations []*model.Evaluation
	if err := cursor.All(ctx, &evaluations); err != nil {
		return nil, fmt.Errorf("failed to decode evaluations: %w", err)
	}
	return evaluations, nil
}

func (r *mongoEvaluationRepository) CountByAuthor(ctx context.Context, authorID string) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{"author_id": authorID})
	if err != nil {
		return 0, fmt.Errorf("failed to count evaluations: %w", err)
	}
	return count, nil
}
