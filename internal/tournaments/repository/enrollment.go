package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/google/uuid"

	tournamenterrors "rally/internal/tournaments/errors"
	"rally/pkg/config"
	"rally/pkg/model"
)

const EnrollmentCollection = "enrollments"

// EnrollmentRepository stores tournament registrations. A unique index on
// (tournament_id, student_id) is the structural guard against duplicate
// enrollment.
type EnrollmentRepository interface {
	Create(ctx context.Context, enrollment *model.Enrollment) error
	FindByTournament(ctx context.Context, tournamentID string) ([]*model.Enrollment, error)
	CountByTournament(ctx context.Context, tournamentID string) (int64, error)
}

type mongoEnrollmentRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoEnrollmentRepository(cfg *config.Config) EnrollmentRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoEnrollmentRepository{
		cfg:        cfg,
		collection: db.Collection(EnrollmentCollection),
	}
}

func (r *mongoEnrollmentRepository) Create(ctx context.Context, enrollment *model.Enrollment) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if enrollment.ID == "" {
		enrollment.ID = uuid.New().String()
	}

	if _, err := r.collection.InsertOne(ctx, enrollment); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tournamenterrors.ErrDuplicateEnrollment
		}
		return fmt.Errorf("failed to create enrollment: %w", err)
	}
	return nil
}

func (r *mongoEnrollmentRepository) FindByTournament(ctx context.Context, tournamentID string) ([]*model.Enrollment, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"tournament_id": tournamentID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	defer cursor.Close(ctx)

	var enrollments []*model.Enrollment
	if err := cursor.All(ctx, &enrollments); err != nil {
		return nil, fmt.Errorf("failed to decode enrollments: %w", err)
	}
	return enrollments, nil
}

func (r *mongoEnrollmentRepository) CountByTournament(ctx context.Context, tournamentID string) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{"tournament_id": tournamentID})
	if err != nil {
		return 0, fmt.Errorf("failed to count enrollments: %w", err)
	}
	return count, nil
}
