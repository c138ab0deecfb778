package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/google/uuid"

	courseerrors "rally/internal/courses/errors"
	"rally/pkg/config"
	"rally/pkg/model"
)

const (
	CoachCollection   = "coaches"
	StudentCollection = "students"
	TableCollection   = "tables"
)

type CoachRepository interface {
	Create(ctx context.Context, coach *model.Coach) error
	FindByID(ctx context.Context, id string) (*model.Coach, error)
	FindByCampus(ctx context.Context, campusID string, page, size int) ([]*model.Coach, error)
	CountByCampus(ctx context.Context, campusID string) (int64, error)
}

type StudentRepository interface {
	Create(ctx context.Context, student *model.Student) error
	FindByID(ctx context.Context, id string) (*model.Student, error)
}

type TableRepository interface {
	Create(ctx context.Context, table *model.Table) error
	FindByID(ctx context.Context, id string) (*model.Table, error)
	FindAvailable(ctx context.Context, campusID string, excludeIDs []string) ([]*model.Table, error)
}

type mongoCoachRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoCoachRepository(cfg *config.Config) CoachRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoCoachRepository{cfg: cfg, collection: db.Collection(CoachCollection)}
}

func (r *mongoCoachRepository) Create(ctx context.Context, coach *model.Coach) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if coach.ID == "" {
		coach.ID = uuid.New().String()
	}
	if _, err := r.collection.InsertOne(ctx, coach); err != nil {
		return fmt.Errorf("failed to create coach: %w", err)
	}
	return nil
}

func (r *mongoCoachRepository) FindByID(ctx context.Context, id string) (*model.Coach, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var coach model.Coach
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&coach); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, courseerrors.ErrCoachNotFound
		}
		return nil, fmt.Errorf("failed to find coach: %w", err)
	}
	return &coach, nil
}

func (r *mongoCoachRepository) FindByCampus(ctx context.Context, campusID string, page, size int) ([]*model.Coach, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "name", Value: 1}}).
		SetSkip(int64(page * size)).
		SetLimit(int64(size))

	cursor, err := r.collection.Find(ctx, bson.M{"campus_id": campusID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find coaches: %w", err)
	}
	defer cursor.Close(ctx)

	coaches := make([]*model.Coach, 0)
	if err = cursor.All(ctx, &coaches); err != nil {
		return nil, fmt.Errorf("failed to decode coaches: %w", err)
	}
	return coaches, nil
}

func (r *mongoCoachRepository) CountByCampus(ctx context.Context, campusID string) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{"campus_id": campusID})
	if err != nil {
		return 0, fmt.Errorf("failed to count coaches: %w", err)
	}
	return count, nil
}

type mongoStudentRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoStudentRepository(cfg *config.Config) StudentRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoStudentRepository{cfg: cfg, collection: db.Collection(StudentCollection)}
}

func (r *mongoStudentRepository) Create(ctx context.Context, student *model.Student) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if student.ID == "" {
		student.ID = uuid.New().String()
	}
	if _, err := r.collection.InsertOne(ctx, student); err != nil {
		return fmt.Errorf("failed to create student: %w", err)
	}
	return nil
}

func (r *mongoStudentRepository) FindByID(ctx context.Context, id string) (*model.Student, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var student model.Student
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&student); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, courseerrors.ErrStudentNotFound
		}
		return nil, fmt.Errorf("failed to find student: %w", err)
	}
	return &student, nil
}

type mongoTableRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoTableRepository(cfg *config.Config) TableRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoTableRepository{cfg: cfg, collection: db.Collection(TableCollection)}
}

func (r *mongoTableRepository) Create(ctx context.Context, table *model.Table) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if table.ID == "" {
		table.ID = uuid.New().String()
	}
	if table.Status == "" {
		table.Status = model.TableAvailable
	}
	if _, err := r.collection.InsertOne(ctx, table); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

func (r *mongoTableRepository) FindByID(ctx context.Context, id string) (*model.Table, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var table model.Table
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&table); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, courseerrors.ErrTableNotFound
		}
		return nil, fmt.Errorf("failed to find table: %w", err)
	}
	return &table, nil
}

func (r *mongoTableRepository) FindAvailable(ctx context.Context, campusID string, excludeIDs []string) ([]*model.Table, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	query := bson.M{
		"campus_id": campusID,
		"status":    model.TableAvailable,
	}
	if len(excludeIDs) > 0 {
		query["_id"] = bson.M{"$nin": excludeIDs}
	}

	cursor, err := r.collection.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "number", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find available tables: %w", err)
	}
	defer cursor.Close(ctx)

	tables := make([]*model.Table, 0)
	if err = cursor.All(ctx, &tables); err != nil {
		return nil, fmt.Errorf("failed to decode tables: %w", err)
	}
	return tables, nil
}
