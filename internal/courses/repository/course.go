package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/google/uuid"

	courseerrors "rally/internal/courses/errors"
	"rally/pkg/config"
	mongotx "rally/pkg/db/mongo"
	"rally/pkg/model"
)

const CourseCollection = "courses"

// CourseFilter narrows list queries. Zero values are ignored.
type CourseFilter struct {
	CoachID   string
	StudentID string
	CampusID  string
	Status    model.CourseStatus
	From      *time.Time
	To        *time.Time
}

// StatusUpdate carries the fields written alongside a lifecycle
// transition.
type StatusUpdate struct {
	Status       model.CourseStatus
	CancelReason string
	CancelledBy  string
	CancelledAt  *model.DateTime
	ChargedAt    *model.DateTime
	UpdatedAt    model.DateTime
}

type CourseRepository interface {
	Create(ctx context.Context, course *model.Course) error
	FindByID(ctx context.Context, id string) (*model.Course, error)
	Find(ctx context.Context, filter CourseFilter, page, size int) ([]*model.Course, error)
	Count(ctx context.Context, filter CourseFilter) (int64, error)
	// Transition applies update only when the course is currently in one of
	// the from statuses. Returns false without error when no document
	// matched, so callers can distinguish a lost race from a failure.
	Transition(ctx context.Context, id string, from []model.CourseStatus, update StatusUpdate) (bool, error)
	MarkCharged(ctx context.Context, id string, at model.DateTime) error
	FindConfirmedEndedBefore(ctx context.Context, before time.Time, limit int) ([]*model.Course, error)
	CountConfirmedBetween(ctx context.Context, campusID string, from, to time.Time) (int64, error)
	SumCompletedFees(ctx context.Context, coachID string, from, to time.Time) (model.Amount, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoCourseRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoCourseRepository(cfg *config.Config) CourseRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoCourseRepository{
		cfg:        cfg,
		collection: db.Collection(CourseCollection),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout wraps the context with a timeout unless it is a transaction
// SessionContext, which must pass through unchanged.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoCourseRepository) Create(ctx context.Context, course *model.Course) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if course.ID == "" {
		course.ID = uuid.New().String()
	}

	if _, err := r.collection.InsertOne(ctx, course); err != nil {
		return fmt.Errorf("failed to create course: %w", err)
	}
	return nil
}

func (r *mongoCourseRepository) FindByID(ctx context.Context, id string) (*model.Course, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var course model.Course
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&course)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, courseerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find course: %w", err)
	}
	return &course, nil
}

func (f CourseFilter) query() bson.M {
	q := bson.M{}
	if f.CoachID != "" {
		q["coach_id"] = f.CoachID
	}
	if f.StudentID != "" {
		q["student_id"] = f.StudentID
	}
	if f.CampusID != "" {
		q["campus_id"] = f.CampusID
	}
	if f.Status != "" {
		q["status"] = f.Status
	}
	if f.From != nil || f.To != nil {
		timeRange := bson.M{}
		if f.From != nil {
			timeRange["$gte"] = *f.From
		}
		if f.To != nil {
			timeRange["$lt"] = *f.To
		}
		q["start_time"] = timeRange
	}
	return q
}

func (r *mongoCourseRepository) Find(ctx context.Context, filter CourseFilter, page, size int) ([]*model.Course, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "start_time", Value: -1}}).
		SetSkip(int64(page * size)).
		SetLimit(int64(size))

	cursor, err := r.collection.Find(ctx, filter.query(), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find courses: %w", err)
	}
	defer cursor.Close(ctx)

	courses := make([]*model.Course, 0)
	if err = cursor.All(ctx, &courses); err != nil {
		return nil, fmt.Errorf("failed to decode courses: %w", err)
	}
	return courses, nil
}

func (r *mongoCourseRepository) Count(ctx context.Context, filter CourseFilter) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, filter.query())
	if err != nil {
		return 0, fmt.Errorf("failed to count courses: %w", err)
	}
	return count, nil
}

func (r *mongoCourseRepository) Transition(ctx context.Context, id string, from []model.CourseStatus, update StatusUpdate) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	set := bson.M{
		"status":     update.Status,
		"updated_at": update.UpdatedAt,
	}
	if update.CancelReason != "" {
		set["cancel_reason"] = update.CancelReason
	}
	if update.CancelledBy != "" {
		set["cancelled_by"] = update.CancelledBy
	}
	if update.CancelledAt != nil {
		set["cancelled_at"] = update.CancelledAt
	}
	if update.ChargedAt != nil {
		set["charged_at"] = update.ChargedAt
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": from}},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition course: %w", err)
	}
	return result.MatchedCount > 0, nil
}

func (r *mongoCourseRepository) MarkCharged(ctx context.Context, id string, at model.DateTime) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"charged_at": at, "updated_at": at}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark course charged: %w", err)
	}
	return nil
}

func (r *mongoCourseRepository) FindConfirmedEndedBefore(ctx context.Context, before time.Time, limit int) ([]*model.Course, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "end_time", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{
		"status":   model.CourseConfirmed,
		"end_time": bson.M{"$lte": before},
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find ended courses: %w", err)
	}
	defer cursor.Close(ctx)

	courses := make([]*model.Course, 0)
	if err = cursor.All(ctx, &courses); err != nil {
		return nil, fmt.Errorf("failed to decode ended courses: %w", err)
	}
	return courses, nil
}

func (r *mongoCourseRepository) CountConfirmedBetween(ctx context.Context, campusID string, from, to time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	query := bson.M{
		"status":     model.CourseConfirmed,
		"start_time": bson.M{"$gte": from, "$lt": to},
	}
	if campusID != "" {
		query["campus_id"] = campusID
	}

	count, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count confirmed courses: %w", err)
	}
	return count, nil
}

func (r *mongoCourseRepository) SumCompletedFees(ctx context.Context, coachID string, from, to time.Time) (model.Amount, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"coach_id":   coachID,
			"status":     model.CourseCompleted,
			"start_time": bson.M{"$gte": from, "$lt": to},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$fee_minor"},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate completed fees: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Total int64 `bson:"total"`
	}
	if err = cursor.All(ctx, &results); err != nil {
		return 0, fmt.Errorf("failed to decode fee aggregation: %w", err)
	}
	if len(results) == 0 {
		return 0, nil
	}
	return model.Amount(results[0].Total), nil
}

func (r *mongoCourseRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
