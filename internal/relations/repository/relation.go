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

	relationerrors "rally/internal/relations/errors"
	"rally/pkg/config"
	mongotx "rally/pkg/db/mongo"
	"rally/pkg/model"
)

const RelationCollection = "relations"

// activeStatuses are the statuses that occupy the (coach, student) pair
// and count against the student's coach limit.
var activeStatuses = []model.RelationStatus{model.RelationPending, model.RelationApproved}

// RelationFilter narrows list queries. Zero values are ignored.
type RelationFilter struct {
	CoachID   string
	StudentID string
	Status    model.RelationStatus
}

type RelationRepository interface {
	Create(ctx context.Context, relation *model.Relation) error
	FindByID(ctx context.Context, id string) (*model.Relation, error)
	Find(ctx context.Context, filter RelationFilter, page, size int) ([]*model.Relation, error)
	Count(ctx context.Context, filter RelationFilter) (int64, error)
	// FindActivePair returns the PENDING or APPROVED relation for the pair,
	// or ErrNotFound when the pair is free.
	FindActivePair(ctx context.Context, coachID, studentID string) (*model.Relation, error)
	// HasApprovedRelation reports whether the pair holds an APPROVED
	// relation. The booking scheduler gates on this.
	HasApprovedRelation(ctx context.Context, coachID, studentID string) (bool, error)
	CountApprovedByCoach(ctx context.Context, coachID string) (int64, error)
	CountActiveByStudent(ctx context.Context, studentID string) (int64, error)
	// Transition moves the relation to status only when it is currently in
	// one of the from statuses. Returns false without error when no
	// document matched.
	Transition(ctx context.Context, id string, from []model.RelationStatus, to model.RelationStatus, reason string, decidedAt model.DateTime) (bool, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoRelationRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoRelationRepository(cfg *config.Config) RelationRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoRelationRepository{
		cfg:        cfg,
		collection: db.Collection(RelationCollection),
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

func (r *mongoRelationRepository) Create(ctx context.Context, relation *model.Relation) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if relation.ID == "" {
		relation.ID = uuid.New().String()
	}

	if _, err := r.collection.InsertOne(ctx, relation); err != nil {
		return fmt.Errorf("failed to create relation: %w", err)
	}
	return nil
}

func (r *mongoRelationRepository) FindByID(ctx context.Context, id string) (*model.Relation, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var relation model.Relation
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&relation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, relationerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find relation: %w", err)
	}
	return &relation, nil
}

func (f RelationFilter) query() bson.M {
	q := bson.M{}
	if f.CoachID != "" {
		q["coach_id"] = f.CoachID
	}
	if f.StudentID != "" {
		q["student_id"] = f.StudentID
	}
	if f.Status != "" {
		q["status"] = f.Status
	}
	return q
}

func (r *mongoRelationRepository) Find(ctx context.Context, filter RelationFilter, page, size int) ([]*model.Relation, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "applied_at", Value: -1}}).
		SetSkip(int64(page * size)).
		SetLimit(int64(size))

	cursor, err := r.collection.Find(ctx, filter.query(), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list relations: %w", err)
	}
	defer cursor.Close(ctx)

	var relations []*model.Relation
	if err := cursor.All(ctx, &relations); err != nil {
		return nil, fmt.Errorf("failed to decode relations: %w", err)
	}
	return relations, nil
}

func (r *mongoRelationRepository) Count(ctx context.Context, filter RelationFilter) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, filter.query())
	if err != nil {
		return 0, fmt.Errorf("failed to count relations: %w", err)
	}
	return count, nil
}

func (r *mongoRelationRepository) FindActivePair(ctx context.Context, coachID, studentID string) (*model.Relation, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var relation model.Relation
	err := r.collection.FindOne(ctx, bson.M{
		"coach_id":   coachID,
		"student_id": studentID,
		"status":     bson.M{"$in": activeStatuses},
	}).Decode(&relation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, relationerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find active relation: %w", err)
	}
	return &relation, nil
}

func (r *mongoRelationRepository) HasApprovedRelation(ctx context.Context, coachID, studentID string) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{
		"coach_id":   coachID,
		"student_id": studentID,
		"status":     model.RelationApproved,
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check approved relation: %w", err)
	}
	return count > 0, nil
}

func (r *mongoRelationRepository) CountApprovedByCoach(ctx context.Context, coachID string) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{
		"coach_id": coachID,
		"status":   model.RelationApproved,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count approved relations: %w", err)
	}
	return count, nil
}

func (r *mongoRelationRepository) CountActiveByStudent(ctx context.Context, studentID string) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{
		"student_id": studentID,
		"status":     bson.M{"$in": activeStatuses},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count student relations: %w", err)
	}
	return count, nil
}

func (r *mongoRelationRepository) Transition(ctx context.Context, id string, from []model.RelationStatus, to model.RelationStatus, reason string, decidedAt model.DateTime) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	set := bson.M{
		"status":     to,
		"decided_at": decidedAt,
	}
	if reason != "" {
		set["reason"] = reason
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": from}},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition relation: %w", err)
	}
	return result.MatchedCount > 0, nil
}

func (r *mongoRelationRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
