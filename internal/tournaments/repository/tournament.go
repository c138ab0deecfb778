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

	tournamenterrors "rally/internal/tournaments/errors"
	"rally/pkg/config"
	mongotx "rally/pkg/db/mongo"
	"rally/pkg/model"
)

const TournamentCollection = "tournaments"

// TournamentFilter narrows list queries. Zero values are ignored.
type TournamentFilter struct {
	CampusID string
	Status   model.TournamentStatus
}

type TournamentRepository interface {
	Create(ctx context.Context, tournament *model.Tournament) error
	FindByID(ctx context.Context, id string) (*model.Tournament, error)
	Find(ctx context.Context, filter TournamentFilter, page, size int) ([]*model.Tournament, error)
	Count(ctx context.Context, filter TournamentFilter) (int64, error)
	// Transition moves the tournament to status only when it is currently
	// in one of the from statuses. Returns false without error when no
	// document matched.
	Transition(ctx context.Context, id string, from []model.TournamentStatus, to model.TournamentStatus, updatedAt model.DateTime) (bool, error)
	// FindPublishedClosingBefore lists PUBLISHED tournaments whose
	// registration window closed before the given instant. The window-close
	// sweep drives these to REGISTRATION_CLOSED.
	FindPublishedClosingBefore(ctx context.Context, before time.Time, limit int) ([]*model.Tournament, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoTournamentRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoTournamentRepository(cfg *config.Config) TournamentRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoTournamentRepository{
		cfg:        cfg,
		collection: db.Collection(TournamentCollection),
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

func (r *mongoTournamentRepository) Create(ctx context.Context, tournament *model.Tournament) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if tournament.ID == "" {
		tournament.ID = uuid.New().String()
	}

	if _, err := r.collection.InsertOne(ctx, tournament); err != nil {
		return fmt.Errorf("failed to create tournament: %w", err)
	}
	return nil
}

func (r *mongoTournamentRepository) FindByID(ctx context.Context, id string) (*model.Tournament, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var tournament model.Tournament
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&tournament)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, tournamenterrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find tournament: %w", err)
	}
	return &tournament, nil
}

func (f TournamentFilter) query() bson.M {
	q := bson.M{}
	if f.CampusID != "" {
		q["campus_id"] = f.CampusID
	}
	if f.Status != "" {
		q["status"] = f.Status
	}
	return q
}

func (r *mongoTournamentRepository) Find(ctx context.Context, filter TournamentFilter, page, size int) ([]*model.Tournament, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "event_date", Value: -1}}).
		SetSkip(int64(page * size)).
		SetLimit(int64(size))

	cursor, err := r.collection.Find(ctx, filter.query(), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	defer cursor.Close(ctx)

	var tournaments []*model.Tournament
	if err := cursor.All(ctx, &tournaments); err != nil {
		return nil, fmt.Errorf("failed to decode tournaments: %w", err)
	}
	return tournaments, nil
}

func (r *mongoTournamentRepository) Count(ctx context.Context, filter TournamentFilter) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, filter.query())
	if err != nil {
		return 0, fmt.Errorf("failed to count tournaments: %w", err)
	}
	return count, nil
}

func (r *mongoTournamentRepository) Transition(ctx context.Context, id string, from []model.TournamentStatus, to model.TournamentStatus, updatedAt model.DateTime) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": from}},
		bson.M{"$set": bson.M{"status": to, "updated_at": updatedAt}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition tournament: %w", err)
	}
	return result.MatchedCount > 0, nil
}

func (r *mongoTournamentRepository) FindPublishedClosingBefore(ctx context.Context, before time.Time, limit int) ([]*model.Tournament, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "registration_window.close", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{
		"status":                    model.TournamentPublished,
		"registration_window.close": bson.M{"$lte": before},
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find closing tournaments: %w", err)
	}
	defer cursor.Close(ctx)

	var tournaments []*model.Tournament
	if err := cursor.All(ctx, &tournaments); err != nil {
		return nil, fmt.Errorf("failed to decode closing tournaments: %w", err)
	}
	return tournaments, nil
}

func (r *mongoTournamentRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
