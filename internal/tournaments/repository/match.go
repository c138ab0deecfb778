package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/google/uuid"

	tournamenterrors "rally/internal/tournaments/errors"
	"rally/pkg/config"
	"rally/pkg/model"
)

const MatchCollection = "matches"

type MatchRepository interface {
	CreateMany(ctx context.Context, matches []*model.Match) error
	FindByID(ctx context.Context, id string) (*model.Match, error)
	FindByTournament(ctx context.Context, tournamentID string) ([]*model.Match, error)
	CountPending(ctx context.Context, tournamentID string) (int64, error)
	// SetResult records the winner only while the match is PENDING.
	// Returns false without error when no document matched.
	SetResult(ctx context.Context, id, winnerID string) (bool, error)
}

type mongoMatchRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoMatchRepository(cfg *config.Config) MatchRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoMatchRepository{
		cfg:        cfg,
		collection: db.Collection(MatchCollection),
	}
}

func (r *mongoMatchRepository) CreateMany(ctx context.Context, matches []*model.Match) error {
	if len(matches) == 0 {
		return nil
	}

	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	docs := make([]any, 0, len(matches))
	for _, match := range matches {
		if match.ID == "" {
			match.ID = uuid.New().String()
		}
		docs = append(docs, match)
	}

	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to create matches: %w", err)
	}
	return nil
}

func (r *mongoMatchRepository) FindByID(ctx context.Context, id string) (*model.Match, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var match model.Match
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&match)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, tournamenterrors.ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to find match: %w", err)
	}
	return &match, nil
}

func (r *mongoMatchRepository) FindByTournament(ctx context.Context, tournamentID string) ([]*model.Match, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{
		{Key: "group", Value: 1},
		{Key: "round", Value: 1},
	})
	cursor, err := r.collection.Find(ctx, bson.M{"tournament_id": tournamentID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer cursor.Close(ctx)

	var matches []*model.Match
	if err := cursor.All(ctx, &matches); err != nil {
		return nil, fmt.Errorf("failed to decode matches: %w", err)
	}
	return matches, nil
}

func (r *mongoMatchRepository) CountPending(ctx context.Context, tournamentID string) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{
		"tournament_id": tournamentID,
		"status":        model.MatchPending,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count pending matches: %w", err)
	}
	return count, nil
}

func (r *mongoMatchRepository) SetResult(ctx context.Context, id, winnerID string) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": model.MatchPending},
		bson.M{"$set": bson.M{"winner_id": winnerID, "status": model.MatchCompleted}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to record match result: %w", err)
	}
	return result.MatchedCount > 0, nil
}
