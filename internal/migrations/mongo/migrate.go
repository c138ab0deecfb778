package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	coursesrepo "rally/internal/courses/repository"
	evalrepo "rally/internal/evaluations/repository"
	ledgerrepo "rally/internal/ledger/repository"
	"rally/internal/migrations/mongo/validators"
	notifyrepo "rally/internal/notify/repository"
	quotarepo "rally/internal/quota/repository"
	relationsrepo "rally/internal/relations/repository"
	tournamentsrepo "rally/internal/tournaments/repository"
	"rally/pkg/config"
)

var (
	CourseIndexes = []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "coach_id", Value: 1},
			{Key: "status", Value: 1},
			{Key: "start_time", Value: 1},
		}},
		{Keys: bson.D{
			{Key: "student_id", Value: 1},
			{Key: "status", Value: 1},
			{Key: "start_time", Value: 1},
		}},
		{Keys: bson.D{
			{Key: "campus_id", Value: 1},
			{Key: "status", Value: 1},
			{Key: "start_time", Value: 1},
		}},
		// Feeds the completion sweeper scan.
		{Keys: bson.D{
			{Key: "status", Value: 1},
			{Key: "end_time", Value: 1},
		}},
	}

	SlotReservationIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "coach_id", Value: 1},
				{Key: "table_id", Value: 1},
				{Key: "start_time", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "course_id", Value: 1}}},
		{Keys: bson.D{
			{Key: "table_id", Value: 1},
			{Key: "start_time", Value: 1},
			{Key: "end_time", Value: 1},
		}},
	}

	// Abandoned locks expire server side so a crashed booking
	// cannot wedge a slot forever.
	LockIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}

	RelationIndexes = []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "coach_id", Value: 1},
			{Key: "status", Value: 1},
		}},
		{Keys: bson.D{
			{Key: "student_id", Value: 1},
			{Key: "status", Value: 1},
		}},
		{Keys: bson.D{
			{Key: "coach_id", Value: 1},
			{Key: "student_id", Value: 1},
			{Key: "status", Value: 1},
		}},
	}

	CancelCounterIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "student_id", Value: 1},
				{Key: "year_month", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}

	TransactionIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "order_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "created_at", Value: -1},
		}},
	}

	CompensationIndexes = []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "status", Value: 1},
			{Key: "created_at", Value: 1},
		}},
	}

	TournamentIndexes = []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "campus_id", Value: 1},
			{Key: "status", Value: 1},
		}},
		{Keys: bson.D{
			{Key: "status", Value: 1},
			{Key: "registration_window.close", Value: 1},
		}},
	}

	EnrollmentIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "tournament_id", Value: 1},
				{Key: "student_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}

	MatchIndexes = []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "tournament_id", Value: 1},
			{Key: "group", Value: 1},
			{Key: "round", Value: 1},
		}},
		{Keys: bson.D{
			{Key: "tournament_id", Value: 1},
			{Key: "status", Value: 1},
		}},
	}

	EvaluationIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "course_id", Value: 1},
				{Key: "author_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{
			{Key: "author_id", Value: 1},
			{Key: "created_at", Value: -1},
		}},
	}

	NotificationIndexes = []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "created_at", Value: -1},
		}},
	}

	CampusScopedIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "campus_id", Value: 1}}},
	}
)

func RunMigration(ctx context.Context, cfg *config.Config) error {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	cfg.Log.Info("Running Mongo migrations", "database", cfg.MongoDatabaseName)

	collections := map[string]struct {
		Indexes   []mongo.IndexModel
		Validator bson.M
	}{
		coursesrepo.CourseCollection: {
			Indexes:   CourseIndexes,
			Validator: validators.CourseValidator,
		},
		coursesrepo.SlotReservationCollection: {
			Indexes: SlotReservationIndexes,
		},
		coursesrepo.SlotLockCollection: {
			Indexes: LockIndexes,
		},
		coursesrepo.CoachCollection: {
			Indexes: CampusScopedIndexes,
		},
		coursesrepo.StudentCollection: {
			Indexes: CampusScopedIndexes,
		},
		coursesrepo.TableCollection: {
			Indexes: CampusScopedIndexes,
		},
		relationsrepo.RelationCollection: {
			Indexes:   RelationIndexes,
			Validator: validators.RelationValidator,
		},
		relationsrepo.RelationLockCollection: {
			Indexes: LockIndexes,
		},
		quotarepo.CounterCollection: {
			Indexes: CancelCounterIndexes,
		},
		ledgerrepo.TransactionCollection: {
			Indexes:   TransactionIndexes,
			Validator: validators.TransactionValidator,
		},
		ledgerrepo.AccountCollection: {},
		ledgerrepo.CompensationCollection: {
			Indexes: CompensationIndexes,
		},
		tournamentsrepo.TournamentCollection: {
			Indexes:   TournamentIndexes,
			Validator: validators.TournamentValidator,
		},
		tournamentsrepo.EnrollmentCollection: {
			Indexes: EnrollmentIndexes,
		},
		tournamentsrepo.MatchCollection: {
			Indexes: MatchIndexes,
		},
		evalrepo.EvaluationCollection: {
			Indexes: EvaluationIndexes,
		},
		notifyrepo.NotificationCollection: {
			Indexes: NotificationIndexes,
		},
	}

	for name, def := range collections {
		if err := ensureCollection(ctx, cfg, db, name, def.Validator); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if err := ensureIndexes(ctx, cfg, db, name, def.Indexes); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	cfg.Log.Info("All migrations applied")
	return nil
}

func ensureCollection(ctx context.Context, cfg *config.Config, db *mongo.Database, name string, validator bson.M) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		cfg.Log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection()
		if validator != nil {
			opts.SetValidator(validator)
		}
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	if validator != nil {
		command := bson.D{
			{Key: "collMod", Value: name},
			{Key: "validator", Value: validator},
		}
		if err := db.RunCommand(ctx, command).Err(); err != nil {
			cfg.Log.Warn("Failed updating collection validator", "collection", name, "error", err)
		}
	}

	return nil
}

func ensureIndexes(ctx context.Context, cfg *config.Config, db *mongo.Database, name string, models []mongo.IndexModel) error {
	if len(models) == 0 {
		return nil
	}
	if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
		return err
	}
	cfg.Log.Debug("Ensured indexes", "collection", name, "count", len(models))
	return nil
}
