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

	ledgererrors "rally/internal/ledger/errors"
	"rally/pkg/config"
	mongotx "rally/pkg/db/mongo"
	"rally/pkg/model"
)

const (
	AccountCollection     = "accounts"
	TransactionCollection = "transactions"
)

type AccountRepository interface {
	// Credit adds amount to the user's balance, creating the account on
	// first use.
	Credit(ctx context.Context, userID string, amount model.Amount, at model.DateTime) error
	// Debit subtracts amount only when the balance covers it, returning
	// ErrInsufficientBalance otherwise. The conditional update is the
	// overdraft guard; there is no separate read.
	Debit(ctx context.Context, userID string, amount model.Amount, at model.DateTime) error
	Balance(ctx context.Context, userID string) (model.Amount, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type TransactionRepository interface {
	Create(ctx context.Context, txn *model.Transaction) error
	FindByUser(ctx context.Context, userID string, page, size int) ([]*model.Transaction, error)
	CountByUser(ctx context.Context, userID string) (int64, error)
}

type mongoAccountRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoAccountRepository(cfg *config.Config) AccountRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoAccountRepository{
		cfg:        cfg,
		collection: db.Collection(AccountCollection),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoAccountRepository) Credit(ctx context.Context, userID string, amount model.Amount, at model.DateTime) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$inc": bson.M{"balance_minor": int64(amount)},
			"$set": bson.M{"updated_at": at},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to credit account: %w", err)
	}
	return nil
}

func (r *mongoAccountRepository) Debit(ctx context.Context, userID string, amount model.Amount, at model.DateTime) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": userID, "balance_minor": bson.M{"$gte": int64(amount)}},
		bson.M{
			"$inc": bson.M{"balance_minor": -int64(amount)},
			"$set": bson.M{"updated_at": at},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to debit account: %w", err)
	}
	if result.MatchedCount == 0 {
		return ledgererrors.ErrInsufficientBalance
	}
	return nil
}

func (r *mongoAccountRepository) Balance(ctx context.Context, userID string) (model.Amount, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var account model.Account
	err := r.collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ledgererrors.ErrAccountNotFound
		}
		return 0, fmt.Errorf("failed to read account: %w", err)
	}
	return account.Balance, nil
}

func (r *mongoAccountRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}

type mongoTransactionRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoTransactionRepository(cfg *config.Config) TransactionRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoTransactionRepository{cfg: cfg, collection: db.Collection(TransactionCollection)}
}

func (r *mongoTransactionRepository) Create(ctx context.Context, txn *model.Transaction) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	if _, err := r.collection.InsertOne(ctx, txn); err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

func (r *mongoTransactionRepository) FindByUser(ctx context.Context, userID string, page, size int) ([]*model.Transaction, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(page * size)).
		SetLimit(int64(size))

	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find transactions: %w", err)
	}
	defer cursor.Close(ctx)

	txns := make([]*model.Transaction, 0)
	if err = cursor.All(ctx, &txns); err != nil {
		return nil, fmt.Errorf("failed to decode transactions: %w", err)
	}
	return txns, nil
}

func (r *mongoTransactionRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}
