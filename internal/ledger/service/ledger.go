package service

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/google/uuid"

	ledgererrors "rally/internal/ledger/errors"
	"rally/internal/ledger/repository"
	"rally/pkg/clock"
	"rally/pkg/config"
	apperrors "rally/pkg/errors"
	"rally/pkg/model"

	"golang.org/x/sync/errgroup"
)

// Ledger moves balances in integer minor units. Every movement writes a
// transaction record with a generated order ID in the same Mongo
// transaction as the balance change.
type Ledger interface {
	Recharge(ctx context.Context, actor model.Actor, userID string, amount model.Amount) (*model.Transaction, error)
	Charge(ctx context.Context, userID string, amount model.Amount, relatedID string) (*model.Transaction, error)
	Refund(ctx context.Context, userID string, amount model.Amount, relatedID string) (*model.Transaction, error)
	Balance(ctx context.Context, actor model.Actor, userID string) (model.Amount, error)
	// BalanceOf is the internal read used by other services for
	// pre-checks; capability enforcement is the caller's concern.
	BalanceOf(ctx context.Context, userID string) (model.Amount, error)
	Transactions(ctx context.Context, actor model.Actor, userID string, page, size int) ([]*model.Transaction, int64, error)
}

type ledgerService struct {
	accounts repository.AccountRepository
	txns     repository.TransactionRepository
	clock    clock.Clock
	cfg      *config.Config
}

func NewLedgerService(
	accounts repository.AccountRepository,
	txns repository.TransactionRepository,
	clk clock.Clock,
	cfg *config.Config,
) Ledger {
	return &ledgerService{
		accounts: accounts,
		txns:     txns,
		clock:    clk,
		cfg:      cfg,
	}
}

// newOrderID generates an order reference: "PAY" + timestamp + an 8-char
// random fragment.
func (s *ledgerService) newOrderID() string {
	fragment := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return "PAY" + s.clock.Now().Format("20060102150405") + fragment
}

func (s *ledgerService) Recharge(ctx context.Context, actor model.Actor, userID string, amount model.Amount) (*model.Transaction, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("User ID cannot be empty")
	}
	if amount <= 0 {
		return nil, apperrors.InvalidInput("Recharge amount must be positive")
	}
	if actor.UserID != userID && !actor.Admin() {
		return nil, apperrors.Forbidden("Only the account holder or an admin can recharge an account")
	}

	now := model.NewDateTime(s.clock.Now())
	txn := &model.Transaction{
		OrderID:   s.newOrderID(),
		UserID:    userID,
		Type:      model.TxnRecharge,
		Amount:    amount,
		CreatedAt: now,
	}

	err := s.accounts.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.accounts.Credit(sessCtx, userID, amount, now); err != nil {
			return apperrors.Internal("Failed to credit account", err)
		}
		if err := s.txns.Create(sessCtx, txn); err != nil {
			return apperrors.Internal("Failed to record recharge", err)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Recharge failed", "user_id", userID, "error", err)
		return nil, err
	}

	s.cfg.Log.Info("Account recharged",
		"user_id", userID,
		"amount", amount.String(),
		"order_id", txn.OrderID,
	)
	return txn, nil
}

func (s *ledgerService) Charge(ctx context.Context, userID string, amount model.Amount, relatedID string) (*model.Transaction, error) {
	if amount <= 0 {
		return nil, apperrors.InvalidInput("Charge amount must be positive")
	}

	now := model.NewDateTime(s.clock.Now())
	txn := &model.Transaction{
		OrderID:   s.newOrderID(),
		UserID:    userID,
		Type:      model.TxnCourseFee,
		Amount:    -amount,
		RelatedID: relatedID,
		CreatedAt: now,
	}

	err := s.accounts.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.accounts.Debit(sessCtx, userID, amount, now); err != nil {
			if errors.Is(err, ledgererrors.ErrInsufficientBalance) {
				return apperrors.Conflict("Insufficient balance").WithDetails(map[string]any{
					"user_id":  userID,
					"required": amount.String(),
				})
			}
			return apperrors.Internal("Failed to debit account", err)
		}
		if err := s.txns.Create(sessCtx, txn); err != nil {
			return apperrors.Internal("Failed to record charge", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cfg.Log.Info("Account charged",
		"user_id", userID,
		"amount", amount.String(),
		"related_id", relatedID,
		"order_id", txn.OrderID,
	)
	return txn, nil
}

func (s *ledgerService) Refund(ctx context.Context, userID string, amount model.Amount, relatedID string) (*model.Transaction, error) {
	if amount <= 0 {
		return nil, apperrors.InvalidInput("Refund amount must be positive")
	}

	now := model.NewDateTime(s.clock.Now())
	txn := &model.Transaction{
		OrderID:   s.newOrderID(),
		UserID:    userID,
		Type:      model.TxnRefund,
		Amount:    amount,
		RelatedID: relatedID,
		CreatedAt: now,
	}

	err := s.accounts.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.accounts.Credit(sessCtx, userID, amount, now); err != nil {
			return apperrors.Internal("Failed to credit refund", err)
		}
		if err := s.txns.Create(sessCtx, txn); err != nil {
			return apperrors.Internal("Failed to record refund", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cfg.Log.Info("Refund issued",
		"user_id", userID,
		"amount", amount.String(),
		"related_id", relatedID,
		"order_id", txn.OrderID,
	)
	return txn, nil
}

func (s *ledgerService) Balance(ctx context.Context, actor model.Actor, userID string) (model.Amount, error) {
	if userID == "" {
		return 0, apperrors.InvalidInput("User ID cannot be empty")
	}
	if actor.UserID != userID && !actor.Admin() {
		return 0, apperrors.Forbidden("Only the account holder or an admin can view a balance")
	}
	return s.BalanceOf(ctx, userID)
}

func (s *ledgerService) BalanceOf(ctx context.Context, userID string) (model.Amount, error) {
	balance, err := s.accounts.Balance(ctx, userID)
	if err != nil {
		if errors.Is(err, ledgererrors.ErrAccountNotFound) {
			// An account with no movements has a zero balance.
			return 0, nil
		}
		return 0, apperrors.Internal("Failed to read balance", err)
	}
	return balance, nil
}

func (s *ledgerService) Transactions(ctx context.Context, actor model.Actor, userID string, page, size int) ([]*model.Transaction, int64, error) {
	if userID == "" {
		return nil, 0, apperrors.InvalidInput("User ID cannot be empty")
	}
	if actor.UserID != userID && !actor.Admin() {
		return nil, 0, apperrors.Forbidden("Only the account holder or an admin can view transactions")
	}

	var (
		txns  []*model.Transaction
		total int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = s.txns.CountByUser(gctx, userID)
		if err != nil {
			return apperrors.Internal("Failed to count transactions", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		txns, err = s.txns.FindByUser(gctx, userID, page, size)
		if err != nil {
			return apperrors.Internal("Failed to list transactions", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	return txns, total, nil
}
