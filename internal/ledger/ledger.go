// Package ledger owns every balance mutation. All writes run through the
// store's locked transaction path; nothing else in the repo may touch the
// balance column.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dkomnen/bankledger/internal/domain"
	"github.com/dkomnen/bankledger/internal/events"
	"github.com/dkomnen/bankledger/internal/storage"
)

// Per-transaction caps. The withdrawal cap is deliberately tighter than the
// deposit cap.
var (
	MaxDepositPerTransaction    = decimal.NewFromInt(1_000_000)
	MaxWithdrawalPerTransaction = decimal.NewFromInt(10_000)
)

type Service struct {
	store     storage.LedgerStore
	publisher events.Publisher
	logger    *zap.Logger
}

func NewService(store storage.LedgerStore, publisher events.Publisher, logger *zap.Logger) *Service {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, publisher: publisher, logger: logger}
}

// GetBalance returns the current balance. Read-only, no lock.
func (s *Service) GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	return s.store.Balance(ctx, accountID)
}

// ListMovements returns the full movement log, newest first.
func (s *Service) ListMovements(ctx context.Context, accountID int64) ([]domain.Movement, error) {
	return s.store.Movements(ctx, accountID)
}

// Deposit increments the balance and appends a deposit movement in one
// atomic unit.
func (s *Service) Deposit(ctx context.Context, accountID int64, amount decimal.Decimal, description string) (*domain.Movement, error) {
	if err := validateAmount(amount, MaxDepositPerTransaction); err != nil {
		return nil, err
	}
	return s.apply(ctx, domain.Movement{
		ID:          uuid.New().String(),
		AccountID:   accountID,
		Kind:        domain.MovementDeposit,
		Amount:      amount,
		Description: description,
		Status:      domain.MovementCompleted,
	})
}

// Withdraw decrements the balance and appends a withdrawal movement in one
// atomic unit. The store checks the balance only after the account row lock
// is held, so two concurrent withdrawals can never both pass the check
// against a balance that covers only one of them.
func (s *Service) Withdraw(ctx context.Context, accountID int64, amount decimal.Decimal, description string) (*domain.Movement, error) {
	if err := validateAmount(amount, MaxWithdrawalPerTransaction); err != nil {
		return nil, err
	}
	return s.apply(ctx, domain.Movement{
		ID:          uuid.New().String(),
		AccountID:   accountID,
		Kind:        domain.MovementWithdrawal,
		Amount:      amount,
		Description: description,
		Status:      domain.MovementCompleted,
	})
}

// apply commits the movement, re-running the whole transaction once if the
// store reports a transient conflict. Business failures are never retried.
// The store stamps CreatedAt under the row lock; the committed movement it
// returns is the one callers see.
func (s *Service) apply(ctx context.Context, mv domain.Movement) (*domain.Movement, error) {
	applied, balance, err := s.store.ApplyMovement(ctx, mv)
	if errors.Is(err, domain.ErrStorageTransient) {
		s.logger.Warn("transient storage conflict, retrying movement",
			zap.String("movement_id", mv.ID),
			zap.Int64("account_id", mv.AccountID),
			zap.Error(err))
		applied, balance, err = s.store.ApplyMovement(ctx, mv)
	}
	if err != nil {
		if errors.Is(err, domain.ErrStorageTransient) {
			return nil, fmt.Errorf("%w: retry exhausted: %v", domain.ErrStorageUnavailable, err)
		}
		return nil, err
	}

	if err := s.publisher.Publish(events.TopicMovementRecorded, events.MovementRecorded{
		MovementID: applied.ID,
		AccountID:  applied.AccountID,
		Kind:       applied.Kind,
		Amount:     applied.Amount,
		Balance:    balance,
		OccurredAt: applied.CreatedAt,
	}); err != nil {
		// The movement is committed; the event is best-effort.
		s.logger.Warn("movement event publish failed",
			zap.String("movement_id", applied.ID), zap.Error(err))
	}
	return &applied, nil
}

// validateAmount enforces the rules for movement amounts: strictly positive,
// at most two fractional digits, and within the per-transaction cap.
func validateAmount(amount, limit decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return domain.ErrInvalidAmount
	}
	if amount.Exponent() < -2 && !amount.Equal(amount.Truncate(2)) {
		return domain.ErrInvalidAmount
	}
	if amount.GreaterThan(limit) {
		return domain.ErrInvalidAmount
	}
	return nil
}
