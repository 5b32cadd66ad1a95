// Package storage defines the persistence contracts the services run on.
// Two implementations exist: postgres (production) and memory (tests, local
// runs without a database).
package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/dkomnen/bankledger/internal/domain"
)

// LedgerStore owns the balance column and the movement log. ApplyMovement is
// the only write path: it must lock the account row exclusively, re-read the
// balance under the lock, and commit the balance update together with the
// movement row or not at all.
type LedgerStore interface {
	// Balance returns the current balance without taking a lock.
	Balance(ctx context.Context, accountID int64) (decimal.Decimal, error)

	// Movements returns all movements for the account, newest first.
	Movements(ctx context.Context, accountID int64) ([]domain.Movement, error)

	// ApplyMovement atomically applies mv to the account balance and appends
	// mv to the movement log. CreatedAt is stamped by the store while the
	// row lock is held, so timestamp order agrees with commit order.
	// Returns the committed movement and the balance after it. Fails with
	// domain.ErrAccountNotFound or domain.ErrInsufficientFunds without
	// changing any state.
	ApplyMovement(ctx context.Context, mv domain.Movement) (domain.Movement, decimal.Decimal, error)
}

// SessionStore owns the session rows that act as the revocation oracle for
// signed tokens.
type SessionStore interface {
	CreateSession(ctx context.Context, s domain.Session) error

	// GetSession returns the session for the exact token value, or
	// domain.ErrSessionExpiredOrRevoked if no row exists.
	GetSession(ctx context.Context, tokenValue string) (*domain.Session, error)

	// DeleteSession removes the row. Deleting an absent row is not an error.
	DeleteSession(ctx context.Context, tokenValue string) error

	// DeleteExpiredSessions reaps rows past their expiry. Storage hygiene
	// only; correctness never depends on it running.
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// AccountStore owns account rows minus the balance column, which only the
// LedgerStore may write.
type AccountStore interface {
	// CreateAccount inserts the account and returns its assigned id.
	// A username, email, or account-number collision fails with
	// domain.ErrDuplicateAccount.
	CreateAccount(ctx context.Context, a domain.Account) (int64, error)

	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*domain.Account, error)
}
