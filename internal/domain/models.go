package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementKind tells whether a movement added to or removed from the balance.
type MovementKind string

const (
	MovementDeposit    MovementKind = "deposit"
	MovementWithdrawal MovementKind = "withdrawal"
)

// MovementStatus is an enum so that pending/failed states can be added later
// without a schema change. Completed is the only status reachable today.
type MovementStatus string

const (
	MovementCompleted MovementStatus = "completed"
)

// Account represents a customer and their single balance.
type Account struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Username      string          `json:"username"`
	Email         string          `json:"email"`
	PasswordHash  string          `json:"-"`
	AccountNumber string          `json:"account_number"`
	Balance       decimal.Decimal `json:"balance"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Movement is one immutable balance change. Rows are only ever inserted, in
// the same transaction as the balance update they describe.
type Movement struct {
	ID          string          `json:"id"`
	AccountID   int64           `json:"account_id"`
	Kind        MovementKind    `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Status      MovementStatus  `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Session binds a raw token value to an account and an absolute expiry.
// A row existing here is what makes a signed token live; deleting it revokes
// the token regardless of its remaining cryptographic validity.
type Session struct {
	TokenValue string
	AccountID  int64
	ExpiresAt  time.Time
}

// Identity is the caller identity decoded from a validated token's claims.
type Identity struct {
	AccountID int64
	Username  string
}
