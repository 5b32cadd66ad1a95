package domain

import "errors"

// Business and input failures. These are reported to the caller verbatim and
// never retried.
var (
	ErrAccountNotFound         = errors.New("account not found")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrInvalidToken            = errors.New("invalid token")
	ErrSessionExpiredOrRevoked = errors.New("session expired or revoked")
	ErrDuplicateAccount        = errors.New("username or email already exists")
	ErrInvalidCredentials      = errors.New("invalid credentials")
)

// System faults. ErrStorageTransient marks failures worth one transparent
// re-run of the whole transaction (deadlock victim, lock-wait timeout);
// everything else storage-side surfaces as ErrStorageUnavailable.
var (
	ErrStorageTransient   = errors.New("transient storage failure")
	ErrStorageUnavailable = errors.New("storage unavailable")
)
