// Package session issues, validates, and revokes bearer tokens. A token is
// live only while two independent predicates both hold: its HMAC signature
// verifies, and a session row for its exact value still exists unexpired.
// The row is what makes server-side revocation possible for a token that is
// otherwise self-contained.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dkomnen/bankledger/internal/domain"
	"github.com/dkomnen/bankledger/internal/storage"
)

const DefaultLifetime = time.Hour

type claims struct {
	AccountID int64  `json:"account_id"`
	Username  string `json:"username"`
	jwt.RegisteredClaims
}

type Store struct {
	store    storage.SessionStore
	secret   []byte
	lifetime time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewStore(store storage.SessionStore, secret []byte, lifetime time.Duration, logger *zap.Logger) *Store {
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		store:    store,
		secret:   secret,
		lifetime: lifetime,
		logger:   logger,
		now:      time.Now,
	}
}

// Issue signs a token for the account and persists the session row that
// keeps it revocable. Returns the raw token value and its expiry.
func (s *Store) Issue(ctx context.Context, accountID int64, username string) (string, time.Time, error) {
	now := s.now()
	expiry := now.Add(s.lifetime)

	// The jti keeps every issued token distinct: iat/exp have second
	// granularity, and two logins inside the same second must not mint the
	// same token value twice.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		AccountID: accountID,
		Username:  username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token signing failed: %w", err)
	}

	if err := s.store.CreateSession(ctx, domain.Session{
		TokenValue: signed,
		AccountID:  accountID,
		ExpiresAt:  expiry,
	}); err != nil {
		return "", time.Time{}, err
	}
	return signed, expiry, nil
}

// Validate checks the signature first, then the session row. Both must pass:
// a revoked token still carries a valid signature, and a forged token may
// imitate live claims. The identity comes from the signed claims; the row is
// consulted only as a liveness oracle.
func (s *Store) Validate(ctx context.Context, tokenValue string) (*domain.Identity, error) {
	var c claims
	_, err := jwt.ParseWithClaims(tokenValue, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrSessionExpiredOrRevoked
		}
		return nil, domain.ErrInvalidToken
	}

	sess, err := s.store.GetSession(ctx, tokenValue)
	if err != nil {
		return nil, err
	}
	if !sess.ExpiresAt.After(s.now()) {
		// Lazy reap: the row is dead weight once past expiry.
		if err := s.store.DeleteSession(ctx, tokenValue); err != nil {
			s.logger.Warn("expired session cleanup failed", zap.Error(err))
		}
		return nil, domain.ErrSessionExpiredOrRevoked
	}

	return &domain.Identity{AccountID: c.AccountID, Username: c.Username}, nil
}

// Revoke deletes the session row, idempotently. The token's signature stays
// valid until its natural expiry, but Validate will refuse it from now on.
func (s *Store) Revoke(ctx context.Context, tokenValue string) error {
	return s.store.DeleteSession(ctx, tokenValue)
}

// Reap removes expired session rows. Storage hygiene only.
func (s *Store) Reap(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredSessions(ctx)
}
