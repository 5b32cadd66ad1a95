// Package accounts handles registration, login, and profile lookups.
// Balances are out of its hands entirely: accounts are created with a zero
// balance and every later change goes through the ledger.
package accounts

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dkomnen/bankledger/internal/domain"
	"github.com/dkomnen/bankledger/internal/session"
	"github.com/dkomnen/bankledger/internal/storage"
)

const accountNumberDigits = 12

type Service struct {
	store    storage.AccountStore
	sessions *session.Store
	logger   *zap.Logger
}

func NewService(store storage.AccountStore, sessions *session.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, sessions: sessions, logger: logger}
}

type RegisterParams struct {
	Name     string
	Username string
	Email    string
	Password string
}

// Register creates an account with a zero opening balance and a generated,
// immutable account number. Username and email collisions fail with
// domain.ErrDuplicateAccount.
func (s *Service) Register(ctx context.Context, p RegisterParams) (*domain.Account, error) {
	if p.Username == "" || p.Email == "" || p.Password == "" {
		return nil, fmt.Errorf("%w: username, email, and password are required", domain.ErrInvalidCredentials)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("password hashing failed: %w", err)
	}

	a := domain.Account{
		Name:         p.Name,
		Username:     strings.TrimSpace(p.Username),
		Email:        strings.ToLower(strings.TrimSpace(p.Email)),
		PasswordHash: string(hash),
	}

	// A generated number can collide with an existing row; one regeneration
	// covers that without masking real username/email duplicates.
	for attempt := 0; attempt < 2; attempt++ {
		a.AccountNumber, err = generateAccountNumber()
		if err != nil {
			return nil, err
		}
		id, err := s.store.CreateAccount(ctx, a)
		if err == nil {
			created, err := s.store.GetAccount(ctx, id)
			if err != nil {
				return nil, err
			}
			s.logger.Info("account registered",
				zap.Int64("account_id", id),
				zap.String("account_number", created.AccountNumber))
			return created, nil
		}
		if !errors.Is(err, domain.ErrDuplicateAccount) || attempt == 1 {
			return nil, err
		}
	}
	return nil, domain.ErrDuplicateAccount
}

// Login verifies the credentials and issues a session token. A missing
// account and a wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	a, err := s.store.GetAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return "", time.Time{}, domain.ErrInvalidCredentials
		}
		return "", time.Time{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return "", time.Time{}, domain.ErrInvalidCredentials
	}

	return s.sessions.Issue(ctx, a.ID, a.Username)
}

// GetAccount returns the profile for an already-authenticated identity.
func (s *Service) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	return s.store.GetAccount(ctx, id)
}

func generateAccountNumber() (string, error) {
	var b strings.Builder
	for i := 0; i < accountNumberDigits; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("account number generation failed: %w", err)
		}
		fmt.Fprintf(&b, "%d", n.Int64())
	}
	return b.String(), nil
}
