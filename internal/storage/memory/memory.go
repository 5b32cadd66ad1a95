// Package memory is an in-memory implementation of the storage contracts.
// It backs the service tests and lets the server run without a database.
// Per-account mutexes play the role of the row lock: movements on the same
// account serialize, movements on different accounts do not contend.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dkomnen/bankledger/internal/domain"
	"github.com/dkomnen/bankledger/internal/storage"
)

type Store struct {
	mu        sync.Mutex
	nextID    int64
	accounts  map[int64]*domain.Account
	movements map[int64][]domain.Movement
	sessions  map[string]domain.Session

	lockMu   sync.Mutex
	rowLocks map[int64]*sync.Mutex
}

func NewStore() *Store {
	return &Store{
		accounts:  make(map[int64]*domain.Account),
		movements: make(map[int64][]domain.Movement),
		sessions:  make(map[string]domain.Session),
		rowLocks:  make(map[int64]*sync.Mutex),
	}
}

// rowLock returns the mutex standing in for the account's row lock.
func (s *Store) rowLock(accountID int64) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if _, ok := s.rowLocks[accountID]; !ok {
		s.rowLocks[accountID] = &sync.Mutex{}
	}
	return s.rowLocks[accountID]
}

// --- LedgerStore ---

func (s *Store) Balance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return decimal.Zero, domain.ErrAccountNotFound
	}
	return a.Balance, nil
}

func (s *Store) Movements(ctx context.Context, accountID int64) ([]domain.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[accountID]; !ok {
		return nil, domain.ErrAccountNotFound
	}
	log := s.movements[accountID]
	out := make([]domain.Movement, len(log))
	// stored oldest first; returned newest first
	for i, mv := range log {
		out[len(log)-1-i] = mv
	}
	return out, nil
}

func (s *Store) ApplyMovement(ctx context.Context, mv domain.Movement) (domain.Movement, decimal.Decimal, error) {
	lock := s.rowLock(mv.AccountID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	a, ok := s.accounts[mv.AccountID]
	balance := decimal.Zero
	if ok {
		balance = a.Balance
	}
	s.mu.Unlock()
	if !ok {
		return mv, decimal.Zero, domain.ErrAccountNotFound
	}

	var newBalance decimal.Decimal
	switch mv.Kind {
	case domain.MovementDeposit:
		newBalance = balance.Add(mv.Amount)
	case domain.MovementWithdrawal:
		if balance.LessThan(mv.Amount) {
			return mv, decimal.Zero, domain.ErrInsufficientFunds
		}
		newBalance = balance.Sub(mv.Amount)
	default:
		return mv, decimal.Zero, fmt.Errorf("unknown movement kind %q", mv.Kind)
	}
	// Stamped under the row lock so timestamp order matches commit order.
	mv.CreatedAt = time.Now().UTC()

	s.mu.Lock()
	a.Balance = newBalance
	s.movements[mv.AccountID] = append(s.movements[mv.AccountID], mv)
	s.mu.Unlock()
	return mv, newBalance, nil
}

// --- SessionStore ---

func (s *Store) CreateSession(ctx context.Context, sess domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.TokenValue] = sess
	return nil
}

func (s *Store) GetSession(ctx context.Context, tokenValue string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[tokenValue]
	if !ok {
		return nil, domain.ErrSessionExpiredOrRevoked
	}
	cp := sess
	return &cp, nil
}

func (s *Store) DeleteSession(ctx context.Context, tokenValue string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, tokenValue)
	return nil
}

func (s *Store) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var reaped int64
	for token, sess := range s.sessions {
		if !sess.ExpiresAt.After(now) {
			delete(s.sessions, token)
			reaped++
		}
	}
	return reaped, nil
}

// --- AccountStore ---

func (s *Store) CreateAccount(ctx context.Context, a domain.Account) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if existing.Username == a.Username || existing.Email == a.Email ||
			existing.AccountNumber == a.AccountNumber {
			return 0, domain.ErrDuplicateAccount
		}
	}
	s.nextID++
	a.ID = s.nextID
	a.Balance = decimal.Zero
	a.CreatedAt = time.Now()
	s.accounts[a.ID] = &a
	return a.ID, nil
}

func (s *Store) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) GetAccountByUsername(ctx context.Context, username string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

var (
	_ storage.LedgerStore  = (*Store)(nil)
	_ storage.SessionStore = (*Store)(nil)
	_ storage.AccountStore = (*Store)(nil)
)
