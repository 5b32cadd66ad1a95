// Package postgres implements the storage contracts on top of a pgx
// connection pool. Balance mutation uses SELECT ... FOR UPDATE so that
// concurrent movements on the same account serialize at the row, while
// unrelated accounts proceed freely.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dkomnen/bankledger/internal/domain"
	"github.com/dkomnen/bankledger/internal/storage"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(ctx context.Context, connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{db: pool}, nil
}

func (s *Store) Close() {
	s.db.Close()
}

// Setup creates the schema if it does not exist yet.
func (s *Store) Setup(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			name TEXT NOT NULL,
			username TEXT UNIQUE NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			account_number TEXT UNIQUE NOT NULL,
			balance NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS movements (
			id UUID PRIMARY KEY,
			account_id BIGINT NOT NULL REFERENCES accounts(id),
			kind TEXT NOT NULL,
			amount NUMERIC(12,2) NOT NULL CHECK (amount > 0),
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS movements_account_created_idx
			ON movements (account_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token_value TEXT PRIMARY KEY,
			account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			expires_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema setup failed: %w", err)
		}
	}
	return nil
}

// --- LedgerStore ---

func (s *Store) Balance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	var raw string
	err := s.db.QueryRow(ctx,
		"SELECT balance::text FROM accounts WHERE id = $1", accountID,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, domain.ErrAccountNotFound
		}
		return decimal.Zero, classify(err)
	}
	return decimal.NewFromString(raw)
}

func (s *Store) Movements(ctx context.Context, accountID int64) ([]domain.Movement, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)", accountID,
	).Scan(&exists)
	if err != nil {
		return nil, classify(err)
	}
	if !exists {
		return nil, domain.ErrAccountNotFound
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, account_id, kind, amount::text, description, status, created_at
		 FROM movements WHERE account_id = $1 ORDER BY created_at DESC`,
		accountID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var movements []domain.Movement
	for rows.Next() {
		var mv domain.Movement
		var amount string
		if err := rows.Scan(&mv.ID, &mv.AccountID, &mv.Kind, &amount,
			&mv.Description, &mv.Status, &mv.CreatedAt); err != nil {
			return nil, classify(err)
		}
		mv.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("bad amount in movement %s: %w", mv.ID, err)
		}
		movements = append(movements, mv)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return movements, nil
}

// ApplyMovement runs the locked read-modify-write cycle. The balance is read
// only after the row lock is held; a value read earlier could be stale by the
// time the lock arrives. CreatedAt is stamped under the lock for the same
// reason: a timestamp taken before it could disagree with commit order.
func (s *Store) ApplyMovement(ctx context.Context, mv domain.Movement) (domain.Movement, decimal.Decimal, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mv, decimal.Zero, classify(err)
	}
	defer tx.Rollback(ctx)

	var raw string
	err = tx.QueryRow(ctx,
		"SELECT balance::text FROM accounts WHERE id = $1 FOR UPDATE", mv.AccountID,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mv, decimal.Zero, domain.ErrAccountNotFound
		}
		return mv, decimal.Zero, classify(err)
	}
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return mv, decimal.Zero, fmt.Errorf("bad balance for account %d: %w", mv.AccountID, err)
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
	mv.CreatedAt = time.Now().UTC()

	_, err = tx.Exec(ctx,
		"UPDATE accounts SET balance = $1 WHERE id = $2",
		newBalance.StringFixed(2), mv.AccountID)
	if err != nil {
		return mv, decimal.Zero, classify(err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO movements (id, account_id, kind, amount, description, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		mv.ID, mv.AccountID, mv.Kind, mv.Amount.StringFixed(2),
		mv.Description, mv.Status, mv.CreatedAt)
	if err != nil {
		return mv, decimal.Zero, classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mv, decimal.Zero, classify(err)
	}
	return mv, newBalance, nil
}

// --- SessionStore ---

func (s *Store) CreateSession(ctx context.Context, sess domain.Session) error {
	_, err := s.db.Exec(ctx,
		"INSERT INTO sessions (token_value, account_id, expires_at) VALUES ($1, $2, $3)",
		sess.TokenValue, sess.AccountID, sess.ExpiresAt)
	if err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, tokenValue string) (*domain.Session, error) {
	var sess domain.Session
	err := s.db.QueryRow(ctx,
		"SELECT token_value, account_id, expires_at FROM sessions WHERE token_value = $1",
		tokenValue,
	).Scan(&sess.TokenValue, &sess.AccountID, &sess.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionExpiredOrRevoked
		}
		return nil, classify(err)
	}
	return &sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, tokenValue string) error {
	if _, err := s.db.Exec(ctx,
		"DELETE FROM sessions WHERE token_value = $1", tokenValue); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, "DELETE FROM sessions WHERE expires_at <= now()")
	if err != nil {
		return 0, classify(err)
	}
	return tag.RowsAffected(), nil
}

// --- AccountStore ---

func (s *Store) CreateAccount(ctx context.Context, a domain.Account) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO accounts (name, username, email, password_hash, account_number, balance)
		 VALUES ($1, $2, $3, $4, $5, 0) RETURNING id`,
		a.Name, a.Username, a.Email, a.PasswordHash, a.AccountNumber,
	).Scan(&id)
	if err != nil {
		// A unique violation means a duplicate account only here; every
		// other insert in this store has its own uniqueness story.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, domain.ErrDuplicateAccount
		}
		return 0, classify(err)
	}
	return id, nil
}

func (s *Store) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	return s.getAccount(ctx,
		`SELECT id, name, username, email, password_hash, account_number, balance::text, created_at
		 FROM accounts WHERE id = $1`, id)
}

func (s *Store) GetAccountByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return s.getAccount(ctx,
		`SELECT id, name, username, email, password_hash, account_number, balance::text, created_at
		 FROM accounts WHERE username = $1`, username)
}

func (s *Store) getAccount(ctx context.Context, query string, arg any) (*domain.Account, error) {
	var a domain.Account
	var balance string
	err := s.db.QueryRow(ctx, query, arg).Scan(
		&a.ID, &a.Name, &a.Username, &a.Email, &a.PasswordHash,
		&a.AccountNumber, &balance, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, classify(err)
	}
	a.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("bad balance for account %d: %w", a.ID, err)
	}
	return &a, nil
}

var (
	_ storage.LedgerStore  = (*Store)(nil)
	_ storage.SessionStore = (*Store)(nil)
	_ storage.AccountStore = (*Store)(nil)
)

// classify maps driver errors onto the domain taxonomy. Serialization
// failures, deadlock victims, and lock-wait timeouts are transient and worth
// one re-run; everything else is storage unavailability.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %v", domain.ErrStorageTransient, err)
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
}
