package accounts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkomnen/bankledger/internal/domain"
	"github.com/dkomnen/bankledger/internal/session"
	"github.com/dkomnen/bankledger/internal/storage/memory"
)

func newTestService() (*Service, *session.Store) {
	mem := memory.NewStore()
	sessions := session.NewStore(mem, []byte("test-secret"), time.Hour, nil)
	return NewService(mem, sessions, nil), sessions
}

func register(t *testing.T, svc *Service, username, email string) *domain.Account {
	t.Helper()
	a, err := svc.Register(context.Background(), RegisterParams{
		Name:     "Test User",
		Username: username,
		Email:    email,
		Password: "hunter2!",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return a
}

func TestRegister(t *testing.T) {
	svc, _ := newTestService()
	a := register(t, svc, "alice", "alice@example.com")

	if a.ID == 0 {
		t.Fatal("account id not assigned")
	}
	if !a.Balance.IsZero() {
		t.Fatalf("opening balance = %s, want 0", a.Balance)
	}
	if len(a.AccountNumber) != accountNumberDigits {
		t.Fatalf("account number %q, want %d digits", a.AccountNumber, accountNumberDigits)
	}
	if a.PasswordHash == "hunter2!" || a.PasswordHash == "" {
		t.Fatal("password stored unhashed or missing")
	}
}

func TestRegisterDuplicates(t *testing.T) {
	svc, _ := newTestService()
	register(t, svc, "alice", "alice@example.com")

	cases := []struct {
		name     string
		username string
		email    string
	}{
		{"same username", "alice", "other@example.com"},
		{"same email", "someone", "alice@example.com"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), RegisterParams{
				Name:     "Dup",
				Username: tc.username,
				Email:    tc.email,
				Password: "pw",
			})
			if !errors.Is(err, domain.ErrDuplicateAccount) {
				t.Fatalf("want ErrDuplicateAccount, got %v", err)
			}
		})
	}
}

func TestAccountNumbersAreUnique(t *testing.T) {
	svc, _ := newTestService()
	a := register(t, svc, "alice", "alice@example.com")
	b := register(t, svc, "bob", "bob@example.com")
	if a.AccountNumber == b.AccountNumber {
		t.Fatalf("account numbers collide: %s", a.AccountNumber)
	}
}

func TestLoginIssuesValidatableToken(t *testing.T) {
	svc, sessions := newTestService()
	a := register(t, svc, "alice", "alice@example.com")
	ctx := context.Background()

	token, expiry, err := svc.Login(ctx, "alice", "hunter2!")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !expiry.After(time.Now()) {
		t.Fatalf("expiry %s is not in the future", expiry)
	}

	identity, err := sessions.Validate(ctx, token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if identity.AccountID != a.ID || identity.Username != "alice" {
		t.Fatalf("identity = %+v", identity)
	}
}

// A wrong password and an unknown username must be indistinguishable.
func TestLoginFailures(t *testing.T) {
	svc, _ := newTestService()
	register(t, svc, "alice", "alice@example.com")
	ctx := context.Background()

	if _, _, err := svc.Login(ctx, "alice", "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("wrong password: want ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody", "hunter2!"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("unknown user: want ErrInvalidCredentials, got %v", err)
	}
}

func TestRegisterRequiresFields(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Register(context.Background(), RegisterParams{Username: "x"})
	if err == nil {
		t.Fatal("want error for missing fields")
	}
}
