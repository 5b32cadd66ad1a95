package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dkomnen/bankledger/internal/domain"
)

func seedAccount(t *testing.T, s *Store, username string) int64 {
	t.Helper()
	id, err := s.CreateAccount(context.Background(), domain.Account{
		Name:          "T",
		Username:      username,
		Email:         username + "@example.com",
		PasswordHash:  "x",
		AccountNumber: "00000000" + username,
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestApplyMovementUnknownAccount(t *testing.T) {
	s := NewStore()
	_, _, err := s.ApplyMovement(context.Background(), domain.Movement{
		ID:        "m1",
		AccountID: 42,
		Kind:      domain.MovementDeposit,
		Amount:    decimal.NewFromInt(1),
	})
	if !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("want ErrAccountNotFound, got %v", err)
	}
}

// An unrecognized kind must be refused outright, not applied as a zero
// balance write.
func TestApplyMovementUnknownKind(t *testing.T) {
	s := NewStore()
	id := seedAccount(t, s, "a")
	ctx := context.Background()

	if _, _, err := s.ApplyMovement(ctx, domain.Movement{
		ID:        "m1",
		AccountID: id,
		Kind:      domain.MovementDeposit,
		Amount:    decimal.NewFromInt(50),
	}); err != nil {
		t.Fatal(err)
	}

	_, _, err := s.ApplyMovement(ctx, domain.Movement{
		ID:        "m2",
		AccountID: id,
		Kind:      domain.MovementKind("reversal"),
		Amount:    decimal.NewFromInt(1),
	})
	if err == nil {
		t.Fatal("want error for unknown movement kind")
	}

	balance, _ := s.Balance(ctx, id)
	if !balance.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("balance = %s, want 50 untouched", balance)
	}
	movements, _ := s.Movements(ctx, id)
	if len(movements) != 1 {
		t.Fatalf("movements = %d, want 1", len(movements))
	}
}

func TestMovementsReturnedNewestFirst(t *testing.T) {
	s := NewStore()
	id := seedAccount(t, s, "a")
	ctx := context.Background()

	for i, desc := range []string{"first", "second", "third"} {
		_, _, err := s.ApplyMovement(ctx, domain.Movement{
			ID:          desc,
			AccountID:   id,
			Kind:        domain.MovementDeposit,
			Amount:      decimal.NewFromInt(int64(i + 1)),
			Description: desc,
			Status:      domain.MovementCompleted,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	movements, err := s.Movements(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"third", "second", "first"}
	for i, mv := range movements {
		if mv.ID != want[i] {
			t.Fatalf("movements[%d] = %s, want %s", i, mv.ID, want[i])
		}
	}
}

func TestDistinctAccountsDoNotContend(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	a := seedAccount(t, s, "a")
	b := seedAccount(t, s, "b")

	var wg sync.WaitGroup
	for _, id := range []int64{a, b} {
		wg.Add(1)
		go func(acct int64) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.ApplyMovement(ctx, domain.Movement{
					ID:        "x",
					AccountID: acct,
					Kind:      domain.MovementDeposit,
					Amount:    decimal.NewFromInt(1),
				})
			}
		}(id)
	}
	wg.Wait()

	for _, id := range []int64{a, b} {
		balance, err := s.Balance(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if !balance.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("account %d balance = %s, want 100", id, balance)
		}
	}
}

func TestCreateAccountDuplicate(t *testing.T) {
	s := NewStore()
	seedAccount(t, s, "a")
	_, err := s.CreateAccount(context.Background(), domain.Account{
		Username:      "a",
		Email:         "fresh@example.com",
		AccountNumber: "x",
	})
	if !errors.Is(err, domain.ErrDuplicateAccount) {
		t.Fatalf("want ErrDuplicateAccount, got %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	sess := domain.Session{TokenValue: "tok", AccountID: 1, ExpiresAt: time.Now().Add(time.Hour)}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetSession(ctx, "tok")
	if err != nil {
		t.Fatal(err)
	}
	if got.AccountID != 1 {
		t.Fatalf("session = %+v", got)
	}

	if err := s.DeleteSession(ctx, "tok"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetSession(ctx, "tok"); !errors.Is(err, domain.ErrSessionExpiredOrRevoked) {
		t.Fatalf("want ErrSessionExpiredOrRevoked, got %v", err)
	}
}
