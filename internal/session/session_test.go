package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkomnen/bankledger/internal/domain"
	"github.com/dkomnen/bankledger/internal/storage/memory"
)

var testSecret = []byte("test-secret")

func newTestStore() (*Store, *memory.Store) {
	mem := memory.NewStore()
	return NewStore(mem, testSecret, time.Hour, nil), mem
}

func TestIssueThenValidate(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	token, expiry, err := s.Issue(ctx, 7, "alice")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if token == "" {
		t.Fatal("empty token")
	}
	if remaining := time.Until(expiry); remaining < 59*time.Minute || remaining > time.Hour {
		t.Fatalf("expiry %s not about an hour out", expiry)
	}

	identity, err := s.Validate(ctx, token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if identity.AccountID != 7 || identity.Username != "alice" {
		t.Fatalf("identity = %+v", identity)
	}
}

// Claim timestamps have second granularity, so two logins by the same
// account inside the same second must still mint distinct token values —
// the session table keys on the raw value.
func TestIssueTwiceSameInstantMintsDistinctTokens(t *testing.T) {
	s, mem := newTestStore()
	ctx := context.Background()

	pinned := time.Now()
	s.now = func() time.Time { return pinned }

	first, _, err := s.Issue(ctx, 1, "alice")
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := s.Issue(ctx, 1, "alice")
	if err != nil {
		t.Fatalf("second issue in the same second failed: %v", err)
	}
	if first == second {
		t.Fatal("identical token issued twice")
	}

	// Both sessions are live and independently revocable.
	for _, token := range []string{first, second} {
		if _, err := s.Validate(ctx, token); err != nil {
			t.Fatalf("Validate: %v", err)
		}
	}
	if err := s.Revoke(ctx, first); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Validate(ctx, first); !errors.Is(err, domain.ErrSessionExpiredOrRevoked) {
		t.Fatalf("revoked token: want ErrSessionExpiredOrRevoked, got %v", err)
	}
	if _, err := s.Validate(ctx, second); err != nil {
		t.Fatalf("sibling session should survive: %v", err)
	}
	if _, err := mem.GetSession(ctx, second); err != nil {
		t.Fatalf("sibling row should remain: %v", err)
	}
}

func TestRevokeKillsLiveToken(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	token, _, err := s.Issue(ctx, 1, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Validate(ctx, token); err != nil {
		t.Fatalf("token should be live before revoke: %v", err)
	}

	if err := s.Revoke(ctx, token); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	// The signature is still cryptographically valid; the missing row alone
	// must kill the token.
	if _, err := s.Validate(ctx, token); !errors.Is(err, domain.ErrSessionExpiredOrRevoked) {
		t.Fatalf("want ErrSessionExpiredOrRevoked, got %v", err)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	token, _, _ := s.Issue(ctx, 1, "bob")
	if err := s.Revoke(ctx, token); err != nil {
		t.Fatal(err)
	}
	if err := s.Revoke(ctx, token); err != nil {
		t.Fatalf("second revoke should be a no-op: %v", err)
	}
	if err := s.Revoke(ctx, "never-issued"); err != nil {
		t.Fatalf("revoking an unknown token should be a no-op: %v", err)
	}
}

func TestExpiryByClock(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	token, _, err := s.Issue(ctx, 3, "carol")
	if err != nil {
		t.Fatal(err)
	}

	// Move the store's clock past the expiry instead of sleeping.
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if _, err := s.Validate(ctx, token); !errors.Is(err, domain.ErrSessionExpiredOrRevoked) {
		t.Fatalf("want ErrSessionExpiredOrRevoked, got %v", err)
	}
}

func TestExpiredRowLazilyReaped(t *testing.T) {
	s, mem := newTestStore()
	ctx := context.Background()

	token, _, _ := s.Issue(ctx, 3, "carol")

	// Age the server-side row independently of the signed expiry, as if the
	// row outlived a shortened session policy.
	mem.CreateSession(ctx, domain.Session{
		TokenValue: token,
		AccountID:  3,
		ExpiresAt:  time.Now().Add(-time.Minute),
	})

	if _, err := s.Validate(ctx, token); !errors.Is(err, domain.ErrSessionExpiredOrRevoked) {
		t.Fatalf("want ErrSessionExpiredOrRevoked, got %v", err)
	}
	if _, err := mem.GetSession(ctx, token); !errors.Is(err, domain.ErrSessionExpiredOrRevoked) {
		t.Fatalf("expired row should have been deleted on read, got %v", err)
	}
}

func TestForgedTokenRejected(t *testing.T) {
	s, mem := newTestStore()
	ctx := context.Background()

	// An attacker signing with their own key, even if they somehow plant a
	// matching session row, must fail the signature predicate.
	forger := NewStore(mem, []byte("attacker-secret"), time.Hour, nil)
	forged, _, err := forger.Issue(ctx, 1, "victim")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Validate(ctx, forged); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}
}

func TestGarbageTokenRejected(t *testing.T) {
	s, _ := newTestStore()
	if _, err := s.Validate(context.Background(), "not.a.token"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}
}

func TestReapRemovesOnlyExpired(t *testing.T) {
	s, mem := newTestStore()
	ctx := context.Background()

	live, _, _ := s.Issue(ctx, 1, "live")

	short := NewStore(mem, testSecret, time.Nanosecond, nil)
	short.lifetime = -time.Minute // already expired at issue time
	expired, _, _ := short.Issue(ctx, 2, "stale")

	n, err := s.Reap(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("reaped = %d, want 1", n)
	}
	if _, err := s.Validate(ctx, live); err != nil {
		t.Fatalf("live token should survive reap: %v", err)
	}
	if _, err := mem.GetSession(ctx, expired); !errors.Is(err, domain.ErrSessionExpiredOrRevoked) {
		t.Fatalf("expired row should be gone, got %v", err)
	}
}
