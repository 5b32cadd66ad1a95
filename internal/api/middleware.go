package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/dkomnen/bankledger/internal/domain"
)

type contextKey int

const identityKey contextKey = iota

// IdentityFromContext returns the identity the auth middleware attached.
// Handlers behind RequireAuth can rely on it being present.
func IdentityFromContext(ctx context.Context) *domain.Identity {
	identity, _ := ctx.Value(identityKey).(*domain.Identity)
	return identity
}

// RequireAuth validates the bearer cookie and injects the caller identity
// into the request context. Failures never say which of the two predicates
// (signature, live session row) was the one that failed.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(CookieName)
		if err != nil {
			h.respondError(w, http.StatusUnauthorized, "Not authenticated", r.Method, r.URL.Path)
			return
		}

		identity, err := h.sessions.Validate(r.Context(), cookie.Value)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidToken),
				errors.Is(err, domain.ErrSessionExpiredOrRevoked):
				h.respondError(w, http.StatusUnauthorized, "Invalid or expired session", r.Method, r.URL.Path)
			default:
				h.systemError(w, err, r.Method, r.URL.Path)
			}
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
