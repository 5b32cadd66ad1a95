// Package api is the HTTP edge: request shaping, cookie transport, and the
// mapping of domain failures onto status codes. All correctness lives below
// it in the ledger and session packages.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dkomnen/bankledger/internal/accounts"
	"github.com/dkomnen/bankledger/internal/domain"
	"github.com/dkomnen/bankledger/internal/ledger"
	"github.com/dkomnen/bankledger/internal/session"
)

const CookieName = "authToken"

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bank_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bank_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})

	movementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bank_ledger_movements_total",
		Help: "Committed ledger movements by kind",
	}, []string{"kind"})
)

type Handler struct {
	ledger   *ledger.Service
	sessions *session.Store
	accounts *accounts.Service
	logger   *zap.Logger
}

func NewHandler(l *ledger.Service, s *session.Store, a *accounts.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{ledger: l, sessions: s, accounts: a, logger: logger}
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, r.Method, "/health")
}

func (h *Handler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name            string `json:"name"`
		Username        string `json:"username"`
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", r.Method, "/signup")
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		h.respondError(w, http.StatusBadRequest, "Required fields missing", r.Method, "/signup")
		return
	}
	if req.Password != req.ConfirmPassword {
		h.respondError(w, http.StatusBadRequest, "Passwords do not match", r.Method, "/signup")
		return
	}

	account, err := h.accounts.Register(r.Context(), accounts.RegisterParams{
		Name:     req.Name,
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateAccount) {
			h.respondError(w, http.StatusConflict, "Username or email already exists", r.Method, "/signup")
			return
		}
		h.systemError(w, err, r.Method, "/signup")
		return
	}

	h.respondJSON(w, http.StatusCreated, map[string]any{
		"message":        "Signup successful",
		"account_id":     account.ID,
		"account_number": account.AccountNumber,
	}, r.Method, "/signup")
}

func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", r.Method, "/login")
		return
	}
	if req.Username == "" || req.Password == "" {
		h.respondError(w, http.StatusBadRequest, "Username and password required", r.Method, "/login")
		return
	}

	token, expiry, err := h.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			h.respondError(w, http.StatusUnauthorized, "Invalid credentials", r.Method, "/login")
			return
		}
		h.systemError(w, err, r.Method, "/login")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Expires:  expiry,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	})
	h.respondJSON(w, http.StatusOK, map[string]string{"message": "Login successful"}, r.Method, "/login")
}

func (h *Handler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(CookieName); err == nil {
		if err := h.sessions.Revoke(r.Context(), cookie.Value); err != nil {
			h.systemError(w, err, r.Method, "/logout")
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	})
	h.respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"}, r.Method, "/logout")
}

func (h *Handler) MeHandler(w http.ResponseWriter, r *http.Request) {
	identity := IdentityFromContext(r.Context())
	account, err := h.accounts.GetAccount(r.Context(), identity.AccountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			h.respondError(w, http.StatusNotFound, "Account not found", r.Method, "/me")
			return
		}
		h.systemError(w, err, r.Method, "/me")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"id":             account.ID,
		"name":           account.Name,
		"username":       account.Username,
		"email":          account.Email,
		"account_number": account.AccountNumber,
	}, r.Method, "/me")
}

func (h *Handler) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	identity := IdentityFromContext(r.Context())
	balance, err := h.ledger.GetBalance(r.Context(), identity.AccountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			h.respondError(w, http.StatusNotFound, "Account not found", r.Method, "/balance")
			return
		}
		h.systemError(w, err, r.Method, "/balance")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"balance": balance.StringFixed(2)}, r.Method, "/balance")
}

func (h *Handler) DepositHandler(w http.ResponseWriter, r *http.Request) {
	h.movementHandler(w, r, "/deposit", h.ledger.Deposit)
}

func (h *Handler) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	h.movementHandler(w, r, "/withdraw", h.ledger.Withdraw)
}

type movementFunc func(ctx context.Context, accountID int64, amount decimal.Decimal, description string) (*domain.Movement, error)

func (h *Handler) movementHandler(w http.ResponseWriter, r *http.Request, endpoint string, op movementFunc) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(r.Method, endpoint))
	defer timer.ObserveDuration()

	identity := IdentityFromContext(r.Context())

	var req struct {
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", r.Method, endpoint)
		return
	}

	mv, err := op(r.Context(), identity.AccountID, req.Amount, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidAmount):
			h.respondError(w, http.StatusUnprocessableEntity, "Invalid amount", r.Method, endpoint)
		case errors.Is(err, domain.ErrInsufficientFunds):
			h.respondError(w, http.StatusUnprocessableEntity, "Insufficient funds", r.Method, endpoint)
		case errors.Is(err, domain.ErrAccountNotFound):
			h.respondError(w, http.StatusNotFound, "Account not found", r.Method, endpoint)
		default:
			h.systemError(w, err, r.Method, endpoint)
		}
		return
	}

	movementsTotal.WithLabelValues(string(mv.Kind)).Inc()
	h.respondJSON(w, http.StatusCreated, mv, r.Method, endpoint)
}

func (h *Handler) MovementsHandler(w http.ResponseWriter, r *http.Request) {
	identity := IdentityFromContext(r.Context())
	movements, err := h.ledger.ListMovements(r.Context(), identity.AccountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			h.respondError(w, http.StatusNotFound, "Account not found", r.Method, "/movements")
			return
		}
		h.systemError(w, err, r.Method, "/movements")
		return
	}
	if movements == nil {
		movements = []domain.Movement{}
	}
	h.respondJSON(w, http.StatusOK, movements, r.Method, "/movements")
}

// TransferHandler is a stub. Transfers need two-account lock ordering that is
// not wired up yet.
func (h *Handler) TransferHandler(w http.ResponseWriter, r *http.Request) {
	h.respondError(w, http.StatusServiceUnavailable, "Transfer feature under development", r.Method, "/transfer")
}

// Helpers

func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload any, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}

// systemError hides internal detail from the caller and logs it server-side.
func (h *Handler) systemError(w http.ResponseWriter, err error, method, endpoint string) {
	h.logger.Error("request failed",
		zap.String("method", method),
		zap.String("endpoint", endpoint),
		zap.Error(err))
	h.respondError(w, http.StatusInternalServerError, "Internal server error", method, endpoint)
}
