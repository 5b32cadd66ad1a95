package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires all routes. Everything that touches an account identity
// sits behind RequireAuth.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthHandler).Methods("GET")
	r.HandleFunc("/signup", h.SignupHandler).Methods("POST")
	r.HandleFunc("/login", h.LoginHandler).Methods("POST")

	authed := func(fn http.HandlerFunc) http.Handler { return h.RequireAuth(fn) }
	r.Handle("/logout", authed(h.LogoutHandler)).Methods("POST")
	r.Handle("/me", authed(h.MeHandler)).Methods("GET")
	r.Handle("/balance", authed(h.BalanceHandler)).Methods("GET")
	r.Handle("/deposit", authed(h.DepositHandler)).Methods("POST")
	r.Handle("/withdraw", authed(h.WithdrawHandler)).Methods("POST")
	r.Handle("/movements", authed(h.MovementsHandler)).Methods("GET")
	r.Handle("/transfer", authed(h.TransferHandler)).Methods("POST")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.respondError(w, http.StatusNotFound, "Route not found", r.Method, "unmatched")
	})

	return r
}
