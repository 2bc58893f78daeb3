// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/okian/tinymerit/internal/adapters/github"
	service "github.com/okian/tinymerit/internal/app"
	"github.com/okian/tinymerit/internal/domain/checkout"
	"github.com/okian/tinymerit/internal/domain/history"
	"github.com/okian/tinymerit/internal/domain/model"
	"github.com/okian/tinymerit/internal/domain/payee"
	"github.com/okian/tinymerit/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SessionProvider
	PayeeDependencies
	AccountDependencies
	HistoryDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	payeeHandler   *PayeeHandler
	accountHandler *AccountHandler
	historyHandler *HistoryHandler

	allowedOrigins []string
}

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins sets the origins allowed by CORS.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.allowedOrigins = origins
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	sessions := sessionResolver{provider: deps}
	s := &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		payeeHandler:   NewPayeeHandler(deps, sessions),
		accountHandler: NewAccountHandler(deps, sessions),
		historyHandler: NewHistoryHandler(deps, sessions),
		allowedOrigins: []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r *mux.Router) {
	r.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz")).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats")).Methods(http.MethodGet)

	a := r.PathPrefix("/api").Subrouter()

	a.HandleFunc("/search", MetricsMiddleware(s.payeeHandler.HandleSearch, "search")).Methods(http.MethodGet)
	a.HandleFunc("/cart", MetricsMiddleware(s.payeeHandler.HandleGetCart, "cart")).Methods(http.MethodGet)
	a.HandleFunc("/cart/toggle", MetricsMiddleware(s.payeeHandler.HandleToggle, "cart_toggle")).Methods(http.MethodPost)
	a.HandleFunc("/cart/{key}", MetricsMiddleware(s.payeeHandler.HandleRemove, "cart_remove")).Methods(http.MethodDelete)
	a.HandleFunc("/cart/{key}/amount", MetricsMiddleware(s.payeeHandler.HandleSetAmount, "cart_amount")).Methods(http.MethodPut)
	a.HandleFunc("/checkout", MetricsMiddleware(s.payeeHandler.HandleCheckout, "checkout")).Methods(http.MethodPost, http.MethodGet)

	a.HandleFunc("/account", MetricsMiddleware(s.accountHandler.HandleGet, "account")).Methods(http.MethodGet)
	a.HandleFunc("/account", MetricsMiddleware(s.accountHandler.HandlePut, "account")).Methods(http.MethodPut)
	a.HandleFunc("/account", MetricsMiddleware(s.accountHandler.HandleDelete, "account")).Methods(http.MethodDelete)
	a.HandleFunc("/account/search", MetricsMiddleware(s.accountHandler.HandleSearch, "account_search")).Methods(http.MethodGet)
	a.HandleFunc("/apikey", MetricsMiddleware(s.accountHandler.HandlePutAPIKey, "apikey")).Methods(http.MethodPut)
	a.HandleFunc("/apikey", MetricsMiddleware(s.accountHandler.HandleDeleteAPIKey, "apikey")).Methods(http.MethodDelete)

	a.HandleFunc("/history", MetricsMiddleware(s.historyHandler.HandleGet, "history")).Methods(http.MethodGet)
	a.HandleFunc("/history/groups/{id}/toggle", MetricsMiddleware(s.historyHandler.HandleToggleGroup, "history_group")).Methods(http.MethodPost)
}

// Handler returns the routes wrapped with CORS.
func (s *Server) Handler(ctx context.Context) http.Handler {
	r := mux.NewRouter()
	s.Register(ctx, r)
	c := cors.New(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// classify maps an error from the service layer to a status and code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, payee.ErrInvalidAmount),
		errors.Is(err, payee.ErrNegativeAmount),
		errors.Is(err, payee.ErrUnknownKind),
		errors.Is(err, service.ErrEmptyAPIKey),
		errors.Is(err, service.ErrInvalidAccount):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, payee.ErrNotSelected):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, checkout.ErrCheckoutDisabled),
		errors.Is(err, service.ErrNoAccount),
		errors.Is(err, history.ErrNoSender):
		return http.StatusConflict, "precondition"
	case errors.Is(err, ErrUnavailable), errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, github.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, model.ErrNotFound), errors.Is(err, github.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrBadRequest),
		errors.Is(err, model.ErrInternalServer),
		errors.Is(err, model.ErrAPI),
		errors.Is(err, github.ErrFetch):
		return http.StatusBadGateway, "upstream_error"
	}
	return http.StatusInternalServerError, "internal_error"
}

func writeServiceError(w http.ResponseWriter, op string, err error) {
	status, code := classify(err)
	writeError(w, status, code, fmt.Errorf("%s: %w", op, err))
}
