// Package server provides the HTTP surface over the dealer's quote
// pipeline: health, Prometheus metrics, and a JSON facade that mirrors
// the operations a gRPC quote service would expose.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/stablesats/dealer/internal/money"
	"github.com/stablesats/dealer/internal/quote"
)

// Config holds server configuration.
type Config struct {
	Log     zerolog.Logger
	Port    int
	DevMode bool
	Quotes  *quote.Service
	Metrics *Metrics
}

// Server is the dealer's HTTP surface.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	log     zerolog.Logger
	quotes  *quote.Service
	metrics *Metrics
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		log:     cfg.Log.With().Str("component", "server").Logger(),
		quotes:  cfg.Quotes,
		metrics: cfg.Metrics,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	s.router.Route("/quotes", func(r chi.Router) {
		r.Post("/buy-usd/from-sats", s.handleQuoteCentsFromSatsForBuy)
		r.Post("/buy-usd/from-cents", s.handleQuoteSatsFromCentsForBuy)
		r.Post("/sell-usd/from-sats", s.handleQuoteCentsFromSatsForSell)
		r.Post("/sell-usd/from-cents", s.handleQuoteSatsFromCentsForSell)
		r.Get("/{id}", s.handleGetQuote)
		r.Post("/{id}/accept", s.handleAcceptQuote)
	})

	s.router.Get("/balances", s.handleBalances)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

type quoteAmountRequest struct {
	Amount    int64 `json:"amount"`
	Immediate bool  `json:"immediate"`
}

type quoteResponse struct {
	ID                 string `json:"id"`
	Direction          string `json:"direction"`
	SatAmount          int64  `json:"sat_amount"`
	CentAmount         int64  `json:"cent_amount"`
	ImmediateExecution bool   `json:"immediate_execution"`
	ExpiresAt          string `json:"expires_at"`
}

func toQuoteResponse(q *quote.Quote) quoteResponse {
	return quoteResponse{
		ID:                 q.ID.String(),
		Direction:          string(q.Direction),
		SatAmount:          q.SatAmount.Int64(),
		CentAmount:         q.CentAmount.Int64(),
		ImmediateExecution: q.ImmediateExecution,
		ExpiresAt:          q.ExpiresAt.Format(time.RFC3339),
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleQuoteCentsFromSatsForBuy(w http.ResponseWriter, r *http.Request) {
	var req quoteAmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	q, err := s.quotes.QuoteCentsFromSatsForBuy(r.Context(), money.SatsFromInt64(req.Amount), req.Immediate)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toQuoteResponse(q))
}

func (s *Server) handleQuoteSatsFromCentsForBuy(w http.ResponseWriter, r *http.Request) {
	var req quoteAmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	q, err := s.quotes.QuoteSatsFromCentsForBuy(r.Context(), money.UsdCentsFromInt64(req.Amount), req.Immediate)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toQuoteResponse(q))
}

func (s *Server) handleQuoteCentsFromSatsForSell(w http.ResponseWriter, r *http.Request) {
	var req quoteAmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	q, err := s.quotes.QuoteCentsFromSatsForSell(r.Context(), money.SatsFromInt64(req.Amount), req.Immediate)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toQuoteResponse(q))
}

func (s *Server) handleQuoteSatsFromCentsForSell(w http.ResponseWriter, r *http.Request) {
	var req quoteAmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	q, err := s.quotes.QuoteSatsFromCentsForSell(r.Context(), money.UsdCentsFromInt64(req.Amount), req.Immediate)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toQuoteResponse(q))
}

func (s *Server) handleGetQuote(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	q, err := s.quotes.FindByID(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toQuoteResponse(q))
}

func (s *Server) handleAcceptQuote(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.quotes.AcceptQuote(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, quote.ErrNotFound):
			s.writeError(w, http.StatusNotFound, err)
		case errors.Is(err, quote.ErrAlreadyAccepted), errors.Is(err, quote.ErrExpired):
			s.writeError(w, http.StatusPreconditionFailed, err)
		default:
			s.writeError(w, http.StatusUnprocessableEntity, err)
		}
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// handleBalances exposes the wallet-side running balances that accrue as
// quotes are accepted, for reconciliation against the ledger's own
// UsdLiabilityBalance.
func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := s.quotes.Balances(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make(map[string]string, len(balances))
	for unit, bal := range balances {
		out[string(unit)] = bal.CurrentBalance.String()
	}
	s.writeJSON(w, http.StatusOK, out)
}
