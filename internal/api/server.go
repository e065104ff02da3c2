// Package api serves the staking engine over HTTP: gateway notifications for
// funding and received items, read-only reporting, health and metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog/log"

	"hive-staking/internal/model"
	"hive-staking/internal/pkg/jsonx"
	"hive-staking/internal/service"
)

// CallerHeader carries the identity of the gateway making a notification.
const CallerHeader = "X-Caller-Id"

// Engine is the part of the staking service the API exposes.
type Engine interface {
	Fund(ctx context.Context, origin, sender string, amount *uint256.Int, memo string) error
	ReceiveItem(ctx context.Context, origin, sender, itemID string, metadata []byte) (int, error)
	GetStakingInfo(staker string) []model.StakeSummary
	GetTotalClaimed(staker string) *uint256.Int
	GetPoolStatus() service.PoolStatus
	GetFundingHistory() []model.FundingRecord
	FailedTransfers() []model.TransferFailure
	GetTopStakers(limit int) []service.StakerRank
}

// HealthFunc reports whether a dependency is reachable.
type HealthFunc func(ctx context.Context) error

// Server is the HTTP front of the staking engine.
type Server struct {
	engine  Engine
	metrics http.Handler
	health  HealthFunc
	router  *mux.Router
	srv     *http.Server
}

// NewServer builds the router. metrics and health may be nil.
func NewServer(engine Engine, metrics http.Handler, health HealthFunc) *Server {
	s := &Server{engine: engine, metrics: metrics, health: health}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	root := mux.NewRouter()
	root.Use(logRequests)

	v1 := root.PathPrefix("/v1").Subrouter()
	v1.Path("/funding").
		Methods(http.MethodPost).
		Name("funding_notify").
		HandlerFunc(wrap(s.handleFunding))
	v1.Path("/items/received").
		Methods(http.MethodPost).
		Name("items_received").
		HandlerFunc(wrap(s.handleItemReceived))
	v1.Path("/stakers/{id}/stakes").
		Methods(http.MethodGet).
		Name("staker_stakes").
		HandlerFunc(wrap(s.handleStakes))
	v1.Path("/leaderboard").
		Methods(http.MethodGet).
		Name("leaderboard").
		HandlerFunc(wrap(s.handleLeaderboard))
	v1.Path("/pool").
		Methods(http.MethodGet).
		Name("pool_status").
		HandlerFunc(wrap(s.handlePool))
	v1.Path("/pool/funding").
		Methods(http.MethodGet).
		Name("pool_funding").
		HandlerFunc(wrap(s.handleFundingHistory))
	v1.Path("/transfers/failed").
		Methods(http.MethodGet).
		Name("transfers_failed").
		HandlerFunc(wrap(s.handleFailedTransfers))

	root.Path("/healthz").Methods(http.MethodGet).HandlerFunc(wrap(s.handleHealth))
	if s.metrics != nil {
		root.Path("/metrics").Methods(http.MethodGet).Handler(s.metrics)
	}
	return root
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr in the background.
func (s *Server) Start(addr string) {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("listen", addr).Msg("HTTP API started")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP API stopped")
		}
	}()
}

// Shutdown stops accepting requests and waits for those in progress.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func wrap(f handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := f(w, r); err != nil {
			status := statusOf(err)
			if status >= http.StatusInternalServerError {
				log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
			}
			w.Header().Set("Content-Type", contentType)
			w.WriteHeader(status)
			_ = jsonx.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if m := mux.CurrentRoute(r); m != nil && m.GetName() != "" {
			route = m.GetName()
		}
		log.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
