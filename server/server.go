// Package server exposes a Distributor over HTTP.
//
// Reads are public. Claims and administrative calls must be signed by the
// caller's key; the address derived from that key is the caller identity.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	lru "github.com/hashicorp/golang-lru"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bitfsorg/royalty-go/account"
	"github.com/bitfsorg/royalty-go/logger"
	"github.com/bitfsorg/royalty-go/metrics"
	"github.com/bitfsorg/royalty-go/payout"
)

// Engine is the distributor surface served over HTTP.
type Engine interface {
	Status(ctx context.Context) payout.Status
	IsClaimed(interval, tokenID uint64) (bool, error)
	Claim(ctx context.Context, caller string, tokenIDs []uint64) (uint64, error)
	Deposit(ctx context.Context, caller string, amount uint64) error
	Withdraw(ctx context.Context, caller string) (uint64, error)
	ChangeOwner(ctx context.Context, caller, newOwner string) error
	SetRegistryAddress(ctx context.Context, caller, addr string) error
	SetAutomated(ctx context.Context, caller string, automated bool) error
	SetPaused(ctx context.Context, caller string, paused bool) error
	IncrementInterval(ctx context.Context, caller string) error
	SetPayoutWindowLength(ctx context.Context, caller string, window time.Duration) error
	SetIntervalLength(ctx context.Context, caller string, length time.Duration) error
}

var _ Engine = (*payout.Distributor)(nil)

// Config holds the server configuration.
type Config struct {
	ListenAddr  string
	Mainnet     bool          // network used to derive caller addresses
	MaxSkew     time.Duration // zero means DefaultMaxSkew
	ReplayCache int           // zero means DefaultReplayCacheSize
	Clock       clockwork.Clock
	Logger      *slog.Logger
}

// Server is the HTTP front end of a distributor.
type Server struct {
	router  *chi.Mux
	engine  Engine
	clock   clockwork.Clock
	mainnet bool
	maxSkew time.Duration
	seen    *lru.Cache // signed requests already accepted
	logger  *slog.Logger
	srv     *http.Server
}

// New creates a server for engine.
func New(engine Engine, cfg Config) *Server {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	if cfg.MaxSkew <= 0 {
		cfg.MaxSkew = DefaultMaxSkew
	}
	if cfg.ReplayCache <= 0 {
		cfg.ReplayCache = DefaultReplayCacheSize
	}
	seen, err := lru.New(cfg.ReplayCache)
	if err != nil {
		panic(err) // only for a non-positive size
	}
	s := &Server{
		router:  chi.NewRouter(),
		engine:  engine,
		clock:   cfg.Clock,
		mainnet: cfg.Mainnet,
		maxSkew: cfg.MaxSkew,
		seen:    seen,
		logger:  cfg.Logger,
	}
	s.setupRoutes()

	s.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.Middleware)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/claims/{interval}/{tokenID}", s.handleIsClaimed)

		r.Group(func(r chi.Router) {
			r.Use(s.signed)
			r.Post("/claim", s.handleClaim)

			r.Route("/admin", func(r chi.Router) {
				r.Post("/deposit", s.handleDeposit)
				r.Post("/withdraw", s.handleWithdraw)
				r.Post("/owner", s.handleChangeOwner)
				r.Post("/registry", s.handleSetRegistry)
				r.Post("/automated", s.handleSetAutomated)
				r.Post("/paused", s.handleSetPaused)
				r.Post("/interval/increment", s.handleIncrementInterval)
				r.Put("/window", s.handleSetWindow)
				r.Put("/interval-length", s.handleSetIntervalLength)
			})
		})
	})
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.srv.Shutdown(ctx)
}

// statusFor maps a distributor error to an HTTP status.
func statusFor(err error) int {
	switch {
	case payout.IsAuthorization(err):
		return http.StatusForbidden
	case payout.IsState(err):
		return http.StatusConflict
	case payout.IsInput(err), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrMissingAuth), errors.Is(err, ErrStaleRequest), errors.Is(err, ErrReplayedRequest),
		errors.Is(err, account.ErrInvalidPublicKey), errors.Is(err, account.ErrInvalidSignature):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// fail writes err with the status statusFor assigns it.
func (s *Server) fail(w http.ResponseWriter, err error) {
	s.writeError(w, statusFor(err), err)
}
