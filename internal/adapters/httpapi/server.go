// Package httpapi exposes the ledger over HTTP/JSON.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alejandrodnm/polyledger/internal/application/ledger"
	"github.com/alejandrodnm/polyledger/internal/domain"
	"github.com/alejandrodnm/polyledger/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Ledger is the part of ledger.Service the API serves.
type Ledger interface {
	CreatePortfolio(ctx context.Context, in domain.NewPortfolio) (domain.Portfolio, error)
	GetPortfolio(ctx context.Context, id string) (ledger.PortfolioView, error)
	ListPortfolios(ctx context.Context, status domain.PortfolioStatus) ([]domain.Portfolio, error)
	UpdatePortfolio(ctx context.Context, id string, patch domain.PortfolioPatch) (domain.Portfolio, error)
	PurgePortfolio(ctx context.Context, id string) error
	SubmitSignals(ctx context.Context, portfolioID string, signals []domain.Signal) ([]domain.Signal, error)
	PendingSignals(ctx context.Context, portfolioID string) ([]domain.Signal, error)
	ExecuteSignals(ctx context.Context, portfolioID string) (domain.ExecutionSummary, error)
	ExecuteSignal(ctx context.Context, portfolioID, signalID string) (domain.ExecutionResult, error)
	Positions(ctx context.Context, portfolioID string, status domain.PositionStatus) ([]domain.Position, error)
	Settle(ctx context.Context, portfolioID, positionID string, exitPrice float64) (ledger.SettlementResult, error)
	Reprice(ctx context.Context, portfolioIDs ...string) (domain.RepriceReport, error)
	Trades(ctx context.Context, portfolioID string, status domain.PositionStatus, limit int) ([]domain.Trade, error)
	History(ctx context.Context, portfolioID string, limit int) ([]domain.Snapshot, error)
	Snapshot(ctx context.Context, portfolioID string) (domain.Snapshot, error)
}

// Pinger reports storage health for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds server settings.
type Config struct {
	Addr           string
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// Server is the HTTP front of the ledger.
type Server struct {
	router *chi.Mux
	server *http.Server
	ledger Ledger
	health Pinger
}

// New builds the router. health may be nil.
func New(cfg Config, l Ledger, health Pinger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		router: chi.NewRouter(),
		ledger: l,
		health: health,
	}
	s.setupMiddleware(cfg)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware(cfg Config) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Timeout(cfg.RequestTimeout))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", metrics.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/reprice", s.handleRepriceAll)

		r.Route("/portfolios", func(r chi.Router) {
			r.Post("/", s.handleCreatePortfolio)
			r.Get("/", s.handleListPortfolios)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetPortfolio)
				r.Patch("/", s.handleUpdatePortfolio)
				r.Delete("/", s.handlePurgePortfolio)

				r.Get("/signals", s.handlePendingSignals)
				r.Post("/signals", s.handleSubmitSignals)
				r.Post("/signals/{signalID}/execute", s.handleExecuteSignal)
				r.Post("/execute", s.handleExecuteSignals)

				r.Get("/positions", s.handlePositions)
				r.Post("/positions/{positionID}/settle", s.handleSettle)
				r.Post("/reprice", s.handleRepriceOne)

				r.Get("/trades", s.handleTrades)
				r.Get("/history", s.handleHistory)
				r.Post("/snapshots", s.handleSnapshot)
			})
		})
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown.
func (s *Server) Start() error {
	slog.Info("http server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("http server shutting down")
	return s.server.Shutdown(ctx)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).Round(time.Microsecond),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
