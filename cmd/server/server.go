package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/liamcoop/recalc/calculator"
	"github.com/liamcoop/recalc/calculators"
	"github.com/liamcoop/recalc/computations"
	"github.com/liamcoop/recalc/display"
	"github.com/liamcoop/recalc/evaluator"
	"github.com/liamcoop/recalc/internal/config"
	"github.com/liamcoop/recalc/internal/database"
	"github.com/liamcoop/recalc/internal/logger"
	"github.com/liamcoop/recalc/records"
	"github.com/liamcoop/recalc/sessions"
)

type Server struct {
	db          *sql.DB
	calculators *calculators.Manager
	sessions    *sessions.Registry
	records     records.Store
	hub         *display.Hub
	router      *chi.Mux
}

// NewServer wires the stores, evaluators and displays described by cfg.
// Without a database URL everything is kept in memory.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{
		sessions: sessions.NewRegistry(),
		hub:      display.NewHub(),
	}

	var defs calculators.DefinitionStore
	var recs records.Store
	if cfg.Database.URL != "" {
		if cfg.Database.AutoMigrate {
			changed, err := database.MigrateUp(cfg.Database.URL)
			if err != nil {
				return nil, err
			}
			logger.Info("Migrations applied", "changed", changed)
		}

		db, err := database.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		s.db = db
		defs = calculators.NewPostgresStore(db)
		recs = records.NewPostgresStore(db)
	} else {
		logger.Warn("No database configured, calculators and records are kept in memory")
		defs = calculators.NewMemoryStore()
		recs = records.NewMemoryStore()
	}

	cached := records.NewCachedStore(recs, records.NewInMemoryCache(records.CacheConfig{TTL: cfg.RecordCacheTTL()}))
	s.records = cached

	var remote computations.Evaluator
	if cfg.Evaluator.RemoteURL != "" {
		r, err := evaluator.NewRemote(cfg.Evaluator.RemoteURL, evaluator.WithTimeout(cfg.EvaluatorTimeout()))
		if err != nil {
			return nil, err
		}
		remote = r
	}

	s.calculators = calculators.NewManager(defs, calculator.Deps{
		Lookup:         cached,
		Remote:         remote,
		Display:        display.Multi{s.sessions, s.hub, display.LogDisplay{}},
		MaxParallelism: cfg.Engine.MaxParallelism,
	})

	if err := s.calculators.LoadAll(ctx); err != nil {
		return nil, err
	}
	if _, err := s.calculators.EnsureDefault(ctx); err != nil {
		return nil, fmt.Errorf("failed to load the default calculator: %w", err)
	}
	if cfg.Engine.DefinitionsDir != "" {
		if err := s.loadDefinitions(ctx, cfg.Engine.DefinitionsDir); err != nil {
			return nil, err
		}
	}

	s.setupRoutes()
	return s, nil
}

// loadDefinitions adds every definition file in dir whose calculator is
// not loaded yet
func (s *Server) loadDefinitions(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read definitions directory: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
		default:
			continue
		}

		def, err := calculator.LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
		if _, err := s.calculators.Get(def.Name); err == nil {
			logger.Debug("Calculator already loaded", "name", def.Name, "file", e.Name())
			continue
		}
		if _, err := s.calculators.Create(ctx, def); err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
	}
	return nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	// websocket connections outlive the request timeout
	r.Get("/api/v1/sessions/{sessionId}/ws", s.handleSessionSocket)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/api/v1/health", s.handleHealth)
		r.Get("/api/v1/metrics", s.handleMetrics)

		r.Route("/api/v1/calculators", func(r chi.Router) {
			r.Get("/", s.handleListCalculators)
			r.Post("/", s.handleCreateCalculator)
			r.Get("/{calculatorId}", s.handleGetCalculator)
			r.Put("/{calculatorId}", s.handleUpdateCalculator)
			r.Delete("/{calculatorId}", s.handleDeleteCalculator)
		})

		r.Route("/api/v1/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Post("/", s.handleCreateSession)

			r.Route("/{sessionId}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)
				r.Put("/fields/{field}", s.handleSetField)
				r.Post("/run", s.handleRun)
				r.Get("/export.xlsx", s.handleExport)
			})
		})

		r.Route("/api/v1/records/{entityType}/{entityId}", func(r chi.Router) {
			r.Get("/", s.handleGetRecord)
			r.Put("/", s.handlePutRecord)
			r.Delete("/", s.handleDeleteRecord)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close disconnects subscribers and releases the database
func (s *Server) Close() error {
	s.hub.Close()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// requestLogger logs each request and feeds the status counters
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		logger.HTTPStatus(status)
		logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
