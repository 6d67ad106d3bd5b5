// Package server exposes query analysis over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/querygraph/internal/engine"
	"github.com/leapstack-labs/querygraph/internal/watch"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = "localhost:8765"

// Config holds configuration for the API server.
type Config struct {
	Engine *engine.Engine
	Dir    string // queries directory served under /api/queries
	Addr   string

	// Watch keeps the analysis of Dir cached and refreshes it when files
	// change. Without it every request re-analyzes the directory.
	Watch    bool
	Debounce time.Duration

	Logger *slog.Logger
}

// Server serves analysis results for a queries directory.
type Server struct {
	engine   *engine.Engine
	dir      string
	addr     string
	watch    bool
	debounce time.Duration
	logger   *slog.Logger

	mu    sync.RWMutex
	batch *engine.BatchResult
}

// New creates a server. It does not start listening.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{
		engine:   cfg.Engine,
		dir:      cfg.Dir,
		addr:     cfg.Addr,
		watch:    cfg.Watch,
		debounce: cfg.Debounce,
		logger:   cfg.Logger,
	}
}

// Handler returns the HTTP handler with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RequestLogger(&middleware.DefaultLogFormatter{
			Logger:  slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
			NoColor: true,
		}),
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/analyze", s.handleAnalyze)

		r.Get("/queries", s.handleQueries)
		r.Get("/queries/{name}", s.handleQuery)
		r.Get("/queries/{name}/deps/{key}", s.handleDeps)

		r.Get("/snapshots", s.handleSnapshots)
		r.Get("/snapshots/{id}", s.handleSnapshot)
	})

	return r
}

// Refresh re-analyzes the queries directory and caches the result.
func (s *Server) Refresh(ctx context.Context) (*engine.BatchResult, error) {
	res, err := s.engine.AnalyzeDir(ctx, s.dir)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.batch = res
	s.mu.Unlock()
	s.logger.Debug("analysis refreshed", "queries", len(res.Reports), "failed", res.Failed())
	return res, nil
}

// current returns the cached analysis when watching, a fresh one otherwise.
func (s *Server) current(ctx context.Context) (*engine.BatchResult, error) {
	if s.watch {
		s.mu.RLock()
		res := s.batch
		s.mu.RUnlock()
		if res != nil {
			return res, nil
		}
	}
	return s.Refresh(ctx)
}

// Serve starts the server and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.watch {
		if _, err := s.Refresh(ctx); err != nil {
			return err
		}
		w := watch.New(s.dir, func(ctx context.Context, _ []string) error {
			_, err := s.Refresh(ctx)
			return err
		}, watch.WithDebounce(s.debounce), watch.WithLogger(s.logger))
		eg.Go(func() error {
			return w.Run(egctx)
		})
	}

	eg.Go(func() error {
		s.logger.Info("starting API server", "addr", "http://"+s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down API server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
