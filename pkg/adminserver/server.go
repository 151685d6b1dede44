// Package adminserver exposes the core's internal state over HTTP: a
// read-only REST/GraphQL stats surface and a WebSocket feed of buffer-pool
// and lock-manager activity. It holds no write path — every mutation
// happens through the storage/index/txn packages directly; this package
// only observes them.
package adminserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/graphql-go/graphql"

	"github.com/mnohosten/laura-core/pkg/storage"
	"github.com/mnohosten/laura-core/pkg/txn"
)

// Server is the admin/inspection HTTP server, grounded on
// pkg/server/server.go's Server/New/setupMiddleware/setupRoutes shape,
// narrowed to the read-only surface this core needs (no document routes,
// no TLS, no change-stream manager over an oplog — there is none here).
type Server struct {
	config      *Config
	engine      *storage.Engine
	lockManager *txn.LockManager
	router      *chi.Mux
	httpSrv     *http.Server
	startTime   time.Time
	gqlSchema   graphql.Schema
}

// New wires an admin server around an already-open storage Engine and an
// optional LockManager (nil if the caller does not use 2PL locking).
func New(config *Config, engine *storage.Engine, lockManager *txn.LockManager) (*Server, error) {
	gqlSchema, err := schema(engine, lockManager)
	if err != nil {
		return nil, fmt.Errorf("adminserver: build graphql schema: %w", err)
	}

	srv := &Server{
		config:      config,
		engine:      engine,
		lockManager: lockManager,
		router:      chi.NewRouter(),
		startTime:   time.Now(),
		gqlSchema:   gqlSchema,
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	srv.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      srv.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return srv, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	if s.config.EnableLogging {
		s.router.Use(middleware.Logger)
	}
	if s.config.EnableCORS {
		s.router.Use(s.corsMiddleware)
	}
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
			next.ServeHTTP(w, r)
		})
	})
	s.router.Use(middleware.Timeout(60 * time.Second))
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(s.config.AllowedOrigins) > 0 {
			origin = s.config.AllowedOrigins[0]
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) setupRoutes() {
	h := &handlers{engine: s.engine, lockManager: s.lockManager, startTime: s.startTime}

	s.router.Get("/healthz", h.health)
	s.router.Get("/stats", h.stats)
	s.router.Get("/watch", watchHandler(s.engine.Events()))
	s.router.Post("/graphql", graphqlHandler(s.gqlSchema))
	s.router.Get("/graphiql", graphiqlHandler)
}

// Start runs the HTTP server until the given context is cancelled, then
// shuts it down gracefully. Grounded on pkg/server/server.go's Start, which
// blocks on a signal channel; here the caller supplies the cancellation
// signal (typically wired to os/signal in cmd/coreinspect) instead of the
// server owning its own signal.Notify.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("adminserver: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

// Addr returns the configured listen address as "host:port". With port 0
// the result ends in ":0", not the port the OS actually assigns.
func (s *Server) Addr() string {
	return s.httpSrv.Addr
}
