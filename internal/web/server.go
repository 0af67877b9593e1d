// Package web provides the demo JSON API over tabular tables: querying,
// single-row mutations, batch reconciliation, and history reads.
package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dspears/tabular"
	"github.com/dspears/tabular/internal/config"
	"github.com/dspears/tabular/internal/logging"
)

// Server is the HTTP server for the demo API.
type Server struct {
	db     tabular.Querier
	cfg    *config.Config
	router *chi.Mux
	server *http.Server
}

// NewServer creates a new Server instance.
func NewServer(db tabular.Querier, cfg *config.Config) *Server {
	s := &Server{
		db:     db,
		cfg:    cfg,
		router: chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	s.router.Use(s.actorContext)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/api/tables", s.handleListTables)

	s.router.Route("/api/tables/{table}", func(r chi.Router) {
		r.Get("/rows", s.handleQueryRows)
		r.Post("/rows", s.handleInsertRow)
		r.Patch("/rows", s.handleUpdateCell)
		r.Delete("/rows", s.handleDeleteRow)

		r.Post("/reconcile", s.handleReconcile)

		r.Get("/history", s.handleHistory)
		r.Get("/columns", s.handleColumns)
		r.Get("/distinct/{column}", s.handleDistinct)
	})
}

// actorContext threads the acting user and the request-scoped logger into
// the request context so writes can stamp updated_by and table operations
// log with the request id. The X-Actor header wins; otherwise the
// configured default applies.
func (s *Server) actorContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := r.Header.Get("X-Actor")
		if actor == "" {
			actor = s.cfg.History.DefaultActor
		}
		ctx := tabular.WithActor(r.Context(), actor)
		ctx = tabular.WithLogger(ctx, logging.FromContext(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// table resolves a served table name into a configured handle.
func (s *Server) table(name string) (*tabular.Table, bool) {
	for _, served := range s.cfg.Tables.Served {
		if served == name {
			return tabular.NewTable(s.db, name,
				tabular.WithHistory(s.cfg.History.Enabled),
				tabular.WithLogUpdates(s.cfg.History.LogUpdates),
			), true
		}
	}
	return nil, false
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
