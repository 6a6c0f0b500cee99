package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/exo-run/exoquery/catalog"
	"github.com/exo-run/exoquery/config"
	"github.com/exo-run/exoquery/reqcontext"
	"github.com/exo-run/exoquery/subsystem"
)

// Server wraps the chi router and http.Server, grounded directly on
// taibuivan-yomira/src/internal/api/server.go's Server/NewServer/
// ListenAndServe/Shutdown shape.
type Server struct {
	httpServer *http.Server
	router     *subsystem.SystemRouter
	cfg        *config.Config
	log        *slog.Logger
	extractors map[string]reqcontext.Extractor
}

// New builds the chi router with the full middleware chain and mounts
// spec.md §6's three endpoints (GraphQL, JSON-RPC, playground redirect)
// over router, the already-loaded SystemRouter.
func New(cfg *config.Config, router *subsystem.SystemRouter, log *slog.Logger, extra map[string]reqcontext.Extractor) *Server {
	router.MaxSelectionDepth = cfg.MaxSelectionDepth
	router.IntrospectionMaxDepth = cfg.IntrospectionMaxDepth
	router.IntrospectionEnabled = cfg.Introspection

	s := &Server{router: router, cfg: cfg, log: log, extractors: extra}

	mux := chi.NewRouter()
	mux.Use(requestID())
	mux.Use(structuredLogger(log))
	mux.Use(panicRecovery(log))
	mux.Use(rateLimit(50, 100))
	mux.Use(cors(cfg))

	mux.Get("/health", s.handleHealth)
	mux.Post("/graphql", s.handleGraphQL)
	mux.Post("/rpc", s.handleJSONRPC)
	mux.Get("/playground", s.handlePlayground)
	mux.Get("/", s.handleRoot)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving HTTP until the server is closed or an
// error occurs.
func (s *Server) ListenAndServe() error {
	s.log.Info("server starting", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests up
// to timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// openDB opens a fresh database/sql connection over the pgx/v5 stdlib
// driver (txscript.Holder is grounded on database/sql, not pgx's native
// Tx, precisely so go-sqlmock can exercise it — see txscript/holder.go).
// One *sql.DB per request is wasteful pooling-wise compared to a shared
// pool, but matches the "one transaction per request, driver decides
// connection reuse" model spec.md §5 describes; a production deployment
// would share a single *sql.DB opened at startup instead, which this
// method's signature (no per-call state) leaves room for.
func (s *Server) openDB() (*sql.DB, error) {
	return sql.Open("pgx", s.cfg.PostgresURL)
}

func (s *Server) catalog() *catalog.Database {
	db, ok := s.router.Database()
	if !ok {
		return nil
	}
	return db
}

// requestOf builds the reqcontext.Request snapshot handlers pass to
// reqcontext.New. body is the handler's already-read request body (a
// second read of req.Body here would always return EOF).
func (s *Server) requestOf(req *http.Request, body []byte) *reqcontext.Request {
	return &reqcontext.Request{
		Method:   req.Method,
		Path:     req.URL.Path,
		RawQuery: req.URL.RawQuery,
		Headers:  req.Header,
		ClientIP: realIP(req),
		Body:     body,
	}
}

func (s *Server) logger() *slog.Logger { return s.log }

func (s *Server) handleRoot(w http.ResponseWriter, req *http.Request) {
	http.Redirect(w, req, "/playground", http.StatusFound)
}

// handlePlayground serves the embedded GraphQL playground's mount point.
// The playground UI itself is an external collaborator spec.md §1 places
// out of scope ("the embedded GraphQL playground"); this only honors the
// routing contract spec.md §6 names ("GET to the playground path serves
// static assets").
func (s *Server) handlePlayground(w http.ResponseWriter, _ *http.Request) {
	if !s.cfg.Introspection {
		http.Error(w, "playground disabled", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<!doctype html><title>GraphQL</title><p>Playground assets are not bundled in this build.</p>"))
}
