// Command exoquery-server is the entry point for the query runtime's HTTP
// server.
//
// Usage:
//
//	go run ./cmd/exoquery-server
//
// The environment variables are documented on config.Config (spec.md §6):
// EXO_POSTGRES_URL/DATABASE_URL, EXO_SERVER_PORT, EXO_SYSTEM_PATH,
// EXO_INTROSPECTION, EXO_JWT_SECRET/EXO_OIDC_URL, EXO_MAX_SELECTION_DEPTH,
// EXO_CORS_DOMAINS, EXO_DEBUG.
//
// Startup sequence:
//
//  1. Logger: structured JSON logging (slog).
//  2. Config: load and validate environment variables.
//  3. System image: read and decode the compiled SerializableSystem blob.
//  4. Context extractors: wire the jwt extractor from config.
//  5. Server: bind the HTTP listener and handle graceful shutdown.
//
// No query-engine logic lives here; this file is strictly orchestration,
// grounded on taibuivan-yomira/src/cmd/api/main.go's shape.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/exo-run/exoquery/config"
	"github.com/exo-run/exoquery/reqcontext"
	"github.com/exo-run/exoquery/server"
	"github.com/exo-run/exoquery/subsystem"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("application_startup_failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).
		With(slog.String("app", "exoquery"))
	slog.SetDefault(log)

	log.Info("service_initializing")

	// # 2. Configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Debug {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})).
			With(slog.String("app", "exoquery"))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}
	log.Info("configuration_loaded", slog.Int("port", cfg.ServerPort))

	// # 3. System image
	blob, err := os.ReadFile(cfg.SystemPath)
	if err != nil {
		return fmt.Errorf("read system image %q: %w", cfg.SystemPath, err)
	}
	router, err := subsystem.LoadSystem(blob)
	if err != nil {
		return fmt.Errorf("load system image: %w", err)
	}
	log.Info("system_image_loaded", slog.String("path", cfg.SystemPath))

	// # 4. Context extractors. "AuthContext" is the convention spec.md §4.5's
	// own examples use (AuthContext.role); a source schema naming a
	// different context for its JWT claims would need its own deployment
	// wiring beyond this generic entry point.
	extra := map[string]reqcontext.Extractor{}
	switch {
	case cfg.JWTSecret != "":
		extra["AuthContext"] = reqcontext.NewJWTExtractorHS256(cfg.JWTSecret)
	case cfg.OIDCURL != "":
		extra["AuthContext"] = reqcontext.NewJWTExtractorOIDC(cfg.OIDCURL)
	}

	// # 5. Server
	srv := server.New(cfg, router, log, extra)

	shutdownErr := make(chan error, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownErr <- fmt.Errorf("http server crashed: %w", err)
		}
	}()

	log.Info("exoquery_server_running", slog.Int("port", cfg.ServerPort))

	select {
	case sig := <-quit:
		log.Info("shutdown_signal_received", slog.String("signal", sig.String()))
	case err := <-shutdownErr:
		return err
	}

	log.Info("shutting_down", slog.Duration("timeout", shutdownTimeout))
	if err := srv.Shutdown(shutdownTimeout); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info("graceful_shutdown_complete")
	return nil
}
