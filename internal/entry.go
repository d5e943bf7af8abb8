// Package internal wires configuration, the session, and the note and
// processing services into the web and MCP runtimes.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/scribe/internal/mcpserver"
	"github.com/starford/scribe/internal/models"
	"github.com/starford/scribe/internal/notes"
	"github.com/starford/scribe/internal/processing"
	"github.com/starford/scribe/internal/session"
	"github.com/starford/scribe/internal/sse"
	"github.com/starford/scribe/internal/web"
)

func setup(opts []Option, logOut io.Writer) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if app.logger == nil {
		app.logger = slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
			Level: app.config.App.LogLevel,
		}))
	}
	slog.SetDefault(app.logger)
	return app, nil
}

// Run serves the browser UI with the given options until ctx is cancelled or
// a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app, err := setup(opts, os.Stdout)
	if err != nil {
		return err
	}
	cfg, logger := app.config, app.logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("backend_url", cfg.Backend.BaseURL),
		slog.String("credential_path", cfg.Session.CredentialPath),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	core, err := Open(cfg, logger, notes.WithListener(func(kind string, n models.Note) {
		broker.PublishNoteEvent(kind, n.ID)
	}))
	if err != nil {
		return err
	}
	core.Session.OnInvalidate(func(reason string) {
		logger.Info("session ended", slog.String("reason", reason))
		broker.PublishSessionExpired(reason)
	})

	jobOpts := []processing.Option{
		processing.WithListener(func(s processing.Snapshot) { broker.PublishJob(s.Target, s) }),
		processing.WithNavigate(func() { broker.PublishNavigate("/notes") }),
	}
	recorder := core.Recorder()

	g, gCtx := errgroup.WithContext(ctx)

	ui, err := web.NewRouter(web.Deps{
		Session:  core.Session,
		Auth:     core.Auth,
		Notes:    core.Notes,
		PDF:      core.Orchestrator(processing.PDFSummarize, jobOpts...),
		Audio:    core.Orchestrator(processing.AudioTranscribe, jobOpts...),
		Recorder: recorder,
		Broker:   broker,
		Logger:   logger,
		Jobs:     gCtx,
	})
	if err != nil {
		return fmt.Errorf("init ui: %w", err)
	}

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints.
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/", ui)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Starting scribe web client", slog.String("http_address", cfg.App.HTTP.Address()))

	// Reload the session when another process logs in or out.
	g.Go(func() error {
		if err := session.Watch(gCtx, core.Session, core.Store.Path()); err != nil {
			logger.Warn("credential watcher unavailable", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Listening", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down web client")

		if recorder != nil {
			recorder.Discard()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Scribe stopped")
	return nil
}

// errShutdown cancels the group so the watcher and in-flight jobs stop.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr since stdout
// is the transport.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := setup(opts, os.Stderr)
	if err != nil {
		return err
	}

	core, err := Open(app.config, app.logger)
	if err != nil {
		return err
	}
	srv := mcpserver.New(
		core.Notes,
		core.Orchestrator(processing.PDFSummarize),
		core.Orchestrator(processing.AudioTranscribe),
		app.logger,
	)
	app.logger.Info("MCP server starting", slog.String("backend_url", app.config.Backend.BaseURL))
	return srv.ServeStdio()
}
