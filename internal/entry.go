// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/ravnholt/voxnote/internal/api"
	"github.com/ravnholt/voxnote/internal/mcpserver"
	"github.com/ravnholt/voxnote/internal/notestore"
	"github.com/ravnholt/voxnote/internal/orchestrator"
	"github.com/ravnholt/voxnote/internal/provider"
	"github.com/ravnholt/voxnote/internal/recovery"
	"github.com/ravnholt/voxnote/internal/refine"
	"github.com/ravnholt/voxnote/internal/registry"
	"github.com/ravnholt/voxnote/internal/session"
	"github.com/ravnholt/voxnote/internal/staging"
)

// cleanupInterval is how often old orphaned audio is swept from staging.
const cleanupInterval = time.Hour

// unconfiguredCapture is the default microphone backend. It fails every
// Start until a real one is injected via WithAudioCapture.
type unconfiguredCapture struct{}

func (unconfiguredCapture) Start(context.Context) (session.AudioSource, error) {
	return nil, provider.ErrNotConfigured
}

func (app *application) applyDefaults() {
	if app.capture == nil {
		app.capture = unconfiguredCapture{}
	}
	if app.transcriber == nil {
		app.transcriber = provider.UnconfiguredTranscriber{}
	}
	if app.generator == nil {
		app.generator = provider.UnconfiguredGenerator{}
	}
	if app.syncer == nil {
		app.syncer = provider.NopSyncer{}
	}
	if app.tagger == nil {
		app.tagger = provider.NopTagger{}
	}
	if app.quota == nil {
		app.quota = provider.AllowAllQuota{}
	}
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	app.applyDefaults()

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("staging_path", cfg.Staging.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure staging directory exists.
	if err := os.MkdirAll(cfg.Staging.Path, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}

	// Initialize staging store.
	store, err := staging.NewStore(cfg.Staging.Path, logger)
	if err != nil {
		return fmt.Errorf("init staging: %w", err)
	}

	// Initialize SQLite note store.
	db, err := notestore.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init note store: %w", err)
	}
	defer db.Close()

	// Processing registry with SSE fan-out.
	reg := registry.New()
	defer reg.Close()

	// Capture pipeline.
	recorder := session.NewRecorder(app.capture, app.transcriber, store, logger)
	pipeline := refine.New(app.generator, logger, cfg.Refine.Timeout)
	orch := orchestrator.New(recorder, store, db, reg, pipeline,
		app.syncer, app.tagger, app.quota, logger,
		orchestrator.Config{
			OwnerID:        cfg.Recording.OwnerID,
			RecordingLimit: cfg.Recording.Limit,
			UndoGrace:      cfg.Recording.UndoGrace,
		})
	coord := recovery.New(store, db, reg, app.transcriber, orch, recorder,
		logger, cfg.Recording.OwnerID, cfg.Recovery.ScanInterval, cfg.Recovery.MaxAge)

	// Build API router.
	handler := api.NewHandler(db, orch, coord, reg)
	apiRouter := api.NewRouter(handler, cfg.Auth.AuthEnabled(), cfg.Auth.Token, reg)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Initial recovery scan surfaces orphans from a previous run.
	if _, err := coord.Scan(gCtx); err != nil {
		logger.Warn("initial recovery scan failed", slog.String("error", err.Error()))
	}

	// Watch the staging directory; activity outside a live session
	// triggers a recovery scan.
	g.Go(func() error {
		return staging.Watch(gCtx, store, logger, func() {
			if _, err := coord.Scan(gCtx); err != nil {
				logger.Warn("recovery scan failed", slog.String("error", err.Error()))
			}
		})
	})

	// Sweep expired orphaned audio periodically.
	g.Go(func() error {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				if !recorder.Recording() {
					store.CleanupOld(cfg.Recovery.MaxAge)
				}
			}
		}
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP starts the MCP stdio server over the same stores. No HTTP
// surface, no capture pipeline; tools are read-only.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	app.applyDefaults()

	cfg := app.config

	// Logs go to stderr: stdout carries the MCP protocol.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Staging.Path, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	store, err := staging.NewStore(cfg.Staging.Path, logger)
	if err != nil {
		return fmt.Errorf("init staging: %w", err)
	}

	db, err := notestore.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init note store: %w", err)
	}
	defer db.Close()

	reg := registry.New()
	defer reg.Close()

	// The MCP process never records, so a bare recorder serves as the
	// session guard and nothing is ever excluded from pending scans.
	recorder := session.NewRecorder(app.capture, app.transcriber, store, logger)
	coord := recovery.New(store, db, reg, app.transcriber, nil, recorder,
		logger, cfg.Recording.OwnerID, cfg.Recovery.ScanInterval, cfg.Recovery.MaxAge)

	srv := mcpserver.New(db, coord)
	logger.Info("MCP server starting on stdio")
	return srv.ServeStdio()
}
