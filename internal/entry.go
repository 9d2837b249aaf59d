// Package internal provides the main application initialization and runtime logic.
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

	"github.com/starford/attractor-gallery/internal/api"
	"github.com/starford/attractor-gallery/internal/catalog"
	"github.com/starford/attractor-gallery/internal/curationservice"
	"github.com/starford/attractor-gallery/internal/curator"
	"github.com/starford/attractor-gallery/internal/gallery"
	"github.com/starford/attractor-gallery/internal/mcpserver"
	"github.com/starford/attractor-gallery/internal/models"
	"github.com/starford/attractor-gallery/internal/sse"
	"github.com/starford/attractor-gallery/internal/storage"
	"github.com/starford/attractor-gallery/internal/storage/objstore"
)

// runtime holds the components shared by every command.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	stdout io.Writer

	store storage.Provider
	// fs is set for the fs backend only.
	fs *storage.FS
	// db is set when a catalog is configured.
	db *catalog.DB
}

func (rt *runtime) Close() {
	if rt.db != nil {
		_ = rt.db.Close()
	}
}

// source is the provider curation reads from.
func (rt *runtime) source() storage.Provider {
	if rt.db != nil && rt.cfg.Catalog.Primary {
		return rt.db
	}
	return rt.store
}

func newLogger(w io.Writer, cfg ApplicationConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == LogFormatText {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func setup(ctx context.Context, opts []Option) (*runtime, error) {
	app := &application{stdout: os.Stdout, logOut: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := newLogger(app.logOut, cfg.App)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("store_backend", cfg.Store.Backend),
		slog.String("store_path", cfg.Store.Path),
		slog.String("catalog_path", cfg.Catalog.Path),
		slog.String("gallery_dir", cfg.Gallery.OutputDir),
		slog.String("scoring", cfg.Curation.Scoring),
		slog.Int("top_n", cfg.Curation.TopN),
		slog.String("log_level", cfg.App.LogLevel.String()))

	rt := &runtime{cfg: cfg, logger: logger, stdout: app.stdout}

	switch cfg.Store.Backend {
	case BackendMinIO:
		m := cfg.Store.MinIO
		client, err := objstore.Dial(m.Endpoint, m.AccessKey, m.SecretKey, m.UseSSL)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		rt.store = objstore.NewStore(client, m.Bucket, m.Prefix,
			objstore.WithLogger(logger),
			objstore.WithRequestLimit(m.RequestsPerSecond))
	default:
		if err := os.MkdirAll(cfg.Store.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		fsys, err := storage.NewFS(cfg.Store.Path, storage.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		rt.fs = fsys
		rt.store = fsys
	}

	if cfg.Catalog.Enabled() {
		db, err := catalog.Open(cfg.Catalog.Path)
		if err != nil {
			return nil, fmt.Errorf("init catalog: %w", err)
		}
		rt.db = db
		if cfg.Catalog.Primary {
			if _, err := catalog.Sync(ctx, db, rt.store, logger); err != nil {
				logger.Warn("initial sync failed", slog.String("error", err.Error()))
			}
		}
	}

	return rt, nil
}

func (rt *runtime) newService(opts ...curationservice.Option) (*curationservice.Service, error) {
	cc, err := rt.cfg.Curation.CuratorConfig()
	if err != nil {
		return nil, err
	}
	c := curator.New(rt.source(), cc, rt.logger)

	dir, err := gallery.NewDir(rt.cfg.Gallery.OutputDir, rt.cfg.Gallery.CompressionKind(), rt.cfg.Gallery.Workers, rt.logger)
	if err != nil {
		return nil, err
	}

	base := []curationservice.Option{
		curationservice.WithLogger(rt.logger),
		// Summary tables precede rendering.
		curationservice.WithExporter(gallery.Multi{gallery.Console{W: rt.stdout}, dir}),
	}
	if rt.db != nil {
		base = append(base, curationservice.WithRunRecorder(rt.db))
	}
	return curationservice.New(c, append(base, opts...)...), nil
}

// Run performs a single curation pass: rank, select, export and record.
func Run(ctx context.Context, opts ...Option) error {
	rt, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	svc, err := rt.newService()
	if err != nil {
		return err
	}
	if _, err := svc.Curate(ctx); err != nil {
		return fmt.Errorf("curate: %w", err)
	}
	return nil
}

// SyncCatalog imports the configured store into the catalog.
func SyncCatalog(ctx context.Context, opts ...Option) error {
	rt, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.db == nil {
		return fmt.Errorf("catalog sync: catalog.path is not configured")
	}
	stats, err := catalog.Sync(ctx, rt.db, rt.store, rt.logger)
	if err != nil {
		return fmt.Errorf("catalog sync: %w", err)
	}
	fmt.Fprintf(rt.stdout, "indexed=%d unchanged=%d removed=%d failed=%d\n",
		stats.Indexed, stats.Unchanged, stats.Removed, stats.Failed)
	return nil
}

// ServeMCP runs the MCP server on stdio. Logs and summaries go to stderr
// unless overridden, since stdout carries the protocol.
func ServeMCP(ctx context.Context, opts ...Option) error {
	opts = append([]Option{WithStdout(os.Stderr), WithLogOutput(os.Stderr)}, opts...)
	rt, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	svc, err := rt.newService()
	if err != nil {
		return err
	}
	var runs mcpserver.RunLister
	if rt.db != nil {
		runs = rt.db
	}
	rt.logger.Info("MCP server starting on stdio")
	return mcpserver.New(svc, runs).ServeStdio()
}

func selectionSummary(s *curationservice.Snapshot) sse.SelectionSummary {
	groups := make(map[string]int, len(s.Result.Groups))
	for _, g := range s.Result.Groups {
		groups[g.Label] = len(g.Selected)
	}
	return sse.SelectionSummary{
		RunID:    s.RunID,
		Policy:   s.Result.Policy,
		Rendered: s.Result.Rendered(),
		Groups:   groups,
	}
}

// newHTTPHandler builds the chi router with health checks, the API and SSE.
func newHTTPHandler(cfg *Config, svc *curationservice.Service, db *catalog.DB, broker *sse.Broker) http.Handler {
	var runs api.RunLister
	if db != nil {
		runs = db
	}
	h := api.NewHandler(svc, runs, cfg.Gallery.CompressionKind())

	var events http.Handler
	if broker != nil {
		events = broker
	}
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, events)

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
		if _, err := svc.Latest(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"no selection"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)
	return r
}

// Serve runs an initial curation and then serves the HTTP API until a
// signal arrives or ctx is cancelled.
func Serve(ctx context.Context, opts ...Option) error {
	rt, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.cfg
	logger := rt.logger

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	svc, err := rt.newService(curationservice.WithNotify(func(s *curationservice.Snapshot) {
		broker.PublishSelection(selectionSummary(s))
	}))
	if err != nil {
		return err
	}

	if _, err := svc.Curate(ctx); err != nil {
		logger.Warn("initial curation failed", slog.String("error", err.Error()))
	}

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newHTTPHandler(cfg, svc, rt.db, broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gCtx := errgroup.WithContext(runCtx)

	// Keep the catalog in step with the results directory.
	if rt.fs != nil && rt.db != nil {
		g.Go(func() error {
			err := catalog.Watch(gCtx, rt.db, rt.fs, logger, func(kind string, id models.ID) {
				broker.PublishRecordEvent(kind, id)
			})
			if err != nil {
				logger.Error("watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

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
		defer signal.Stop(quit)

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
		// Stop the watcher too.
		stop()

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
