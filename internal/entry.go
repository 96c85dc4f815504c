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

	"github.com/starford/nbpublish/internal/api"
	"github.com/starford/nbpublish/internal/buildservice"
	"github.com/starford/nbpublish/internal/manifest"
	"github.com/starford/nbpublish/internal/mcpserver"
	"github.com/starford/nbpublish/internal/models"
	"github.com/starford/nbpublish/internal/publish"
	"github.com/starford/nbpublish/internal/sse"
	"github.com/starford/nbpublish/internal/storage"
	"github.com/starford/nbpublish/internal/watch"
)

// PublishOptions are the command line switches of a one-shot run.
type PublishOptions struct {
	Force   bool
	Prune   bool
	Workers int
	Topics  []string
}

type runtime struct {
	cfg    *Config
	logger *slog.Logger
	out    io.Writer
	db     *manifest.DB
	pub    *publish.Publisher
}

func (rt *runtime) close() {
	rt.pub.Release()
	if err := rt.db.Close(); err != nil {
		rt.logger.Warn("manifest close failed", slog.String("error", err.Error()))
	}
}

// setup applies options, opens the course folders and the manifest, and
// takes the build lock.
func setup(opts []Option) (*runtime, error) {
	app := &application{logOutput: os.Stdout, out: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("course_root", cfg.Course.Root),
		slog.Int("folders", len(cfg.Course.Folders)),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	folders, err := openFolders(cfg, logger)
	if err != nil {
		return nil, err
	}
	assets, err := openAssets(cfg, logger)
	if err != nil {
		return nil, err
	}

	db, err := manifest.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init manifest: %w", err)
	}

	pub := publish.New(folders, cfg.Rules, assets, logger,
		publish.WithManifest(db),
		publish.WithPattern(cfg.Course.Pattern),
		publish.WithLockFile(cfg.Course.LockPath()),
	)
	if err := pub.Acquire(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &runtime{cfg: cfg, logger: logger, out: app.out, db: db, pub: pub}, nil
}

// openFolders opens storage for each folder pair. A missing source folder is
// skipped with a warning; destination folders are created.
func openFolders(cfg *Config, logger *slog.Logger) ([]publish.Folder, error) {
	var folders []publish.Folder
	for _, pair := range cfg.Course.Pairs() {
		srcDir := cfg.Course.Resolve(pair.Source)
		src, err := storage.NewFS(srcDir)
		if err != nil {
			logger.Warn("source folder missing, skipping topic",
				slog.String("topic", pair.Topic),
				slog.String("source", srcDir))
			continue
		}
		dstDir := cfg.Course.Resolve(pair.Dest)
		if err := os.MkdirAll(dstDir, 0o755); err != nil {
			return nil, fmt.Errorf("create dest dir: %w", err)
		}
		dst, err := storage.NewFS(dstDir)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		folders = append(folders, publish.Folder{Pair: pair, Src: src, Dst: dst})
	}
	if len(folders) == 0 {
		return nil, fmt.Errorf("no source folders found under %s", cfg.Course.Root)
	}
	return folders, nil
}

// openAssets opens the media and build images directories. Without a media
// directory every referenced file is reported missing.
func openAssets(cfg *Config, logger *slog.Logger) (*publish.AssetPublisher, error) {
	imagesDir := cfg.Course.Resolve(cfg.Course.BuildImagesDir)
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create images dir: %w", err)
	}
	images, err := storage.NewFS(imagesDir)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	var media storage.Provider
	mediaDir := cfg.Course.Resolve(cfg.Course.MediaDir)
	if fs, err := storage.NewFS(mediaDir); err == nil {
		media = fs
	} else {
		logger.Warn("media folder missing", slog.String("media_dir", mediaDir))
	}
	return publish.NewAssetPublisher(media, images, logger), nil
}

// Publish runs one batch over the configured folders and prints a report.
// It returns an error when any notebook failed.
func Publish(ctx context.Context, popts PublishOptions, opts ...Option) error {
	rt, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	workers := popts.Workers
	if workers < 1 {
		workers = rt.cfg.App.Workers
	}
	sum, runErr := rt.pub.Run(ctx, publish.Options{
		Force:   popts.Force,
		Prune:   popts.Prune,
		Topics:  popts.Topics,
		Workers: workers,
	})
	if _, err := io.WriteString(rt.out, RenderSummary(sum, shouldColorize(rt.out))); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("publish: %d notebook(s) failed: %w", sum.Count(models.StatusFailed), runErr)
	}
	return nil
}

// Watch publishes everything once, then republishes on change and serves the
// status API until a shutdown signal arrives.
func Watch(ctx context.Context, opts ...Option) error {
	rt, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.close()
	cfg, logger := rt.cfg, rt.logger

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	svc := buildservice.NewService(rt.pub, rt.db, broker.PublishBuildEvent)

	// Initial build.
	if _, err := svc.PublishAll(ctx, publish.Options{Prune: true, Workers: cfg.App.Workers}); err != nil {
		logger.Warn("initial publish had failures", slog.String("error", err.Error()))
	}

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		if err := rt.db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher with SSE callback.
	g.Go(func() error {
		return watch.Watch(gCtx, rt.pub, rt.db, logger, broker.PublishBuildEvent)
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

		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// ServeMCP serves the MCP tools on stdin/stdout. Logs go to stderr so they
// do not corrupt the protocol stream.
func ServeMCP(_ context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	rt, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	svc := buildservice.NewService(rt.pub, rt.db, nil)
	rt.logger.Info("MCP server starting on stdio")
	return mcpserver.New(svc).ServeStdio()
}
