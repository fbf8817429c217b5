package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/httplog/v2"
	"github.com/vadimbarashkov/shortlink/internal/cache"
	"github.com/vadimbarashkov/shortlink/internal/config"
	"github.com/vadimbarashkov/shortlink/internal/entity"
	"github.com/vadimbarashkov/shortlink/internal/usecase"
	"github.com/vadimbarashkov/shortlink/pkg/postgres"
	"github.com/vadimbarashkov/shortlink/pkg/sqlite"
	"github.com/vadimbarashkov/shortlink/pkg/worker"
	"golang.org/x/sync/errgroup"

	delivery "github.com/vadimbarashkov/shortlink/internal/adapter/delivery/http"
	pgrepo "github.com/vadimbarashkov/shortlink/internal/adapter/repository/postgres"
	sqliterepo "github.com/vadimbarashkov/shortlink/internal/adapter/repository/sqlite"
)

const shutdownTimeout = 10 * time.Second

type urlRepository interface {
	Save(ctx context.Context, url *entity.URL) (*entity.URL, error)
	FindBySlug(ctx context.Context, slug string) (*entity.URL, error)
	ExistsBySlug(ctx context.Context, slug string) (bool, error)
	IncrementClickCount(ctx context.Context, id string) error
	IncrementExpiredAccessCount(ctx context.Context, slug string) error
	SaveClick(ctx context.Context, click *entity.Click) error
	ListClicks(ctx context.Context, urlID string) ([]entity.Click, error)
}

// components is the wired service without its listener and store connection.
type components struct {
	router  http.Handler
	cache   *cache.SlugCache
	pool    *worker.Pool
	useCase *usecase.URLUseCase
}

// NewLogger builds the service logger from the log section of cfg.
func NewLogger(cfg *config.Config) *httplog.Logger {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}

	return httplog.NewLogger("shortlink", httplog.Options{
		LogLevel: level,
		JSON:     cfg.Log.JSON,
		Concise:  !cfg.Log.JSON,
		Tags: map[string]string{
			"env": cfg.Env,
		},
		QuietDownRoutes: []string{"/api/v1/ping"},
	})
}

func build(cfg *config.Config, logger *httplog.Logger, repo urlRepository) (*components, error) {
	const op = "app.build"

	slugCache, err := cache.New(
		cache.WithDefaultTTL(cfg.Cache.DefaultTTL),
		cache.WithMaxEntries(cfg.Cache.MaxEntries),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create cache: %w", op, err)
	}

	pool := worker.NewPool(
		logger.Logger,
		worker.WithWorkers(cfg.Analytics.Workers),
		worker.WithQueueSize(cfg.Analytics.QueueSize),
		worker.WithTaskTimeout(cfg.Analytics.TaskTimeout),
	)

	uc := usecase.NewURLUseCase(
		repo,
		slugCache,
		pool,
		logger.Logger,
		usecase.WithSlugLength(cfg.Slug.Length),
		usecase.WithMaxAttempts(cfg.Slug.MaxAttempts),
		usecase.WithStoreTimeout(cfg.Resolver.StoreTimeout),
	)

	router := delivery.NewRouter(logger, delivery.Config{
		BaseURL:     cfg.BaseURL,
		FrontendURL: cfg.FrontendURL,
		SlugLength:  cfg.Slug.Length,
	}, uc, slugCache)

	return &components{
		router:  router,
		cache:   slugCache,
		pool:    pool,
		useCase: uc,
	}, nil
}

// openStore connects to the configured storage driver and returns the
// repository with a function releasing its connection.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (urlRepository, func() error, error) {
	const op = "app.openStore"

	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		db, err := postgres.New(
			ctx,
			cfg.Postgres.DSN(),
			postgres.WithConnMaxIdleTime(cfg.Postgres.ConnMaxIdleTime),
			postgres.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
			postgres.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
			postgres.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
			postgres.WithConnectRetry(cfg.Postgres.ConnectAttempts, time.Second),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: failed to connect to database: %w", op, err)
		}

		version, err := postgres.RunMigrations(cfg.Postgres.MigrationsPath, cfg.Postgres.DSN())
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("%s: failed to run migrations: %w", op, err)
		}

		logger.Info("connected to postgres", slog.Uint64("schema_version", uint64(version)))

		return pgrepo.NewURLRepository(db), db.Close, nil
	case config.DriverSQLite:
		db, err := sqlite.New(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: failed to open database: %w", op, err)
		}

		logger.Info("opened sqlite database", slog.String("path", cfg.SQLite.Path))

		return sqliterepo.NewURLRepository(db), db.Close, nil
	default:
		return nil, nil, fmt.Errorf("%s: unknown storage driver %q", op, cfg.Storage.Driver)
	}
}

// Run serves the shortlink API until ctx is done. On shutdown the server stops
// first, then pending analytics tasks are drained and the store is closed.
func Run(ctx context.Context, cfg *config.Config) error {
	const op = "app.Run"

	logger := NewLogger(cfg)

	repo, closeStore, err := openStore(ctx, cfg, logger.Logger)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("failed to close store", slog.Any("err", err))
		}
	}()

	c, err := build(cfg, logger, repo)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        c.router,
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error

		logger.Info("starting server", slog.String("addr", server.Addr), slog.String("storage", cfg.Storage.Driver))

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}

		if err := c.pool.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s: failed to drain analytics tasks: %w", op, err)
		}

		logger.Info("server stopped")

		return nil
	})

	return g.Wait()
}
