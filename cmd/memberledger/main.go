// cmd/memberledger/main.go
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"memberledger/internal/config"
	"memberledger/internal/logging"
	"memberledger/internal/membership"
	"memberledger/internal/metrics"
	"memberledger/internal/server"
	"memberledger/internal/tracing"
	"memberledger/pkg/filestore"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing.Endpoint, cfg.Tracing.ServiceName, cfg.Tracing.Insecure)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	handler, closer, err := buildHandler(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics()
	}
	srv := server.NewServer(cfg, handler, m, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// buildHandler wires the configured store into the submission handler. A
// store that is missing required settings does not stop the server: every
// submission then fails with a configuration error.
func buildHandler(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*membership.Handler, io.Closer, error) {
	if missing := cfg.StoreProblems(); len(missing) > 0 {
		logger.Error("store is not configured, submissions will be rejected",
			zap.String("backend", cfg.Store.Backend),
			zap.Strings("missing", missing))
		return membership.NewMisconfiguredHandler(&membership.ConfigurationError{Missing: missing}, logger), nil, nil
	}

	var (
		store  filestore.Store
		closer io.Closer
	)
	switch cfg.Store.Backend {
	case "github":
		gh := cfg.Store.GitHub
		s, err := filestore.NewGitHubStore(filestore.GitHubConfig{
			Token:   gh.Token,
			Owner:   gh.Owner,
			Repo:    gh.Repo,
			Branch:  gh.Branch,
			BaseURL: gh.BaseURL,
		}, nil)
		if err != nil {
			return nil, nil, err
		}
		store = s
	case "postgres":
		db, err := sql.Open("postgres", cfg.Store.Postgres.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		s := filestore.NewPostgresStore(db)
		if err := s.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("postgres schema: %w", err)
		}
		store, closer = s, db
	case "memory":
		logger.Warn("using in-memory store, the ledger is lost on restart")
		store = filestore.NewMemoryStore()
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	svc := membership.NewService(store, membership.Options{
		Path:         cfg.Ledger.Path,
		StoreTimeout: cfg.Store.Timeout,
		EscapeFields: cfg.Ledger.EscapeFields,
	}, logger)
	svc = membership.NewRetryingService(svc, membership.RetryOptions{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
	}, logger)

	logger.Info("store ready",
		zap.String("backend", cfg.Store.Backend),
		zap.String("ledger", cfg.Ledger.Path))
	return membership.NewHandler(svc, logger, cfg.Secrets()...), closer, nil
}
