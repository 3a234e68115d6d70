package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oddslab/marketcore/internal/engine"
	"github.com/oddslab/marketcore/internal/ledger"
	"github.com/oddslab/marketcore/internal/scheduler"
	"github.com/oddslab/marketcore/internal/storage"
	"github.com/oddslab/marketcore/internal/stream"
	"github.com/oddslab/marketcore/pkg/config"
	"github.com/oddslab/marketcore/pkg/healthprobe"
	"github.com/oddslab/marketcore/pkg/httpserver"
	"github.com/oddslab/marketcore/pkg/snapcache"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the market daemon",
	Long: `Run hosts the engine: it restores the persisted state (or opens a
fresh session), serves the HTTP API and websocket stream, and applies
order batches on the configured interval.`,
	RunE: runDaemon,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	// .env is optional; the environment wins.
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	params, err := config.LoadMarketParams(cfg.MarketParamsPath)
	if err != nil {
		return err
	}

	store, err := buildStorage(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	state, err := restoreState(store, params, logger)
	if err != nil {
		return err
	}

	book := ledger.New(logger)
	hub := stream.NewHub(logger)
	defer hub.Close()

	sched, err := scheduler.New(scheduler.Config{
		Interval: cfg.BatchInterval,
		Params:   params,
		Logger:   logger,
		Storage:  store,
		Ledger:   book,
		Hub:      hub,
	}, state)
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}

	cache, err := snapcache.New(&snapcache.Config{
		MaxSnapshots: 64,
		TTL:          cfg.SnapshotCacheTTL,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("build snapshot cache: %w", err)
	}
	defer cache.Close()

	health := healthprobe.New()
	server := httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: health,
		Scheduler:     sched,
		Hub:           hub,
		Cache:         cache,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() { errCh <- server.Start() }()
	go func() { errCh <- sched.Run(ctx) }()

	health.SetReady(true)
	health.SetSession(string(sched.Status()))
	logger.Info("marketcore-running",
		zap.String("port", cfg.HTTPPort),
		zap.Duration("batch-interval", cfg.BatchInterval),
		zap.Int("outcomes", params.NOutcomes))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("component-failed", zap.Error(err))
		}
		stop()
	}

	health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	if err != nil {
		logger.Error("shutdown-failed", zap.Error(err))
	}
	logger.Info("marketcore-stopped")
	return nil
}

func buildStorage(cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	if cfg.StorageMode == "postgres" {
		store, err := storage.NewPostgresStorage(&storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return store, nil
	}
	return storage.NewConsoleStorage(logger), nil
}

// restoreState resumes the persisted session when one exists, otherwise
// opens a fresh one.
func restoreState(store storage.Storage, params engine.EngineParams, logger *zap.Logger) (*engine.EngineState, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	blob, err := store.LoadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if blob != nil {
		state, err := engine.Deserialize(blob)
		if err != nil {
			return nil, fmt.Errorf("restore state: %w", err)
		}
		logger.Info("session-restored", zap.Int64("seq", state.Seq))
		return state, nil
	}

	state, err := engine.Init(params, time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("init state: %w", err)
	}
	logger.Info("session-initialized", zap.Int("outcomes", params.NOutcomes))
	return state, nil
}
