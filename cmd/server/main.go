/*
main.go - Application entry point

PURPOSE:
  Starts the streakd habit tracker server and its maintenance commands.
  Handles configuration, dependency injection, and graceful shutdown.

COMMANDS:
  streakd [serve]                  Run the HTTP API (default)
  streakd migrate                  Apply database migrations and exit
  streakd recompute <habit-id>...  Recompute streaks of the given habits
  streakd recompute --all          Recompute every streak

GLOBAL FLAGS:
  --config     YAML config file (see config/config.go)
  --addr       Listen address, overrides server.addr
  --db         SQLite path, overrides database.path (":memory:" allowed)
  --log-level  Overrides log.level

STARTUP SEQUENCE (serve):
  1. Load config (defaults, file, STREAKD_* env, flags)
  2. Build the zap logger
  3. Open the store (migrations run on open)
  4. Create API handler and router
  5. Start the streak refresher (if enabled)
  6. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the refresher
  2. Stop accepting new connections
  3. Wait for active requests (server.shutdown_timeout)
  4. Close database connection

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration keys
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/streak-engine/api"
	"github.com/warp/streak-engine/config"
	"github.com/warp/streak-engine/habit"
	"github.com/warp/streak-engine/habit/store"
	"github.com/warp/streak-engine/logging"
	"github.com/warp/streak-engine/store/sqlite"
)

var (
	configPath string
	addrFlag   string
	dbFlag     string
	levelFlag  string
	allFlag    bool

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "streakd",
	Short: "streakd - habit tracker with a completion ledger and streaks",
	Long: `streakd tracks habits. Each habit has at most one completion per day,
and a streak (current run, longest run, last completion) that is recomputed
from the completions after every change.

Run without a subcommand to start the HTTP API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if addrFlag != "" {
			cfg.Server.Addr = addrFlag
		}
		if dbFlag != "" {
			cfg.Database.Driver = config.DriverSQLite
			cfg.Database.Path = dbFlag
		}
		if levelFlag != "" {
			cfg.Log.Level = levelFlag
		}

		logger, err = logging.New(cfg.Log.Level, cfg.Log.Format)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Database.Driver != config.DriverSQLite {
			return fmt.Errorf("migrate needs the sqlite driver, configured driver is %q", cfg.Database.Driver)
		}
		db, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		version, err := sqlite.Version(db.DB())
		if err != nil {
			return err
		}
		logger.Info("database migrated", zap.String("path", cfg.Database.Path), zap.Int64("version", version))
		return nil
	},
}

var recomputeCmd = &cobra.Command{
	Use:   "recompute [habit-id...]",
	Short: "Recompute streaks from the completion ledger",
	Args: func(cmd *cobra.Command, args []string) error {
		if allFlag == (len(args) > 0) {
			return errors.New("give habit ids or --all, not both")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, closeStore, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore()

		calc := habit.NewStreakCalculator(st, nil)
		if allFlag {
			res, err := calc.RecomputeAll(ctx, cfg.Refresh.Workers)
			if err != nil {
				return err
			}
			logger.Info("recomputed all streaks", zap.Int("recomputed", res.Recomputed), zap.Int("vanished", res.Vanished))
			return nil
		}

		owner := habit.OwnerID(cfg.Owner.ID)
		for _, arg := range args {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid habit id %q", arg)
			}
			s, err := calc.Recompute(ctx, owner, habit.HabitID(id))
			if err != nil {
				return fmt.Errorf("habit %d: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "habit %d: current=%d longest=%d last=%v\n",
				id, s.CurrentStreak, s.LongestStreak, lastCompletion(s))
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&addrFlag, "addr", "", "listen address (overrides server.addr)")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "SQLite database path (overrides database.path)")
	rootCmd.PersistentFlags().StringVar(&levelFlag, "log-level", "", "log level (overrides log.level)")
	recomputeCmd.Flags().BoolVar(&allFlag, "all", false, "recompute every habit of every owner")

	rootCmd.AddCommand(serveCmd, migrateCmd, recomputeCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// =============================================================================
// SERVE
// =============================================================================

func runServe(ctx context.Context) error {
	st, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	handler := api.NewHandler(st, nil, logger)

	opts := api.Options{
		Owner:          habit.OwnerID(cfg.Owner.ID),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	}
	if cfg.Metrics.Enabled {
		opts.MetricsPath = cfg.Metrics.Path
	}
	router := api.NewRouter(handler, opts)

	if cfg.Refresh.Enabled {
		refresher := api.NewStreakRefresher(handler.Streaks, logger)
		refresher.Interval = cfg.Refresh.Interval
		refresher.Workers = cfg.Refresh.Workers
		refresher.Start()
		defer refresher.Stop()
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Server.Addr),
			zap.String("driver", cfg.Database.Driver),
			zap.Int64("owner", cfg.Owner.ID),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// openStore opens the configured store and returns its close func.
func openStore() (habit.TxStore, func(), error) {
	switch cfg.Database.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory store, data is lost on exit")
		return store.NewMemory(), func() {}, nil
	default:
		db, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return db, func() {
			if err := db.Close(); err != nil {
				logger.Warn("closing database", zap.Error(err))
			}
		}, nil
	}
}

func lastCompletion(s habit.Streak) string {
	if s.LastCompletion == nil {
		return "none"
	}
	return s.LastCompletion.String()
}
