// Command arbor runs the node tree service: an HTTP API (serve) or an
// interactive shell (shell) over the same SQLite-backed tree store.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"arbor/pkg/cli"
	"arbor/pkg/config"
	"arbor/pkg/server"
	"arbor/pkg/storage"
	"arbor/pkg/tree"
)

var (
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "arbor",
	Short: "arbor manages a persisted hierarchical tree of labeled nodes",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel(cfg.LogLevel),
		}))
		slog.SetDefault(logger)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the tree API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, manager, err := setup()
		if err != nil {
			return err
		}
		defer closeStore(store)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := server.New(manager, logger)
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.Run(ctx, cfg.ListenAddr)
		})
		if err := g.Wait(); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil
	},
}

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Open an interactive shell on the tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, manager, err := setup()
		if err != nil {
			return err
		}
		defer closeStore(store)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		shell, err := cli.New(manager)
		if err != nil {
			return err
		}
		return shell.Run(ctx)
	},
}

// setup opens storage (bootstrapping the root node) and builds the manager.
func setup() (*storage.Storage, *tree.Manager, error) {
	store, err := storage.Open(cfg.DatabasePath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, tree.NewManager(store, logger), nil
}

func closeStore(store *storage.Storage) {
	if err := store.Close(); err != nil {
		logger.Error("failed to close storage", "error", err)
	}
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(shellCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
