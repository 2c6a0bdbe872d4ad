package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	pgdb "github.com/alanyang/agentlink/internal/adapter/postgres"
	"github.com/alanyang/agentlink/internal/adapter/sqlite"
	"github.com/alanyang/agentlink/internal/config"
	"github.com/alanyang/agentlink/internal/transport/auth"
	"github.com/alanyang/agentlink/internal/wire"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "server",
		Short:         "Agent communication server: identities, presence, messaging and tasks",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, realtime and MCP server (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	migrateCmd := &cobra.Command{
		Use:       "migrate up|down",
		Short:     "Apply or roll back database migrations",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), configPath, args[0])
		},
	}

	var platform string
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Print a federation bearer token for a platform",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			signer := auth.NewSigner(cfg.Federation.JWTSecret, cfg.Federation.Issuer, cfg.Federation.TokenTTL)
			if !signer.Enabled() {
				return errors.New("federation.jwt_secret is not set")
			}
			tok, err := signer.Issue(platform)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	tokenCmd.Flags().StringVar(&platform, "platform", "", "platform name carried in the token subject")
	_ = tokenCmd.MarkFlagRequired("platform")

	root.AddCommand(serve, migrateCmd, tokenCmd)
	return root
}

func setupLogging(cfg config.LoggingConfig) error {
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func runServe(parent context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := setupLogging(cfg.Logging); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := wire.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("building application: %w", err)
	}
	defer app.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("HTTP + realtime + MCP server listening", "addr", app.Server.Addr)
		if err := app.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := app.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("agentlink server stopped")
	return nil
}

func runMigrate(ctx context.Context, configPath, direction string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := setupLogging(cfg.Logging); err != nil {
		return err
	}

	if cfg.Storage.Driver == config.DriverSQLite {
		// Open migrates up; a single-file database is rolled back by deleting it.
		if direction != "up" {
			return fmt.Errorf("migrate %s: not supported for the sqlite driver", direction)
		}
		db, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		slog.Info("sqlite schema up to date", "path", cfg.Storage.SQLitePath)
		return db.Close()
	}

	pool, err := wire.OpenPostgres(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer pool.Close()

	switch direction {
	case "up":
		version, err := pgdb.Migrate(pool)
		if err != nil {
			return err
		}
		slog.Info("migrations applied", "version", version)
	case "down":
		if err := pgdb.MigrateDown(pool); err != nil {
			return err
		}
		slog.Info("migrations rolled back")
	default:
		return fmt.Errorf("migrate: unknown direction %q, want up or down", direction)
	}
	return nil
}
