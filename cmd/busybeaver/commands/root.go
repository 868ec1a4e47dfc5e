package commands

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"busybeaver/internal/app"
	"busybeaver/internal/platform/config"
	"busybeaver/internal/platform/logger"
)

var (
	envFile string

	cfg config.Config
	log *slog.Logger
)

func Execute() error {
	root := &cobra.Command{
		Use:           "busybeaver",
		Short:         "Chat bot backend: HTTP API, background worker and database tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			cfg = config.FromEnv()
			log = logger.New(cfg.Log)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading BUSYBEAVER_* variables")

	root.AddCommand(serveCmd(), workerCmd(), dbCmd(), tokenCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		if log != nil {
			log.Error("command failed", "error", err)
		} else {
			slog.Error("command failed", "error", err)
		}
		return err
	}
	return nil
}

// withApp builds the application for one command run and always shuts it
// down afterwards.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	a, err := app.New(ctx, cfg, app.WithLogger(log))
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Error("shutdown failed", "error", err)
		}
	}()
	return fn(a)
}
