package commands

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"busybeaver/internal/app"
	"busybeaver/internal/queue"
)

func workerCmd() *cobra.Command {
	var (
		concurrency int
		pollWait    time.Duration
		burst       bool
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run queued background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Queue.Async = true
			if concurrency > 0 {
				cfg.Queue.Workers = concurrency
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				appCtx := a.AppContext(cmd.Context())
				ctx := appCtx.Push()
				defer func() {
					if err := appCtx.Pop(); err != nil {
						a.Logger().Error("pop app context", "error", err)
					}
				}()

				if burst {
					n, err := a.Queue().Burst(ctx)
					a.Logger().Info("burst finished", "jobs", n)
					return err
				}

				w := queue.NewWorker(a.Queue(),
					queue.WithConcurrency(cfg.Queue.Workers),
					queue.WithPollWait(pollWait),
					queue.WithWorkerLogger(a.Logger()),
				)
				if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "consumers (default BUSYBEAVER_QUEUE_WORKERS)")
	cmd.Flags().DurationVar(&pollWait, "poll-wait", time.Second, "how long each consumer blocks waiting for a job")
	cmd.Flags().BoolVar(&burst, "burst", false, "run the jobs already queued, then exit")
	return cmd
}
