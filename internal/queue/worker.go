package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Worker pulls jobs from a queue's broker with a fixed number of consumers.
type Worker struct {
	queue       *Queue
	concurrency int
	wait        time.Duration
	backoff     time.Duration
	logger      *slog.Logger
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithPollWait sets how long each consumer blocks on the broker per poll.
func WithPollWait(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.wait = d
		}
	}
}

func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) { w.logger = logger }
}

func NewWorker(q *Queue, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:       q,
		concurrency: 1,
		wait:        time.Second,
		backoff:     time.Second,
		logger:      q.logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Run consumes until ctx is cancelled and then returns ctx.Err(). Handlers
// receive ctx, so anything stored on it (the application context) reaches
// them. Broker errors are logged and retried after a pause.
func (w *Worker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		consumer := i
		g.Go(func() error {
			return w.consume(gctx, consumer)
		})
	}
	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (w *Worker) consume(ctx context.Context, consumer int) error {
	w.logger.InfoContext(ctx, "worker consumer started", "queue", w.queue.name, "consumer", consumer)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		job, err := w.queue.broker.Pop(ctx, w.wait)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrClosed) {
				return err
			}
			w.logger.ErrorContext(ctx, "pop job", "queue", w.queue.name, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.backoff):
			}
			continue
		}
		if job == nil {
			continue
		}
		w.queue.Process(ctx, job)
	}
}
