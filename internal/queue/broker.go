package queue

import (
	"context"
	"time"
)

// Broker moves jobs from producers to workers.
type Broker interface {
	// Push makes job available to Pop.
	Push(ctx context.Context, job *Job) error
	// Pop waits up to wait for a job. A zero wait does not block. It returns
	// nil, nil when nothing arrived.
	Pop(ctx context.Context, wait time.Duration) (*Job, error)
	// Len reports queued jobs. Brokers that cannot count return
	// sentinel.ErrUnsupported.
	Len(ctx context.Context) (int, error)
	// Purge drops every queued job.
	Purge(ctx context.Context) error
	Close() error
}

// Records stores the latest state of every job so callers can poll status.
type Records interface {
	Save(ctx context.Context, job *Job) error
	// Load returns sentinel.ErrNotFound for unknown ids.
	Load(ctx context.Context, id string) (*Job, error)
}
