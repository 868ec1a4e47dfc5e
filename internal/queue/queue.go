// Package queue is the background job queue: named handlers, pluggable
// brokers, job status records, and a worker pool.
package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"busybeaver/internal/platform/metrics"
)

const tracerName = "busybeaver/internal/queue"

// Queue dispatches jobs to registered handlers.
type Queue struct {
	name    string
	broker  Broker
	records Records
	async   bool

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	hooks    []Hook
	closed   bool

	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithAsync false runs every job inline inside Enqueue.
func WithAsync(async bool) Option {
	return func(q *Queue) { q.async = async }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

// WithHook adds a hook run after every job reaches a terminal status.
func WithHook(h Hook) Option {
	return func(q *Queue) { q.hooks = append(q.hooks, h) }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New builds a queue. records may be nil when broker also implements Records.
func New(name string, broker Broker, records Records, opts ...Option) (*Queue, error) {
	if broker == nil {
		return nil, fmt.Errorf("queue %s: broker is required", name)
	}
	if records == nil {
		r, ok := broker.(Records)
		if !ok {
			return nil, fmt.Errorf("queue %s: %T does not store job records; pass a Records", name, broker)
		}
		records = r
	}
	q := &Queue{
		name:     name,
		broker:   broker,
		records:  records,
		async:    true,
		handlers: make(map[string]HandlerFunc),
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q, nil
}

// NewMemory is a convenience for a queue backed by a MemoryBroker.
func NewMemory(name string, opts ...Option) *Queue {
	q, _ := New(name, NewMemoryBroker(), nil, opts...)
	return q
}

func (q *Queue) Name() string { return q.name }

// Async reports whether Enqueue hands jobs to the broker.
func (q *Queue) Async() bool { return q.async }

// Register binds a handler to a job name, replacing any earlier one.
func (q *Queue) Register(name string, fn HandlerFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[name] = fn
}

// Registered lists the job names with handlers, sorted.
func (q *Queue) Registered() []string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	names := make([]string, 0, len(q.handlers))
	for n := range q.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (q *Queue) handler(name string) (HandlerFunc, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	fn, ok := q.handlers[name]
	return fn, ok
}

// Enqueue records a job and hands it to the broker. In synchronous mode the
// job runs before Enqueue returns; a handler error marks the job failed and
// is not returned.
func (q *Queue) Enqueue(ctx context.Context, name string, payload any) (*Job, error) {
	if q.isClosed() {
		return nil, ErrClosed
	}
	if _, ok := q.handler(name); !ok {
		return nil, fmt.Errorf("enqueue %q: %w", name, ErrUnknownJob)
	}
	raw, err := encodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("enqueue %q: %w", name, err)
	}

	job := &Job{
		ID:         uuid.NewString(),
		Queue:      q.name,
		Name:       name,
		Payload:    raw,
		Status:     StatusQueued,
		EnqueuedAt: q.now().UTC(),
	}
	if err := q.records.Save(ctx, job); err != nil {
		return nil, err
	}
	q.metrics.IncrementJobsEnqueued(name)

	if !q.async {
		q.Process(ctx, job)
		return job, nil
	}
	if err := q.broker.Push(ctx, job); err != nil {
		return nil, err
	}
	q.logger.DebugContext(ctx, "job enqueued", "queue", q.name, "job_id", job.ID, "job", name)
	return job, nil
}

// Job returns the latest record for id, or sentinel.ErrNotFound.
func (q *Queue) Job(ctx context.Context, id string) (*Job, error) {
	return q.records.Load(ctx, id)
}

// Len reports queued jobs.
func (q *Queue) Len(ctx context.Context) (int, error) {
	return q.broker.Len(ctx)
}

// Empty drops every queued job.
func (q *Queue) Empty(ctx context.Context) error {
	return q.broker.Purge(ctx)
}

// Burst processes queued jobs until the broker has none left and returns how
// many ran.
func (q *Queue) Burst(ctx context.Context) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		job, err := q.broker.Pop(ctx, 0)
		if err != nil {
			return n, err
		}
		if job == nil {
			return n, nil
		}
		q.Process(ctx, job)
		n++
	}
}

// Process runs job's handler and stores the outcome on job.
func (q *Queue) Process(ctx context.Context, job *Job) {
	ctx, span := q.tracer.Start(ctx, "queue.process "+job.Name, trace.WithAttributes(
		attribute.String("queue.name", q.name),
		attribute.String("job.id", job.ID),
		attribute.String("job.name", job.Name),
	))
	defer span.End()

	started := q.now().UTC()
	job.Status = StatusStarted
	job.StartedAt = &started
	if err := q.records.Save(ctx, job); err != nil {
		q.logger.WarnContext(ctx, "save started job", "job_id", job.ID, "error", err)
	}

	result, err := q.run(ctx, job)
	if err == nil {
		job.Result, err = encodePayload(result)
	}

	ended := q.now().UTC()
	job.EndedAt = &ended
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		q.logger.WarnContext(ctx, "job failed", "queue", q.name, "job_id", job.ID, "job", job.Name, "error", err)
	} else {
		job.Status = StatusFinished
		q.logger.DebugContext(ctx, "job finished", "queue", q.name, "job_id", job.ID, "job", job.Name)
	}
	q.metrics.ObserveJob(job.Name, ended.Sub(started), err)

	if err := q.records.Save(ctx, job); err != nil {
		q.logger.WarnContext(ctx, "save finished job", "job_id", job.ID, "error", err)
	}
	for _, h := range q.hooks {
		h(ctx, job)
	}
}

func (q *Queue) run(ctx context.Context, job *Job) (result any, err error) {
	fn, ok := q.handler(job.Name)
	if !ok {
		return nil, fmt.Errorf("run %q: %w", job.Name, ErrUnknownJob)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx, job)
}

func (q *Queue) isClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Close releases the broker, and the record store when it is separate.
// Further calls are no-ops.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	var errs []error
	if err := q.broker.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close broker: %w", err))
	}
	if c, ok := q.records.(io.Closer); ok && any(q.records) != any(q.broker) {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close records: %w", err))
		}
	}
	return errors.Join(errs...)
}
