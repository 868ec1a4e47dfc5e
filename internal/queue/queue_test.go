package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"busybeaver/internal/platform/logger"
	"busybeaver/internal/platform/metrics"
	"busybeaver/pkg/platform/sentinel"
)

type greeting struct {
	Name string `json:"name"`
}

func greet(_ context.Context, job *Job) (any, error) {
	var g greeting
	if err := job.Decode(&g); err != nil {
		return nil, err
	}
	return map[string]string{"text": "hello " + g.Name}, nil
}

type QueueSuite struct {
	suite.Suite
	ctx     context.Context
	metrics *metrics.Metrics
}

func TestQueueSuite(t *testing.T) {
	suite.Run(t, new(QueueSuite))
}

func (s *QueueSuite) SetupTest() {
	s.ctx = context.Background()
	s.metrics = metrics.New()
}

func (s *QueueSuite) newQueue(async bool, opts ...Option) *Queue {
	opts = append([]Option{WithAsync(async), WithMetrics(s.metrics), WithLogger(logger.Discard())}, opts...)
	q := NewMemory("test", opts...)
	q.Register("greet", greet)
	q.Register("explode", func(context.Context, *Job) (any, error) {
		return nil, errors.New("boom")
	})
	q.Register("panic", func(context.Context, *Job) (any, error) {
		panic("kaboom")
	})
	s.T().Cleanup(func() { _ = q.Close() })
	return q
}

func (s *QueueSuite) TestSynchronousEnqueue() {
	s.Run("runs the job before returning", func() {
		q := s.newQueue(false)

		job, err := q.Enqueue(s.ctx, "greet", greeting{Name: "beaver"})
		s.Require().NoError(err)

		s.Equal(StatusFinished, job.Status)
		s.JSONEq(`{"text":"hello beaver"}`, string(job.Result))
		s.NotNil(job.StartedAt)
		s.NotNil(job.EndedAt)

		stored, err := q.Job(s.ctx, job.ID)
		s.Require().NoError(err)
		s.Equal(StatusFinished, stored.Status)

		n, err := q.Len(s.ctx)
		s.Require().NoError(err)
		s.Zero(n)
	})

	s.Run("handler error marks the job failed", func() {
		q := s.newQueue(false)

		job, err := q.Enqueue(s.ctx, "explode", nil)
		s.Require().NoError(err)

		s.Equal(StatusFailed, job.Status)
		s.Equal("boom", job.Error)
	})

	s.Run("panics are recovered", func() {
		q := s.newQueue(false)

		job, err := q.Enqueue(s.ctx, "panic", nil)
		s.Require().NoError(err)

		s.Equal(StatusFailed, job.Status)
		s.Contains(job.Error, "kaboom")
	})
}

func (s *QueueSuite) TestAsynchronousEnqueue() {
	s.Run("jobs wait for burst", func() {
		q := s.newQueue(true)

		first, err := q.Enqueue(s.ctx, "greet", greeting{Name: "a"})
		s.Require().NoError(err)
		_, err = q.Enqueue(s.ctx, "greet", greeting{Name: "b"})
		s.Require().NoError(err)

		s.Equal(StatusQueued, first.Status)
		n, err := q.Len(s.ctx)
		s.Require().NoError(err)
		s.Equal(2, n)

		processed, err := q.Burst(s.ctx)
		s.Require().NoError(err)
		s.Equal(2, processed)

		stored, err := q.Job(s.ctx, first.ID)
		s.Require().NoError(err)
		s.Equal(StatusFinished, stored.Status)
		s.JSONEq(`{"text":"hello a"}`, string(stored.Result))
	})

	s.Run("empty drops queued jobs", func() {
		q := s.newQueue(true)

		_, err := q.Enqueue(s.ctx, "greet", greeting{Name: "a"})
		s.Require().NoError(err)
		s.Require().NoError(q.Empty(s.ctx))

		processed, err := q.Burst(s.ctx)
		s.Require().NoError(err)
		s.Zero(processed)
	})
}

func (s *QueueSuite) TestEnqueueRejections() {
	s.Run("unknown job name", func() {
		q := s.newQueue(false)

		_, err := q.Enqueue(s.ctx, "nope", nil)
		s.ErrorIs(err, ErrUnknownJob)
	})

	s.Run("invalid raw payload", func() {
		q := s.newQueue(false)

		_, err := q.Enqueue(s.ctx, "greet", []byte("{not json"))
		s.Error(err)
	})

	s.Run("closed queue", func() {
		q := s.newQueue(false)
		s.Require().NoError(q.Close())
		s.Require().NoError(q.Close())

		_, err := q.Enqueue(s.ctx, "greet", greeting{Name: "a"})
		s.ErrorIs(err, ErrClosed)
	})
}

func (s *QueueSuite) TestUnknownJobID() {
	q := s.newQueue(false)

	_, err := q.Job(s.ctx, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *QueueSuite) TestHooksAndMetrics() {
	var seen atomic.Int32
	q := s.newQueue(false, WithHook(func(_ context.Context, job *Job) {
		if job.Done() {
			seen.Add(1)
		}
	}))

	_, err := q.Enqueue(s.ctx, "greet", greeting{Name: "a"})
	s.Require().NoError(err)
	_, err = q.Enqueue(s.ctx, "explode", nil)
	s.Require().NoError(err)

	s.Equal(int32(2), seen.Load())
	s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.JobsEnqueued.WithLabelValues("greet")))
	s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.JobsProcessed.WithLabelValues("greet")))
	s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.JobsFailed.WithLabelValues("explode")))
}

func TestNewRequiresRecords(t *testing.T) {
	_, err := New("q", nil, nil)
	require.Error(t, err)

	q, err := New("q", NewMemoryBroker(), nil)
	require.NoError(t, err)
	assert.Equal(t, "q", q.Name())
	assert.True(t, q.Async())
}

func TestRegistered(t *testing.T) {
	q := NewMemory("q")
	q.Register("b", greet)
	q.Register("a", greet)

	assert.Equal(t, []string{"a", "b"}, q.Registered())
}

func TestWorkerProcessesJobsUntilCancelled(t *testing.T) {
	q := NewMemory("worker", WithLogger(logger.Discard()))
	var calls atomic.Int32
	q.Register("count", func(context.Context, *Job) (any, error) {
		calls.Add(1)
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(q, WithConcurrency(3), WithPollWait(20*time.Millisecond))
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	var ids []string
	for i := 0; i < 5; i++ {
		job, err := q.Enqueue(context.Background(), "count", nil)
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	require.Eventually(t, func() bool {
		return calls.Load() == 5
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	for _, id := range ids {
		job, err := q.Job(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, StatusFinished, job.Status)
	}
}

func TestMemoryBrokerPopWaits(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	job, err := b.Pop(ctx, 0)
	require.NoError(t, err)
	assert.Nil(t, job)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = b.Push(ctx, &Job{ID: "late", Name: "x"})
	}()

	job, err = b.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "late", job.ID)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = b.Pop(cancelled, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
