package queue

import (
	"context"
	"sync"
	"time"

	"busybeaver/pkg/platform/sentinel"
)

// MemoryBroker is a FIFO in process memory. It also implements Records.
type MemoryBroker struct {
	mu      sync.Mutex
	pending []*Job
	records map[string]*Job
	notify  chan struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		records: make(map[string]*Job),
		notify:  make(chan struct{}, 1),
	}
}

func (b *MemoryBroker) Push(_ context.Context, job *Job) error {
	c, err := cloneJob(job)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.pending = append(b.pending, c)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return nil
}

func (b *MemoryBroker) Pop(ctx context.Context, wait time.Duration) (*Job, error) {
	var timer <-chan time.Time
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		timer = t.C
	}
	for {
		b.mu.Lock()
		if len(b.pending) > 0 {
			job := b.pending[0]
			b.pending[0] = nil
			b.pending = b.pending[1:]
			b.mu.Unlock()
			return job, nil
		}
		b.mu.Unlock()

		if wait <= 0 {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer:
			return nil, nil
		case <-b.notify:
		}
	}
}

func (b *MemoryBroker) Len(_ context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending), nil
}

func (b *MemoryBroker) Purge(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
	return nil
}

func (b *MemoryBroker) Save(_ context.Context, job *Job) error {
	c, err := cloneJob(job)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[c.ID] = c
	return nil
}

func (b *MemoryBroker) Load(_ context.Context, id string) (*Job, error) {
	b.mu.Lock()
	job, ok := b.records[id]
	b.mu.Unlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneJob(job)
}

// Close is a no-op for the memory broker.
func (b *MemoryBroker) Close() error {
	return nil
}
