package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"busybeaver/pkg/platform/sentinel"
)

const (
	redisQueueKeyPrefix = "busybeaver:queue:"
	redisJobKeyPrefix   = "busybeaver:job:"
)

// RedisBroker keeps job ids in a Redis list (LPUSH / BRPOP) and job records as
// JSON strings that expire after the configured TTL. It implements Records.
type RedisBroker struct {
	client *redis.Client
	name   string
	ttl    time.Duration
}

// NewRedisBroker returns a broker for the named queue. A zero ttl keeps
// records forever.
func NewRedisBroker(client *redis.Client, name string, ttl time.Duration) *RedisBroker {
	return &RedisBroker{client: client, name: name, ttl: ttl}
}

func (b *RedisBroker) listKey() string {
	return redisQueueKeyPrefix + b.name
}

func jobKey(id string) string {
	return redisJobKeyPrefix + id
}

func (b *RedisBroker) Push(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	pipe := b.client.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), raw, b.ttl)
	pipe.LPush(ctx, b.listKey(), job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push job %s: %w", job.ID, err)
	}
	return nil
}

func (b *RedisBroker) Pop(ctx context.Context, wait time.Duration) (*Job, error) {
	var id string
	if wait <= 0 {
		v, err := b.client.RPop(ctx, b.listKey()).Result()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("pop job: %w", err)
		}
		id = v
	} else {
		// BRPOP replies with [key, value].
		v, err := b.client.BRPop(ctx, wait, b.listKey()).Result()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("pop job: %w", err)
		}
		if len(v) != 2 {
			return nil, fmt.Errorf("pop job: unexpected reply %v", v)
		}
		id = v[1]
	}

	job, err := b.Load(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		// Record expired while queued.
		return nil, nil
	}
	return job, err
}

func (b *RedisBroker) Len(ctx context.Context) (int, error) {
	n, err := b.client.LLen(ctx, b.listKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return int(n), nil
}

func (b *RedisBroker) Purge(ctx context.Context) error {
	if err := b.client.Del(ctx, b.listKey()).Err(); err != nil {
		return fmt.Errorf("purge queue %s: %w", b.name, err)
	}
	return nil
}

func (b *RedisBroker) Save(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := b.client.Set(ctx, jobKey(job.ID), raw, b.ttl).Err(); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func (b *RedisBroker) Load(ctx context.Context, id string) (*Job, error) {
	raw, err := b.client.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	return decodeJob(raw)
}

// Close is a no-op; the client is owned by the caller.
func (b *RedisBroker) Close() error {
	return nil
}
