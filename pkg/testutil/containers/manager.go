// Package containers starts throwaway Postgres, Redis and Redpanda instances
// for tests. Containers are shared per test binary through a singleton
// Manager and reaped by Ryuk when the process exits.
package containers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

const startupTimeout = 2 * time.Minute

// Manager lazily starts one container of each kind per process.
type Manager struct {
	mu       sync.Mutex
	postgres *PostgresContainer
	redis    *RedisContainer
	redpanda *RedpandaContainer
}

var (
	manager     *Manager
	managerOnce sync.Once
)

// GetManager returns the process-wide manager.
func GetManager() *Manager {
	managerOnce.Do(func() {
		manager = &Manager{}
	})
	return manager
}

// Postgres returns the shared Postgres container, starting it on first use.
func (m *Manager) Postgres(ctx context.Context) (*PostgresContainer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.postgres != nil {
		return m.postgres, nil
	}
	pg, err := StartPostgres(ctx)
	if err != nil {
		return nil, err
	}
	m.postgres = pg
	return pg, nil
}

// Redis returns the shared Redis container, starting it on first use.
func (m *Manager) Redis(ctx context.Context) (*RedisContainer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redis != nil {
		return m.redis, nil
	}
	rc, err := StartRedis(ctx)
	if err != nil {
		return nil, err
	}
	m.redis = rc
	return rc, nil
}

// Redpanda returns the shared Redpanda container, starting it on first use.
func (m *Manager) Redpanda(ctx context.Context) (*RedpandaContainer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redpanda != nil {
		return m.redpanda, nil
	}
	rp, err := StartRedpanda(ctx)
	if err != nil {
		return nil, err
	}
	m.redpanda = rp
	return rp, nil
}

// GetPostgres is Postgres for tests, failing t on error.
func (m *Manager) GetPostgres(t testing.TB) *PostgresContainer {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	pg, err := m.Postgres(ctx)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	return pg
}

// GetRedis is Redis for tests, failing t on error.
func (m *Manager) GetRedis(t testing.TB) *RedisContainer {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	rc, err := m.Redis(ctx)
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	return rc
}

// GetRedpanda is Redpanda for tests, failing t on error.
func (m *Manager) GetRedpanda(t testing.TB) *RedpandaContainer {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	rp, err := m.Redpanda(ctx)
	if err != nil {
		t.Fatalf("failed to start redpanda container: %v", err)
	}
	return rp
}

// Terminate stops every container the manager started. Ryuk would reap them
// anyway; this just makes TestMain exits prompt.
func (m *Manager) Terminate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if m.postgres != nil {
		errs = append(errs, m.postgres.Terminate(ctx))
		m.postgres = nil
	}
	if m.redis != nil {
		errs = append(errs, m.redis.Terminate(ctx))
		m.redis = nil
	}
	if m.redpanda != nil {
		errs = append(errs, m.redpanda.Terminate(ctx))
		m.redpanda = nil
	}
	return errors.Join(errs...)
}
