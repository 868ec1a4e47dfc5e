// Package kvstore persists small per-installation settings (last sync
// timestamps, cursors, feature toggles) as string key-value pairs.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"busybeaver/internal/platform/metrics"
)

// ErrInvalidKey is returned for an empty installation id or key.
var ErrInvalidKey = errors.New("installation id and key are required")

// Store is the persistence port behind the Adapter.
type Store interface {
	Put(ctx context.Context, installationID, key, value string) error
	// Get returns sentinel.ErrNotFound when the key is missing.
	Get(ctx context.Context, installationID, key string) (string, error)
	Delete(ctx context.Context, installationID, key string) error
	Keys(ctx context.Context, installationID string) ([]string, error)
}

// Adapter is what application code and tests talk to.
type Adapter struct {
	store   Store
	metrics *metrics.Metrics
}

// NewAdapter wraps store. metrics may be nil.
func NewAdapter(store Store, m *metrics.Metrics) *Adapter {
	return &Adapter{store: store, metrics: m}
}

func (a *Adapter) Put(ctx context.Context, installationID, key, value string) error {
	if installationID == "" || key == "" {
		return ErrInvalidKey
	}
	a.metrics.IncrementKV("put")
	if err := a.store.Put(ctx, installationID, key, value); err != nil {
		return fmt.Errorf("put %s/%s: %w", installationID, key, err)
	}
	return nil
}

func (a *Adapter) Get(ctx context.Context, installationID, key string) (string, error) {
	if installationID == "" || key == "" {
		return "", ErrInvalidKey
	}
	a.metrics.IncrementKV("get")
	v, err := a.store.Get(ctx, installationID, key)
	if err != nil {
		return "", fmt.Errorf("get %s/%s: %w", installationID, key, err)
	}
	return v, nil
}

func (a *Adapter) Delete(ctx context.Context, installationID, key string) error {
	if installationID == "" || key == "" {
		return ErrInvalidKey
	}
	a.metrics.IncrementKV("delete")
	if err := a.store.Delete(ctx, installationID, key); err != nil {
		return fmt.Errorf("delete %s/%s: %w", installationID, key, err)
	}
	return nil
}

func (a *Adapter) Keys(ctx context.Context, installationID string) ([]string, error) {
	if installationID == "" {
		return nil, ErrInvalidKey
	}
	a.metrics.IncrementKV("keys")
	keys, err := a.store.Keys(ctx, installationID)
	if err != nil {
		return nil, fmt.Errorf("keys %s: %w", installationID, err)
	}
	return keys, nil
}

// PutTime stores t as RFC 3339 in UTC.
func (a *Adapter) PutTime(ctx context.Context, installationID, key string, t time.Time) error {
	return a.Put(ctx, installationID, key, t.UTC().Format(time.RFC3339Nano))
}

// GetTime parses a value written by PutTime.
func (a *Adapter) GetTime(ctx context.Context, installationID, key string) (time.Time, error) {
	v, err := a.Get(ctx, installationID, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("get %s/%s: value %q is not a timestamp: %w", installationID, key, v, err)
	}
	return t, nil
}
