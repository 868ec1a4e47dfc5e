package kvstore

import (
	"context"
	"sort"
	"sync"

	"busybeaver/pkg/platform/sentinel"
)

// InMemoryStore keeps pairs in process memory.
type InMemoryStore struct {
	mu    sync.RWMutex
	items map[string]map[string]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{items: make(map[string]map[string]string)}
}

func (s *InMemoryStore) Put(_ context.Context, installationID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items[installationID] == nil {
		s.items[installationID] = make(map[string]string)
	}
	s.items[installationID][key] = value
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, installationID, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[installationID][key]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return v, nil
}

func (s *InMemoryStore) Delete(_ context.Context, installationID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[installationID][key]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.items[installationID], key)
	return nil
}

func (s *InMemoryStore) Keys(_ context.Context, installationID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.items[installationID]))
	for k := range s.items[installationID] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
