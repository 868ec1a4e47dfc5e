package fixtures

import (
	"context"
	"strings"
	"testing"

	"busybeaver/internal/kvstore"
	"busybeaver/internal/platform/database"
)

// Session returns the database session for the running test. The first call
// in a test checks out a connection, begins a transaction and binds it to
// the module database, so every statement the app runs lands in it. When the
// test ends the transaction is rolled back, the connection released and the
// binding removed. Later calls in the same test return the same session.
//
// A subtest whose parent (or any ancestor) holds a session gets that session,
// so its writes are visible to the parent and are rolled back with it.
func (m *Module) Session(tb testing.TB) *database.Session {
	tb.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessionFor(tb); ok {
		return s
	}
	db, err := m.loadDB()
	if err != nil {
		fail(tb, "session", err)
		return nil
	}
	s, err := db.NewSession(context.Background())
	if err != nil {
		fail(tb, "session", err)
		return nil
	}
	m.sessions[tb] = s

	tb.Cleanup(func() {
		m.mu.Lock()
		delete(m.sessions, tb)
		m.mu.Unlock()
		if err := s.Close(); err != nil {
			tb.Errorf("fixture session teardown: %v", err)
		}
	})
	return s
}

func (m *Module) sessionFor(tb testing.TB) (*database.Session, bool) {
	if s, ok := m.sessions[tb]; ok {
		return s, true
	}
	name := tb.Name()
	for owner, s := range m.sessions {
		if strings.HasPrefix(name, owner.Name()+"/") {
			return s, true
		}
	}
	return nil, false
}

// KVStore returns a key-value adapter whose reads and writes go through the
// test's session.
func (m *Module) KVStore(tb testing.TB) *kvstore.Adapter {
	tb.Helper()
	if m.Session(tb) == nil {
		return nil
	}
	return kvstore.NewAdapter(kvstore.NewPostgresStore(m.DB(tb)), m.App(tb).Metrics())
}
