// Package fixtures provides the shared test fixtures: a module-scoped
// application with its HTTP client, database and job queue; a per-test
// database session that is rolled back when the test ends; a key-value store
// bound to that session; and a process-wide VCR configuration.
//
// A test package declares one Module and hands it to Main:
//
//	var mod = fixtures.NewModule(fixtures.Options{Database: true})
//
//	func TestMain(m *testing.M) { os.Exit(fixtures.Main(m, mod)) }
//
// Tests then ask for what they need; anything they need is created first:
//
//	func TestSync(t *testing.T) {
//		kv := mod.KVStore(t) // creates app, db and session on first use
//		...
//	}
//
// Fixtures are not safe for tests that call t.Parallel: a session binds the
// module's database handle for the whole test.
package fixtures

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"busybeaver/internal/app"
	"busybeaver/internal/platform/config"
	"busybeaver/internal/platform/database"
	"busybeaver/internal/platform/logger"
	"busybeaver/internal/queue"
	"busybeaver/pkg/testutil/containers"
)

const setupTimeout = 2 * time.Minute

var errTornDown = errors.New("module already torn down")

// Options configure a Module.
type Options struct {
	// Database gives the app a Postgres database: BUSYBEAVER_DATABASE_URL
	// when set, else the shared test container. Without it DB fails.
	Database bool
	// Schema holds this module's tables. Empty picks a unique name so test
	// binaries running side by side never share tables.
	Schema string
	// Configure adjusts the testing configuration before the app is built.
	Configure func(*config.Config)
}

type teardown struct {
	name string
	fn   func(context.Context) error
}

// Module owns the module-scoped fixtures of one test package. Each fixture
// is created at most once, on first use, and Teardown releases them in
// reverse creation order.
type Module struct {
	opts Options

	mu        sync.Mutex
	app       *app.App
	appCtx    *app.Context
	ctx       context.Context
	client    *Client
	db        *database.DB
	rq        *queue.Queue
	errs      map[string]error
	teardowns []teardown
	torn      bool

	sessions map[testing.TB]*database.Session
}

func NewModule(opts Options) *Module {
	return &Module{
		opts:     opts,
		errs:     make(map[string]error),
		sessions: make(map[testing.TB]*database.Session),
	}
}

// fail reports a setup error on tb, keeping the original error in the chain.
func fail(tb testing.TB, fixture string, err error) {
	tb.Helper()
	tb.Fatalf("%v", fmt.Errorf("fixture %s: %w", fixture, err))
}

// App returns the application, creating it and pushing an application
// context on first use.
func (m *Module) App(tb testing.TB) *app.App {
	tb.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.loadApp()
	if err != nil {
		fail(tb, "app", err)
		return nil
	}
	return a
}

// Context returns the context carrying the pushed application context. Pass
// it to anything that needs the application, such as enqueued jobs.
func (m *Module) Context(tb testing.TB) context.Context {
	tb.Helper()
	if m.App(tb) == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

func (m *Module) loadApp() (*app.App, error) {
	if m.torn {
		return nil, errTornDown
	}
	if m.app != nil {
		return m.app, nil
	}
	if err, ok := m.errs["app"]; ok {
		return nil, err
	}

	a, err := m.createApp()
	if err != nil {
		m.errs["app"] = err
		return nil, err
	}
	m.app = a
	m.appCtx = a.AppContext(context.Background())
	m.ctx = m.appCtx.Push()
	m.addTeardown("app", func(ctx context.Context) error {
		var errs []error
		if err := m.appCtx.Pop(); err != nil {
			errs = append(errs, fmt.Errorf("pop app context: %w", err))
		}
		if err := a.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})
	return a, nil
}

func (m *Module) createApp() (*app.App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	cfg := config.ForTesting()
	if m.opts.Database {
		url, err := postgresURL(ctx)
		if err != nil {
			return nil, err
		}
		cfg.Database.URL = url
		cfg.Database.Schema = m.opts.Schema
		if cfg.Database.Schema == "" {
			cfg.Database.Schema = "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
		}
	} else {
		cfg.Database.URL = ""
	}
	if m.opts.Configure != nil {
		m.opts.Configure(&cfg)
	}
	return app.New(ctx, cfg, app.WithLogger(logger.NewWithWriter(os.Stderr, cfg.Log)))
}

func postgresURL(ctx context.Context) (string, error) {
	if url := os.Getenv("BUSYBEAVER_DATABASE_URL"); url != "" {
		return url, nil
	}
	pg, err := containers.GetManager().Postgres(ctx)
	if err != nil {
		return "", err
	}
	return pg.URL, nil
}

// Client returns the in-process HTTP client for the application.
func (m *Module) Client(tb testing.TB) *Client {
	tb.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.torn {
		fail(tb, "client", errTornDown)
		return nil
	}
	if m.client != nil {
		return m.client
	}
	a, err := m.loadApp()
	if err != nil {
		fail(tb, "client", err)
		return nil
	}
	m.client = newClient(m.ctx, a.Handler())
	return m.client
}

// DB returns the application's database with every table created. The
// tables are dropped at teardown.
func (m *Module) DB(tb testing.TB) *database.DB {
	tb.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	db, err := m.loadDB()
	if err != nil {
		fail(tb, "db", err)
		return nil
	}
	return db
}

func (m *Module) loadDB() (*database.DB, error) {
	if m.torn {
		return nil, errTornDown
	}
	if m.db != nil {
		return m.db, nil
	}
	if err, ok := m.errs["db"]; ok {
		return nil, err
	}
	a, err := m.loadApp()
	if err != nil {
		return nil, err
	}
	db := a.DB()
	if db == nil {
		return nil, errors.New("application has no database; set Options.Database")
	}

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()
	if err := db.CreateAll(ctx); err != nil {
		m.errs["db"] = err
		return nil, err
	}
	m.db = db
	m.addTeardown("db", db.DropAll)
	return db, nil
}

// RQ returns the application's job queue. Queued jobs are dropped at
// teardown.
func (m *Module) RQ(tb testing.TB) *queue.Queue {
	tb.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.torn {
		fail(tb, "rq", errTornDown)
		return nil
	}
	if m.rq != nil {
		return m.rq
	}
	a, err := m.loadApp()
	if err != nil {
		fail(tb, "rq", err)
		return nil
	}
	q := a.Queue()
	m.rq = q
	m.addTeardown("rq", func(ctx context.Context) error {
		if err := q.Empty(ctx); err != nil && !errors.Is(err, errors.ErrUnsupported) && !errors.Is(err, queue.ErrClosed) {
			return err
		}
		return nil
	})
	return q
}

func (m *Module) addTeardown(name string, fn func(context.Context) error) {
	m.teardowns = append(m.teardowns, teardown{name: name, fn: fn})
}

// Teardown releases every fixture in reverse creation order. Every step runs
// even when an earlier one fails; the failures are joined. Later calls do
// nothing.
func (m *Module) Teardown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.torn {
		return nil
	}
	m.torn = true

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	var errs []error
	for i := len(m.teardowns) - 1; i >= 0; i-- {
		td := m.teardowns[i]
		if err := td.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("teardown %s: %w", td.name, err))
		}
	}
	m.teardowns = nil
	return errors.Join(errs...)
}
