package fixtures

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"busybeaver/internal/app"
	"busybeaver/internal/notify"
	"busybeaver/internal/platform/config"
	"busybeaver/internal/platform/database"
	"busybeaver/internal/queue"
	"busybeaver/pkg/testutil"
	"busybeaver/pkg/testutil/vcr"
)

// recordingTB captures Fatalf instead of stopping the test, so setup
// failures can be asserted on.
type recordingTB struct {
	testing.TB
	fatal string
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Fatalf(format string, args ...any) {
	r.fatal = fmt.Sprintf(format, args...)
}

func newTestModule(t *testing.T, configure ...func(*config.Config)) *Module {
	t.Helper()
	t.Setenv("BUSYBEAVER_DATABASE_URL", "")
	m := NewModule(Options{Configure: func(cfg *config.Config) {
		cfg.Redis.URL = ""
		for _, fn := range configure {
			fn(cfg)
		}
	}})
	t.Cleanup(func() { assert.NoError(t, m.Teardown()) })
	return m
}

func TestAppIsCreatedOnceAndPushed(t *testing.T) {
	m := newTestModule(t)

	testutil.Given(t, "a fresh module", func(t *testing.T) {
		first := m.App(t)
		require.NotNil(t, first)

		testutil.Then(t, "later calls return the same app", func(t *testing.T) {
			assert.Same(t, first, m.App(t))
		})
		testutil.And(t, "its context is pushed", func(t *testing.T) {
			current, ok := app.FromContext(m.Context(t))
			require.True(t, ok)
			assert.Same(t, first, current)
			assert.Equal(t, 1, first.Pushed())
			assert.True(t, first.Testing())
		})
	})
}

func TestTeardownPopsContextOnce(t *testing.T) {
	t.Setenv("BUSYBEAVER_DATABASE_URL", "")
	m := NewModule(Options{Configure: func(cfg *config.Config) { cfg.Redis.URL = "" }})
	a := m.App(t)

	require.NoError(t, m.Teardown())
	assert.Equal(t, 0, a.Pushed())
	assert.NoError(t, m.Teardown(), "second teardown is a no-op")

	rec := &recordingTB{TB: t}
	assert.Nil(t, m.App(rec))
	assert.Contains(t, rec.fatal, "torn down")
}

func TestAppSetupErrorIsCached(t *testing.T) {
	calls := 0
	m := newTestModule(t, func(cfg *config.Config) {
		calls++
		cfg.Queue.Backend = "sqs"
	})

	for range 2 {
		rec := &recordingTB{TB: t}
		assert.Nil(t, m.App(rec))
		assert.Contains(t, rec.fatal, "fixture app")
		assert.Contains(t, rec.fatal, "unknown queue backend")
	}
	assert.Equal(t, 1, calls)
}

func TestDBWithoutDatabaseFails(t *testing.T) {
	m := newTestModule(t)

	rec := &recordingTB{TB: t}
	assert.Nil(t, m.DB(rec))
	assert.Contains(t, rec.fatal, "fixture db")
	assert.Contains(t, rec.fatal, "Options.Database")

	rec = &recordingTB{TB: t}
	assert.Nil(t, m.Session(rec))
	assert.Contains(t, rec.fatal, "fixture session")
}

func TestClientServesTheApp(t *testing.T) {
	m := newTestModule(t)
	client := m.Client(t)
	assert.Same(t, client, m.Client(t))

	rr := client.Get(t, "/healthz")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, string(testutil.ReadBody(t, rr)))

	rr = client.PutJSON(t, "/api/installations/inst-1/kv/channel", map[string]string{"value": "#general"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = client.Get(t, "/api/installations/inst-1/kv/channel")
	require.Equal(t, http.StatusOK, rr.Code)
	body := testutil.UnmarshalResponse[map[string]string](t, rr)
	assert.Equal(t, "#general", (*body)["value"])

	rr = client.Delete(t, "/api/installations/inst-1/kv/channel")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestRQRunsJobsInline(t *testing.T) {
	m := newTestModule(t)
	q := m.RQ(t)
	require.False(t, q.Async())
	assert.Same(t, q, m.App(t).Queue())

	job, err := q.Enqueue(m.Context(t), app.JobRecordSync, app.RecordSyncPayload{InstallationID: "inst-9"})
	require.NoError(t, err)
	assert.Equal(t, queue.StatusFinished, job.Status, job.Error)

	_, err = m.App(t).KV().GetTime(m.Context(t), "inst-9", "last_sync")
	assert.NoError(t, err)
}

func TestRQJobsOverHTTP(t *testing.T) {
	m := newTestModule(t)
	client := m.Client(t)

	rr := client.PostJSON(t, "/api/jobs", map[string]any{
		"name":    app.JobRecordSync,
		"payload": map[string]string{"installation_id": "inst-2", "key": "weekly"},
	})
	require.Equal(t, http.StatusAccepted, rr.Code)
	job := testutil.UnmarshalResponse[queue.Job](t, rr)
	assert.Equal(t, queue.StatusFinished, job.Status)

	rr = client.Get(t, "/api/jobs/"+job.ID)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestTeardownRunsInReverseAndJoinsErrors(t *testing.T) {
	m := NewModule(Options{})
	var order []string
	errFirst := errors.New("first broke")
	errThird := errors.New("third broke")

	m.addTeardown("first", func(context.Context) error { order = append(order, "first"); return errFirst })
	m.addTeardown("second", func(context.Context) error { order = append(order, "second"); return nil })
	m.addTeardown("third", func(context.Context) error { order = append(order, "third"); return errThird })

	err := m.Teardown()
	require.Error(t, err)
	assert.ErrorIs(t, err, errFirst)
	assert.ErrorIs(t, err, errThird)
	assert.Contains(t, err.Error(), "teardown first")
	assert.Equal(t, []string{"third", "second", "first"}, order)

	assert.NoError(t, m.Teardown())
	assert.Len(t, order, 3)
}

func TestVCRConfig(t *testing.T) {
	t.Setenv("BUSYBEAVER_VCR_MODE", "")
	cfg := VCRConfig()

	require.Len(t, cfg.FilterHeaders, 1)
	assert.Equal(t, "authorization", cfg.FilterHeaders[0].Name)
	assert.Equal(t, "DUMMY", cfg.FilterHeaders[0].Replacement)
	assert.Equal(t, "testdata/cassettes", cfg.CassetteDir)

	cfg.FilterHeaders[0].Replacement = "changed"
	assert.Equal(t, "DUMMY", VCRConfig().FilterHeaders[0].Replacement, "callers get a copy")
}

func TestCassetteReplaysWebhook(t *testing.T) {
	if VCRConfig().Mode != vcr.ModeReplay {
		t.Skip("cassette assertions only hold in replay mode")
	}
	m := newTestModule(t)
	rec := Cassette(t)
	require.False(t, rec.IsRecording())

	client := notify.New(m.App(t).Config().Notify, rec.GetDefaultClient())
	ts, err := client.PostMessage(m.Context(t), notify.Message{Channel: "#fixtures", Text: "cassette"})
	require.NoError(t, err)
	assert.Equal(t, "1571435299.000200", ts)
}

func TestFixturesRefuseAfterTeardown(t *testing.T) {
	m := newTestModule(t)
	m.Client(t)
	m.RQ(t)
	require.NoError(t, m.Teardown())

	for name, get := range map[string]func(testing.TB) any{
		"client": func(tb testing.TB) any { return m.Client(tb) },
		"db":     func(tb testing.TB) any { return m.DB(tb) },
		"rq":     func(tb testing.TB) any { return m.RQ(tb) },
	} {
		rec := &recordingTB{TB: t}
		get(rec)
		assert.Contains(t, rec.fatal, "fixture "+name, name)
		assert.Contains(t, rec.fatal, "torn down", name)
	}
}

type namedTB struct {
	testing.TB
	name string
}

func (n namedTB) Name() string { return n.name }

func TestSessionForResolvesAncestors(t *testing.T) {
	m := NewModule(Options{})
	parent := namedTB{TB: t, name: "TestSync"}
	held := &database.Session{}
	m.sessions[parent] = held

	got, ok := m.sessionFor(parent)
	require.True(t, ok)
	assert.Same(t, held, got)

	got, ok = m.sessionFor(namedTB{TB: t, name: "TestSync/child/grandchild"})
	require.True(t, ok)
	assert.Same(t, held, got)

	_, ok = m.sessionFor(namedTB{TB: t, name: "TestSyncLater"})
	assert.False(t, ok, "a name prefix alone is not an ancestor")
}

func TestFinishFailsRunOnTeardownError(t *testing.T) {
	terminated := 0
	orig := terminateContainers
	terminateContainers = func(context.Context) error { terminated++; return nil }
	t.Cleanup(func() { terminateContainers = orig })

	broken := NewModule(Options{})
	broken.addTeardown("db", func(context.Context) error { return errors.New("drop schema: boom") })

	var stderr bytes.Buffer
	assert.Equal(t, 1, finish(0, broken, &stderr))
	assert.Contains(t, stderr.String(), "teardown db: drop schema: boom")

	assert.Equal(t, 0, finish(0, NewModule(Options{}), io.Discard))
	assert.Equal(t, 3, finish(3, NewModule(Options{}), io.Discard), "a failing run keeps its code")
	assert.Equal(t, 3, terminated)
}

func TestFinishFailsRunOnContainerError(t *testing.T) {
	orig := terminateContainers
	terminateContainers = func(context.Context) error { return errors.New("terminate postgres: gone") }
	t.Cleanup(func() { terminateContainers = orig })

	var stderr bytes.Buffer
	assert.Equal(t, 1, finish(0, NewModule(Options{}), &stderr))
	assert.Contains(t, stderr.String(), "terminate postgres")
}
