package app

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"busybeaver/internal/platform/config"
	"busybeaver/internal/platform/logger"
	"busybeaver/internal/queue"
	"busybeaver/pkg/requestcontext"
	"busybeaver/pkg/testutil"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("BUSYBEAVER_DATABASE_URL", "")
	t.Setenv("BUSYBEAVER_REDIS_URL", "")
	return config.ForTesting()
}

func newTestApp(t *testing.T, mutate ...func(*config.Config)) *App {
	t.Helper()
	cfg := testConfig(t)
	for _, m := range mutate {
		m(&cfg)
	}
	a, err := New(context.Background(), cfg, WithLogger(logger.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

type AppContextSuite struct {
	suite.Suite
	app *App
}

func TestAppContextSuite(t *testing.T) {
	suite.Run(t, new(AppContextSuite))
}

func (s *AppContextSuite) SetupTest() {
	s.app = newTestApp(s.T())
}

func (s *AppContextSuite) TestPushCarriesTheApp() {
	ac := s.app.AppContext(context.Background())
	ctx := ac.Push()

	got, ok := FromContext(ctx)
	s.Require().True(ok)
	s.Same(s.app, got)
	s.Equal(1, s.app.Pushed())

	s.Require().NoError(ac.Pop())
	s.Zero(s.app.Pushed())
}

func (s *AppContextSuite) TestPopTwiceFails() {
	ac := s.app.AppContext(context.Background())
	ac.Push()
	s.Require().NoError(ac.Pop())

	s.ErrorIs(ac.Pop(), ErrContextNotPushed)
}

func (s *AppContextSuite) TestPopOutOfOrderFails() {
	outer := s.app.AppContext(context.Background())
	inner := s.app.AppContext(context.Background())
	outer.Push()
	inner.Push()

	s.ErrorIs(outer.Pop(), ErrContextPopOrder)
	s.Require().NoError(inner.Pop())
	s.Require().NoError(outer.Pop())
}

func (s *AppContextSuite) TestJobsNeedAnAppContext() {
	payload := RecordSyncPayload{InstallationID: "inst-1"}

	job, err := s.app.Queue().Enqueue(context.Background(), JobRecordSync, payload)
	s.Require().NoError(err)
	s.Equal(queue.StatusFailed, job.Status)
	s.Contains(job.Error, ErrNoAppContext.Error())

	ac := s.app.AppContext(context.Background())
	ctx := ac.Push()
	defer func() { s.NoError(ac.Pop()) }()

	fixed := time.Date(2019, 10, 18, 9, 30, 0, 0, time.UTC)
	job, err = s.app.Queue().Enqueue(requestcontext.WithTime(ctx, fixed), JobRecordSync, payload)
	s.Require().NoError(err)
	s.Equal(queue.StatusFinished, job.Status)

	got, err := s.app.KV().GetTime(ctx, "inst-1", "last_sync")
	s.Require().NoError(err)
	s.True(fixed.Equal(got))
}

func TestNewWithoutDatabase(t *testing.T) {
	a := newTestApp(t)

	assert.Nil(t, a.DB())
	assert.Nil(t, a.Audit())
	assert.True(t, a.Testing())
	assert.False(t, a.Queue().Async())
	assert.Equal(t, []string{JobRecordSync, "notify.post_message"}, a.Queue().Registered())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Queue.Backend = "sqs"

	_, err := New(context.Background(), cfg, WithLogger(logger.Discard()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestHandlerServesKV(t *testing.T) {
	a := newTestApp(t)
	h := a.Handler()

	rr := testutil.DoRequest(h, testutil.NewJSONRequest(t, http.MethodPut, "/api/installations/inst-1/kv/cursor", map[string]string{"value": "42"}))
	testutil.AssertStatusOK(t, rr)

	rr = testutil.DoRequest(h, testutil.NewRequest(t, http.MethodGet, "/api/installations/inst-1/kv/cursor"))
	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "value", "42")

	rr = testutil.DoRequest(h, testutil.NewRequest(t, http.MethodGet, "/readyz"))
	testutil.AssertStatusOK(t, rr)
}

func TestHandlerRunsJobsWithTheApp(t *testing.T) {
	a := newTestApp(t)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/api/jobs", map[string]any{
		"name":    JobRecordSync,
		"payload": RecordSyncPayload{InstallationID: "inst-2"},
	})
	rr := testutil.DoRequest(a.Handler(), req)

	testutil.AssertStatus(t, rr, http.StatusAccepted)
	job := testutil.UnmarshalResponse[queue.Job](t, rr)
	assert.Equal(t, queue.StatusFinished, job.Status, job.Error)
}

func TestSigningKeyProtectsAPI(t *testing.T) {
	open := newTestApp(t)
	_, err := open.IssueToken("ops", time.Minute)
	require.Error(t, err)

	a := newTestApp(t, func(c *config.Config) { c.Server.SigningKey = "test-signing-key" })

	rr := testutil.DoRequest(a.Handler(), testutil.NewRequest(t, http.MethodGet, "/api/installations/i/kv"))
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)

	token, err := a.IssueToken("ops", time.Minute)
	require.NoError(t, err)
	req := testutil.WithBearer(testutil.NewRequest(t, http.MethodGet, "/api/installations/i/kv"), token)
	rr = testutil.DoRequest(a.Handler(), req)
	testutil.AssertStatusOK(t, rr)
}

func TestShutdownIsIdempotent(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, a.Shutdown(ctx))
	require.NoError(t, a.Shutdown(ctx))

	_, err := a.Queue().Enqueue(ctx, JobRecordSync, nil)
	assert.ErrorIs(t, err, queue.ErrClosed)
}
