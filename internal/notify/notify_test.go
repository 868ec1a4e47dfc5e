package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"busybeaver/internal/platform/config"
	"busybeaver/internal/platform/logger"
	"busybeaver/internal/queue"
	"busybeaver/pkg/testutil/vcr"
)

func TestPostMessage(t *testing.T) {
	var got Message
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"ts":"123.456"}`))
	}))
	defer srv.Close()

	c := New(config.NotifyConfig{WebhookURL: srv.URL, Token: "t0ken"}, srv.Client())
	ts, err := c.PostMessage(context.Background(), Message{Channel: "#general", Text: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "123.456", ts)
	assert.Equal(t, "Bearer t0ken", auth)
	assert.Equal(t, Message{Channel: "#general", Text: "hi"}, got)
}

func TestPostMessageErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	t.Run("non-2xx status", func(t *testing.T) {
		c := New(config.NotifyConfig{WebhookURL: srv.URL}, srv.Client())
		_, err := c.PostMessage(context.Background(), Message{Channel: "#a", Text: "b"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
	})

	t.Run("not configured", func(t *testing.T) {
		c := New(config.NotifyConfig{}, nil)
		_, err := c.PostMessage(context.Background(), Message{Channel: "#a", Text: "b"})
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("empty message", func(t *testing.T) {
		c := New(config.NotifyConfig{WebhookURL: srv.URL}, srv.Client())
		_, err := c.PostMessage(context.Background(), Message{Channel: "#a"})
		assert.Error(t, err)
	})
}

func TestPostMessageFromCassette(t *testing.T) {
	rec, err := vcr.New(t.Name(), vcr.Config{
		FilterHeaders: []vcr.HeaderFilter{{Name: "authorization", Replacement: "DUMMY"}},
		CassetteDir:   "testdata/cassettes",
	})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, rec.Stop()) })

	c := New(config.ForTesting().Notify, rec.GetDefaultClient())

	ts, err := c.PostMessage(context.Background(), Message{Channel: "#general", Text: "Weekly GitHub summary is ready"})
	require.NoError(t, err)
	assert.Equal(t, "1571435200.000100", ts)

	_, err = c.PostMessage(context.Background(), Message{Channel: "#archived", Text: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is_archived")
}

func TestJobHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"ts":"9.9"}`))
	}))
	defer srv.Close()

	q := queue.NewMemory("notify", queue.WithAsync(false), queue.WithLogger(logger.Discard()))
	q.Register(JobPostMessage, JobHandler(New(config.NotifyConfig{WebhookURL: srv.URL}, srv.Client())))

	job, err := q.Enqueue(context.Background(), JobPostMessage, Message{Channel: "#c", Text: "t"})
	require.NoError(t, err)
	assert.Equal(t, queue.StatusFinished, job.Status)
	assert.JSONEq(t, `{"ts":"9.9"}`, string(job.Result))
}
