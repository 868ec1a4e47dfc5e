package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInstancesDoNotShareRegistries(t *testing.T) {
	a := New()
	b := New()

	a.IncrementJobsEnqueued("notify.post_message")

	assert.Equal(t, 1.0, testutil.ToFloat64(a.JobsEnqueued.WithLabelValues("notify.post_message")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.JobsEnqueued.WithLabelValues("notify.post_message")))
}

func TestObserveJob(t *testing.T) {
	m := New()

	m.ObserveJob("echo", 10*time.Millisecond, nil)
	m.ObserveJob("echo", 10*time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsProcessed.WithLabelValues("echo")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsFailed.WithLabelValues("echo")))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementJobsEnqueued("x")
		m.ObserveJob("x", time.Second, nil)
		m.IncrementKV("get")
		m.ObserveHTTP("GET", "/", "200", time.Second)
	})
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.IncrementKV("put")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `busybeaver_kv_operations_total{op="put"} 1`)
}
