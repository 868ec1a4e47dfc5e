package httptransport

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"busybeaver/internal/kvstore"
	"busybeaver/internal/platform/logger"
	"busybeaver/internal/transport/http/mocks"
	"busybeaver/pkg/platform/sentinel"
	"busybeaver/pkg/testutil"
)

//go:generate mockgen -source=handlers_kv.go -destination=mocks/kv-mocks.go -package=mocks KVService

func newKVRouter(t *testing.T) (http.Handler, *mocks.MockKVService) {
	ctrl := gomock.NewController(t)
	kv := mocks.NewMockKVService(ctrl)
	return NewRouter(RouterConfig{KV: kv, Logger: logger.Discard()}), kv
}

func TestKVHandler_Put(t *testing.T) {
	t.Run("stores the value", func(t *testing.T) {
		router, kv := newKVRouter(t)
		kv.EXPECT().Put(gomock.Any(), "inst-1", "last_sync", "2019-10-18").Return(nil)

		req := testutil.NewJSONRequest(t, http.MethodPut, "/api/installations/inst-1/kv/last_sync", map[string]string{"value": "2019-10-18"})
		rr := testutil.DoRequest(router, req)

		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "value", "2019-10-18")
	})

	t.Run("missing value is a bad request", func(t *testing.T) {
		router, _ := newKVRouter(t)

		req := testutil.NewRequestWithBody(t, http.MethodPut, "/api/installations/inst-1/kv/k", `{}`)
		rr := testutil.DoRequest(router, req)

		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
	})

	t.Run("store failure hides details", func(t *testing.T) {
		router, kv := newKVRouter(t)
		kv.EXPECT().Put(gomock.Any(), "inst-1", "k", "v").Return(errors.New("connection reset"))

		req := testutil.NewJSONRequest(t, http.MethodPut, "/api/installations/inst-1/kv/k", map[string]string{"value": "v"})
		rr := testutil.DoRequest(router, req)

		testutil.AssertStatus(t, rr, http.StatusInternalServerError)
		assert.NotContains(t, rr.Body.String(), "connection reset")
	})
}

func TestKVHandler_Get(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		router, kv := newKVRouter(t)
		kv.EXPECT().Get(gomock.Any(), "inst-1", "cursor").Return("abc", nil)

		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/api/installations/inst-1/kv/cursor"))

		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "value", "abc")
	})

	t.Run("missing key", func(t *testing.T) {
		router, kv := newKVRouter(t)
		kv.EXPECT().Get(gomock.Any(), "inst-1", "cursor").
			Return("", fmt.Errorf("get inst-1/cursor: %w", sentinel.ErrNotFound))

		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/api/installations/inst-1/kv/cursor"))

		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
	})

	t.Run("invalid key", func(t *testing.T) {
		router, kv := newKVRouter(t)
		kv.EXPECT().Get(gomock.Any(), "inst-1", "cursor").Return("", kvstore.ErrInvalidKey)

		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/api/installations/inst-1/kv/cursor"))

		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
	})
}

func TestKVHandler_DeleteAndKeys(t *testing.T) {
	router, kv := newKVRouter(t)
	gomock.InOrder(
		kv.EXPECT().Delete(gomock.Any(), "inst-1", "k").Return(nil),
		kv.EXPECT().Keys(gomock.Any(), "inst-1").Return(nil, nil),
	)

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodDelete, "/api/installations/inst-1/kv/k"))
	testutil.AssertStatus(t, rr, http.StatusNoContent)

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/api/installations/inst-1/kv"))
	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "keys", []any{})
}
