package fixtures

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"busybeaver/pkg/testutil"
)

// Client drives the application's router in process, the way a real HTTP
// client would, without opening a socket.
type Client struct {
	ctx     context.Context
	handler http.Handler
	header  http.Header
}

func newClient(ctx context.Context, handler http.Handler) *Client {
	return &Client{ctx: ctx, handler: handler, header: http.Header{}}
}

// SetHeader adds a header to every later request, e.g. Authorization.
func (c *Client) SetHeader(key, value string) {
	c.header.Set(key, value)
}

// Do serves req. The request context derives from the module's application
// context.
func (c *Client) Do(req *http.Request) *httptest.ResponseRecorder {
	for k, v := range c.header {
		if req.Header.Get(k) == "" {
			req.Header[k] = append([]string(nil), v...)
		}
	}
	return testutil.DoRequest(c.handler, req.WithContext(c.ctx))
}

func (c *Client) Get(tb testing.TB, path string) *httptest.ResponseRecorder {
	tb.Helper()
	return c.Do(testutil.NewRequest(tb, http.MethodGet, path))
}

func (c *Client) Delete(tb testing.TB, path string) *httptest.ResponseRecorder {
	tb.Helper()
	return c.Do(testutil.NewRequest(tb, http.MethodDelete, path))
}

func (c *Client) PostJSON(tb testing.TB, path string, body any) *httptest.ResponseRecorder {
	tb.Helper()
	return c.Do(testutil.NewJSONRequest(tb, http.MethodPost, path, body))
}

func (c *Client) PutJSON(tb testing.TB, path string, body any) *httptest.ResponseRecorder {
	tb.Helper()
	return c.Do(testutil.NewJSONRequest(tb, http.MethodPut, path, body))
}
