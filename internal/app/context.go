package app

import (
	"context"
	"errors"
	"fmt"

	"busybeaver/internal/queue"
)

var (
	// ErrNoAppContext is returned by work that needs the application but runs
	// outside a pushed application context.
	ErrNoAppContext = errors.New("working outside of application context")
	// ErrContextNotPushed is returned when popping a context that is not on
	// the stack.
	ErrContextNotPushed = errors.New("app context is not pushed")
	// ErrContextPopOrder is returned when popping anything but the top
	// context.
	ErrContextPopOrder = errors.New("popped wrong app context")
)

type appKey struct{}

// Context makes the application current for everything that runs with the
// context.Context returned by Push.
type Context struct {
	app    *App
	parent context.Context
}

// AppContext creates an application context. Nothing is current until Push.
func (a *App) AppContext(parent context.Context) *Context {
	if parent == nil {
		parent = context.Background()
	}
	return &Context{app: a, parent: parent}
}

// Push makes the application current and returns the context that carries it.
func (c *Context) Push() context.Context {
	c.app.ctxMu.Lock()
	c.app.stack = append(c.app.stack, c)
	c.app.ctxMu.Unlock()
	return context.WithValue(c.parent, appKey{}, c.app)
}

// Pop removes c, which must be the most recently pushed context.
func (c *Context) Pop() error {
	a := c.app
	a.ctxMu.Lock()
	defer a.ctxMu.Unlock()

	n := len(a.stack)
	if n > 0 && a.stack[n-1] == c {
		a.stack[n-1] = nil
		a.stack = a.stack[:n-1]
		return nil
	}
	for _, pushed := range a.stack {
		if pushed == c {
			return fmt.Errorf("%w: another context was pushed after it", ErrContextPopOrder)
		}
	}
	return ErrContextNotPushed
}

// Pushed reports how many application contexts are on the stack.
func (a *App) Pushed() int {
	a.ctxMu.Lock()
	defer a.ctxMu.Unlock()
	return len(a.stack)
}

// FromContext returns the application carried by ctx.
func FromContext(ctx context.Context) (*App, bool) {
	a, ok := ctx.Value(appKey{}).(*App)
	return a, ok
}

// withApp attaches the app to an incoming request context.
func (a *App) withApp(ctx context.Context) context.Context {
	return context.WithValue(ctx, appKey{}, a)
}

// RequireAppContext wraps a job handler so it fails with ErrNoAppContext
// unless it runs under a pushed application context.
func RequireAppContext(fn queue.HandlerFunc) queue.HandlerFunc {
	return func(ctx context.Context, job *queue.Job) (any, error) {
		if _, ok := FromContext(ctx); !ok {
			return nil, fmt.Errorf("job %s: %w", job.Name, ErrNoAppContext)
		}
		return fn(ctx, job)
	}
}
