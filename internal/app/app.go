// Package app assembles the application from configuration: storage, the job
// queue, outbound clients and the HTTP router.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"busybeaver/internal/jobaudit"
	jwttoken "busybeaver/internal/jwt_token"
	"busybeaver/internal/kvstore"
	"busybeaver/internal/notify"
	"busybeaver/internal/platform/config"
	"busybeaver/internal/platform/database"
	"busybeaver/internal/platform/logger"
	"busybeaver/internal/platform/metrics"
	redisclient "busybeaver/internal/platform/redis"
	"busybeaver/internal/queue"
	httptransport "busybeaver/internal/transport/http"
)

// App is one configured application instance.
type App struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	db     *database.DB
	redis  *redisclient.Client
	kv     *kvstore.Adapter
	queue  *queue.Queue
	notify *notify.Client
	audit  *jobaudit.PostgresStore
	tokens *jwttoken.JWTService

	handler http.Handler

	ctxMu sync.Mutex
	stack []*Context

	shutdownOnce sync.Once
	shutdownErr  error
}

// Option customises New.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	httpClient *http.Client
}

// WithLogger replaces the logger built from cfg.Log.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHTTPClient sets the client used for outbound webhooks.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// New builds the application. Without a database URL the key-value store
// lives in memory and jobs are not audited.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = logger.New(cfg.Log)
	}

	a := &App{
		cfg:     cfg,
		logger:  o.logger,
		metrics: metrics.New(),
	}
	if err := a.init(ctx, o); err != nil {
		if cerr := a.closeResources(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, o options) error {
	var err error
	if a.cfg.Database.URL != "" {
		if a.db, err = database.Open(ctx, a.cfg.Database); err != nil {
			return err
		}
		a.kv = kvstore.NewAdapter(kvstore.NewPostgresStore(a.db), a.metrics)
		a.audit = jobaudit.NewPostgresStore(a.db)
	} else {
		a.kv = kvstore.NewAdapter(kvstore.NewInMemoryStore(), a.metrics)
	}

	if a.redis, err = redisclient.New(ctx, a.cfg.Redis); err != nil {
		return err
	}
	if a.queue, err = a.buildQueue(ctx); err != nil {
		return err
	}

	a.notify = notify.New(a.cfg.Notify, o.httpClient)
	a.registerJobs()

	routerCfg := httptransport.RouterConfig{
		KV:          a.kv,
		Jobs:        a.queue,
		Checks:      a.readinessChecks(),
		Metrics:     a.metrics,
		Logger:      a.logger,
		BaseContext: a.withApp,
	}
	if a.cfg.Server.SigningKey != "" {
		a.tokens = jwttoken.NewJWTService(a.cfg.Server.SigningKey, jwttoken.Issuer)
		routerCfg.Validator = jwttoken.NewJWTServiceAdapter(a.tokens)
	}
	a.handler = httptransport.NewRouter(routerCfg)
	return nil
}

func (a *App) buildQueue(ctx context.Context) (*queue.Queue, error) {
	qc := a.cfg.Queue
	opts := []queue.Option{
		queue.WithAsync(qc.Async),
		queue.WithMetrics(a.metrics),
		queue.WithLogger(a.logger),
	}
	if a.audit != nil {
		opts = append(opts, queue.WithHook(a.audit.Hook(a.logger)))
	}

	switch qc.Backend {
	case config.QueueBackendRedis:
		if a.redis == nil {
			return nil, fmt.Errorf("queue backend redis: redis is not configured")
		}
		return queue.New(qc.Name, queue.NewRedisBroker(a.redis.Client, qc.Name, qc.JobTTL), nil, opts...)
	case config.QueueBackendKafka:
		broker, err := queue.NewKafkaBroker(ctx, queue.KafkaConfig{
			Brokers:       qc.Brokers,
			Topic:         qc.Topic,
			ConsumerGroup: qc.ConsumerGroup,
		})
		if err != nil {
			return nil, err
		}
		var records queue.Records
		if a.redis != nil {
			records = queue.NewRedisBroker(a.redis.Client, qc.Name, qc.JobTTL)
		} else {
			a.logger.WarnContext(ctx, "kafka queue without redis keeps job status in process memory")
			records = queue.NewMemoryBroker()
		}
		q, err := queue.New(qc.Name, broker, records, opts...)
		if err != nil {
			_ = broker.Close()
			return nil, err
		}
		return q, nil
	default:
		return queue.New(qc.Name, queue.NewMemoryBroker(), nil, opts...)
	}
}

func (a *App) readinessChecks() []httptransport.ReadinessCheck {
	var checks []httptransport.ReadinessCheck
	if a.db != nil {
		checks = append(checks, httptransport.ReadinessCheck{Name: "database", Check: a.db.Ping})
	}
	if a.redis != nil {
		checks = append(checks, httptransport.ReadinessCheck{Name: "redis", Check: a.redis.Health})
	}
	return checks
}

func (a *App) Config() config.Config { return a.cfg }
func (a *App) Logger() *slog.Logger { return a.logger }
func (a *App) Metrics() *metrics.Metrics { return a.metrics }
func (a *App) KV() *kvstore.Adapter { return a.kv }
func (a *App) Queue() *queue.Queue { return a.queue }
func (a *App) Notifier() *notify.Client { return a.notify }
func (a *App) Handler() http.Handler { return a.handler }
func (a *App) Audit() *jobaudit.PostgresStore { return a.audit }

// Testing reports whether the app runs with the testing profile.
func (a *App) Testing() bool { return a.cfg.Testing }

// DB returns the database handle, or nil when none is configured.
func (a *App) DB() *database.DB { return a.db }

// IssueToken mints an API token. It fails when no signing key is configured.
func (a *App) IssueToken(subject string, ttl time.Duration) (string, error) {
	if a.tokens == nil {
		return "", fmt.Errorf("issue token: no signing key configured")
	}
	return a.tokens.GenerateToken(subject, jwttoken.ScopeAPI, ttl)
}

// Shutdown releases the queue, redis and the database, in that order. Only
// the first call does any work; later calls return its result.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		a.ctxMu.Lock()
		leaked := len(a.stack)
		a.ctxMu.Unlock()
		if leaked > 0 {
			a.logger.WarnContext(ctx, "shutting down with pushed app contexts", "count", leaked)
		}
		a.shutdownErr = a.closeResources()
	})
	return a.shutdownErr
}

func (a *App) closeResources() error {
	var errs []error
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close queue: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
