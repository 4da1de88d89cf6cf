// Package app wires the autojob subsystems into a running server.
//
// The App owns the full lifecycle: New builds the store, archive, task store,
// career service, command dispatcher and HTTP surfaces; Run serves until the
// context is cancelled; Shutdown releases everything in order.
//
// For testing, inject doubles via functional options (WithStore, WithArchive,
// WithPublisher). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/AnsuryX/Autojob-Mvp/internal/api"
	"github.com/AnsuryX/Autojob-Mvp/internal/career"
	"github.com/AnsuryX/Autojob-Mvp/internal/command"
	"github.com/AnsuryX/Autojob-Mvp/internal/config"
	"github.com/AnsuryX/Autojob-Mvp/internal/health"
	"github.com/AnsuryX/Autojob-Mvp/internal/jobsearch"
	"github.com/AnsuryX/Autojob-Mvp/internal/observe"
	"github.com/AnsuryX/Autojob-Mvp/internal/resume"
	"github.com/AnsuryX/Autojob-Mvp/internal/task"
	"github.com/AnsuryX/Autojob-Mvp/internal/task/amqp"
	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/embeddings"
	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/llm"
	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/s2s"
	"github.com/AnsuryX/Autojob-Mvp/pkg/store"
	"github.com/AnsuryX/Autojob-Mvp/pkg/store/memstore"
	"github.com/AnsuryX/Autojob-Mvp/pkg/store/postgres"
)

// defaultEmbeddingDimensions matches OpenAI text-embedding-3-small.
const defaultEmbeddingDimensions = 1536

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM        llm.Provider
	S2S        s2s.Provider
	Embeddings embeddings.Provider
	Jobs       jobsearch.Provider
}

// TaskPublisher forwards task updates to a broker.
type TaskPublisher interface {
	Run(ctx context.Context, store *task.Store) error
	Ping(ctx context.Context) error
	Close() error
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	logger    *slog.Logger

	metrics   *observe.Metrics
	store     store.Store
	archive   *resume.Archive
	tasks     *task.Store
	career    *career.Service
	commands  *command.Dispatcher
	api       *api.Server
	health    *health.Handler
	publisher TaskPublisher

	metricsHandler http.Handler

	// closers are called in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a store instead of connecting from config.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithArchive injects an object archive instead of creating one from config.
func WithArchive(ar *resume.Archive) Option {
	return func(a *App) { a.archive = ar }
}

// WithPublisher injects a task publisher instead of dialling the broker.
func WithPublisher(p TaskPublisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithMetrics injects the metrics instruments instead of creating them from
// the global meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler sets the /metrics handler. Defaults to the Prometheus
// default registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. On error, resources
// opened so far are released.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (_ *App, err error) {
	if providers == nil || providers.LLM == nil {
		return nil, errors.New("app: an llm provider is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	defer func() {
		if err != nil {
			a.runClosers()
		}
	}()

	// ── 1. Metrics ───────────────────────────────────────────────────────
	if a.metrics == nil {
		m, err := observe.NewMetrics(otel.GetMeterProvider())
		if err != nil {
			return nil, fmt.Errorf("app: init metrics: %w", err)
		}
		a.metrics = m
	}

	// ── 2. Store ─────────────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 3. Archive ───────────────────────────────────────────────────────
	if err := a.initArchive(ctx); err != nil {
		return nil, fmt.Errorf("app: init archive: %w", err)
	}

	// ── 4. Tasks + career ────────────────────────────────────────────────
	// Records are created per user on first run.
	a.tasks = task.NewStore(nil,
		task.WithLogger(a.logger),
		task.WithMetrics(a.metrics),
	)
	a.career, err = career.NewService(career.Config{
		Store:             a.store,
		Tasks:             a.tasks,
		LLM:               providers.LLM,
		Jobs:              providers.Jobs,
		Embedder:          providers.Embeddings,
		Archive:           a.archive,
		Roadmap:           roadmapCadence(cfg.Tasks),
		SearchConcurrency: cfg.Tasks.SearchConcurrency,
		LLMTimeout:        cfg.Tasks.LLMTimeout,
		Logger:            a.logger,
		Metrics:           a.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.closers = append(a.closers, func() error {
		a.tasks.Wait()
		return nil
	})

	// ── 5. Commands ──────────────────────────────────────────────────────
	a.commands = command.NewDispatcher(providers.LLM,
		command.WithTabs(cfg.Commands.Tabs),
		command.WithTimeout(cfg.Commands.Timeout),
		command.WithLogger(a.logger),
		command.WithMetrics(a.metrics),
	)

	// ── 6. HTTP API ──────────────────────────────────────────────────────
	iv := cfg.Interview
	a.api, err = api.New(api.Config{
		Career:   a.career,
		Tasks:    a.tasks,
		Commands: a.commands,
		Interview: api.InterviewConfig{
			Provider:       providers.S2S,
			Voice:          iv.Voice,
			CaptureRate:    iv.CaptureRate,
			PlaybackRate:   iv.PlaybackRate,
			FrameDuration:  iv.FrameDuration,
			MaxDuration:    iv.MaxDuration,
			IdleTimeout:    iv.IdleTimeout,
			ClampCapture:   iv.ClampCapture,
			OriginPatterns: cfg.Server.OriginPatterns,
		},
		Logger:  a.logger,
		Metrics: a.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	// ── 7. Broker ────────────────────────────────────────────────────────
	if err := a.initPublisher(); err != nil {
		return nil, fmt.Errorf("app: init broker: %w", err)
	}

	// ── 8. Health ────────────────────────────────────────────────────────
	checkers := []health.Checker{health.Ping("store", a.store)}
	if a.archive != nil {
		checkers = append(checkers, health.Ping("archive", a.archive))
	}
	if a.publisher != nil {
		checkers = append(checkers, health.Ping("broker", a.publisher))
	}
	a.health = health.New(checkers...)

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore connects PostgreSQL when a DSN is configured and falls back to
// the in-memory store otherwise.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	dsn := a.cfg.Store.PostgresDSN
	if dsn == "" {
		a.store = memstore.New()
		a.logger.Warn("using in-memory store; data is lost on restart")
		return nil
	}

	dims := a.cfg.Store.EmbeddingDimensions
	if dims == 0 {
		dims = defaultEmbeddingDimensions
	}
	if e := a.providers.Embeddings; e != nil && e.Dimensions() != dims {
		return fmt.Errorf("embeddings model %q has %d dimensions, store expects %d", e.ModelID(), e.Dimensions(), dims)
	}

	pg, err := postgres.NewStore(ctx, dsn, dims)
	if err != nil {
		return err
	}
	a.store = pg
	a.closers = append(a.closers, func() error {
		pg.Close()
		return nil
	})
	a.logger.Info("connected to postgres", "embedding_dimensions", dims)
	return nil
}

func (a *App) initArchive(ctx context.Context) error {
	r2 := a.cfg.Storage.R2
	if a.archive != nil || r2 == nil {
		return nil
	}
	ar, err := resume.NewR2Archive(ctx, resume.R2Config{
		AccountID: r2.AccountID,
		AccessKey: r2.AccessKeyID,
		SecretKey: r2.SecretAccessKey,
		Bucket:    r2.Bucket,
		Endpoint:  r2.Endpoint,
	})
	if err != nil {
		return err
	}
	a.archive = ar
	a.logger.Info("object archive enabled", "bucket", r2.Bucket)
	return nil
}

func (a *App) initPublisher() error {
	if a.publisher == nil {
		url := a.cfg.Broker.AMQPURL
		if url == "" {
			return nil
		}
		opts := []amqp.Option{amqp.WithLogger(a.logger)}
		if ex := a.cfg.Broker.Exchange; ex != "" {
			opts = append(opts, amqp.WithExchange(ex))
		}
		p, err := amqp.Dial(url, opts...)
		if err != nil {
			return err
		}
		a.publisher = p
	}
	a.closers = append(a.closers, a.publisher.Close)
	return nil
}

// roadmapCadence converts the tasks config into a career cadence. A zero
// tick keeps the service default.
func roadmapCadence(t config.TasksConfig) career.RoadmapCadence {
	c := career.DefaultRoadmapCadence
	if t.RoadmapTick > 0 {
		c.Every = t.RoadmapTick
	}
	if t.RoadmapStep > 0 {
		c.Step = t.RoadmapStep
	}
	if t.RoadmapCeiling > 0 {
		c.Ceiling = t.RoadmapCeiling
	}
	return c
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the API handler. When no separate observe address is
// configured, the health and metrics routes are served alongside it.
func (a *App) Handler() http.Handler {
	if a.cfg.Server.ObserveAddr != "" {
		return a.api.Handler()
	}
	mux := http.NewServeMux()
	a.registerObserve(mux)
	mux.Handle("/", a.api.Handler())
	return mux
}

// ObserveHandler serves /healthz, /readyz and /metrics.
func (a *App) ObserveHandler() http.Handler {
	mux := http.NewServeMux()
	a.registerObserve(mux)
	return mux
}

func (a *App) registerObserve(mux *http.ServeMux) {
	a.health.Register(mux)
	h := a.metricsHandler
	if h == nil {
		h = promhttp.Handler()
	}
	mux.Handle("GET /metrics", h)
}

// Tasks returns the task store.
func (a *App) Tasks() *task.Store { return a.tasks }

// ApplyConfig applies the hot-reloadable parts of a config change.
func (a *App) ApplyConfig(d config.ConfigDiff) {
	if d.RoadmapChanged {
		c := roadmapCadence(d.NewTasks)
		a.career.SetRoadmapCadence(c)
		a.logger.Info("roadmap cadence updated", "every", c.Every, "step", c.Step, "ceiling", c.Ceiling)
	}
	if len(d.RestartRequired) > 0 {
		a.logger.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP surfaces and forwards task updates until ctx is
// cancelled. It returns nil on a clean stop.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	a.serve(ctx, g, "api", a.cfg.Server.ListenAddr, a.Handler())
	if addr := a.cfg.Server.ObserveAddr; addr != "" {
		a.serve(ctx, g, "observe", addr, a.ObserveHandler())
	}
	if a.publisher != nil {
		g.Go(func() error { return a.publisher.Run(ctx, a.tasks) })
	}

	a.logger.Info("app running", "listen_addr", a.cfg.Server.ListenAddr)
	return g.Wait()
}

// serve runs one HTTP server in g and shuts it down when ctx is done.
func (a *App) serve(ctx context.Context, g *errgroup.Group, name, addr string, h http.Handler) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil && name == "api" {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: %s server: %w", name, err)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("server shutdown", "server", name, "err", err)
		}
		return nil
	})
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown waits for running tasks and releases all subsystems in reverse
// init order. If ctx expires first, the
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.logger.Info("shutting down", "closers", len(a.closers))
		done := make(chan struct{})
		go func() {
			defer close(done)
			a.runClosers()
		}()
		select {
		case <-done:
			a.logger.Info("shutdown complete")
		case <-ctx.Done():
			a.logger.Warn("shutdown deadline exceeded")
			shutdownErr = ctx.Err()
		}
	})
	return shutdownErr
}

// runClosers calls the closers in reverse init order.
func (a *App) runClosers() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("closer error", "index", i, "err", err)
		}
	}
	a.closers = nil
}
