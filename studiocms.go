// Package studiocms is the content API behind a studio's marketing site. It
// serves portfolio projects, blog posts and contact-form leads from a managed
// database, gates every write behind bearer-token auth, forwards image
// uploads to an asset host and aggregates an admin dashboard.
//
// Clients are built by the caller and injected with Options; New wires them
// into an Echo server with the API mounted under a single prefix.
package studiocms

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/eringen/studiocms/assethost"
	"github.com/eringen/studiocms/auth"
	"github.com/eringen/studiocms/backend"
)

// Uploader stores an image with the asset host.
type Uploader interface {
	Upload(ctx context.Context, f assethost.File) (assethost.Asset, error)
}

// App is the studiocms server. It wires the backend, auth, uploader, cache
// and limiter into the router and middleware.
type App struct {
	Config Config
	Echo   *echo.Echo
	Router *Router

	backend  backend.Backend
	verifier auth.Verifier
	admins   auth.AllowList
	uploader Uploader
	cache    ListCache
	limiter  Limiter
	log      *zap.Logger
	now      func() time.Time
	registry *prometheus.Registry
	metrics  *appMetrics
	closers  []func() error
}

// Option configures an App.
type Option func(*App)

// WithBackend sets the database backend. It is required.
func WithBackend(b backend.Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithVerifier sets the bearer-token verifier. Without one every
// authenticated route answers 401.
func WithVerifier(v auth.Verifier) Option {
	return func(a *App) { a.verifier = v }
}

// WithUploader sets the asset host client.
func WithUploader(u Uploader) Option {
	return func(a *App) { a.uploader = u }
}

// WithCache replaces the in-memory list cache.
func WithCache(c ListCache) Option {
	return func(a *App) { a.cache = c }
}

// WithLimiter replaces the in-memory lead rate limiter.
func WithLimiter(l Limiter) Option {
	return func(a *App) { a.limiter = l }
}

// WithLogger sets the logger (default: no-op).
func WithLogger(l *zap.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithClock sets the time source used for timestamps and dashboard windows.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// WithCloser registers fn to run on Close, after the backend is closed.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// New creates an App from cfg. Zero config values take defaults.
func New(cfg Config, opts ...Option) (*App, error) {
	cfg.setDefaults()

	a := &App{
		Config:   cfg,
		Echo:     echo.New(),
		log:      zap.NewNop(),
		now:      time.Now,
		registry: prometheus.NewRegistry(),
	}
	a.Echo.HideBanner = true
	a.Echo.HidePort = true

	for _, opt := range opts {
		opt(a)
	}

	if a.backend == nil {
		return nil, errors.New("studiocms: a backend is required")
	}
	a.admins = auth.NewAllowList(cfg.AdminEmails)
	if a.cache == nil {
		a.cache = NewMemoryCache(cfg.CacheTTL)
	}
	if a.limiter == nil {
		ml := NewMemoryLimiter(cfg.LeadRateLimit, cfg.LeadRateWindow)
		a.limiter = ml
		a.closers = append(a.closers, func() error {
			ml.Stop()
			return nil
		})
	}

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = newAppMetrics(a.registry)

	a.setupMiddleware()
	a.setupRoutes()
	return a, nil
}

func (a *App) setupRoutes() {
	e := a.Echo

	a.Router = NewRouter(a.Config.APIPrefix, a.setupSubRouter)
	a.Router.Handle("projects", a.projectRoutes)
	a.Router.Handle("posts", a.postRoutes)
	a.Router.Handle("leads", a.leadRoutes)
	a.Router.Handle("upload", a.uploadRoutes)
	a.Router.Handle("dashboard", a.dashboardRoutes)
	a.Router.Mount(e)

	e.GET("/healthz", a.handleHealth)
	e.GET("/metrics", a.metricsHandler())
	e.GET("/robots.txt", a.handleRobots)
	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)
	e.GET("/config.json", a.handlePublicConfig)
}

// setupSubRouter gives every API sub-router the JSON error handler and the
// client IP rules of the outer server.
func (a *App) setupSubRouter(e *echo.Echo) {
	e.HTTPErrorHandler = a.apiErrorHandler
	e.IPExtractor = a.Echo.IPExtractor
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (a *App) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server listening",
			zap.String("addr", a.Config.Addr()),
			zap.String("api_prefix", a.Config.APIPrefix),
		)
		if err := a.Echo.Start(a.Config.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.Echo.Shutdown(shutdownCtx)
}

// Close releases the backend and everything registered with WithCloser.
func (a *App) Close() error {
	var errs []error
	if err := a.backend.Close(); err != nil {
		errs = append(errs, err)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
