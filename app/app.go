package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/searchktools/mini-server/config"
	"github.com/searchktools/mini-server/core"
	"github.com/searchktools/mini-server/core/http"
	"github.com/searchktools/mini-server/core/middleware"
	"github.com/searchktools/mini-server/core/observability"
	"github.com/searchktools/mini-server/core/pools"
	"github.com/searchktools/mini-server/core/router"
)

// App is the application instance: a router behind a middleware pipeline,
// served by a fixed worker pool.
type App struct {
	cfg    *config.Config
	logger zerolog.Logger

	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
	metrics  *observability.Metrics

	router   *router.Router
	pipeline *middleware.Pipeline
	server   *core.Server
}

// New creates an application instance with the built-in routes registered.
func New(cfg *config.Config) (*App, error) {
	a := &App{
		cfg:    cfg,
		logger: NewLogger(cfg),
		reader: sdkmetric.NewManualReader(),
		router: router.New(),
	}

	a.provider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(a.reader))
	otel.SetMeterProvider(a.provider)
	metrics, err := observability.NewGlobal()
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	a.metrics = metrics

	a.pipeline = middleware.NewPipeline().Use(
		middleware.Recovery(a.component("recovery")),
		middleware.Logger(a.component("access")),
		middleware.Metrics(a.metrics),
		middleware.Gzip(),
	)

	pool := pools.NewWorkerPool(cfg.Workers,
		pools.WithQueueCapacity(cfg.QueueCapacity),
		pools.WithLogger(a.component("pool")),
		pools.WithMetrics(a.metrics),
	)
	a.server = core.NewServer(a.pipeline.Then(a.router.Handler()), pool,
		core.WithLogger(a.component("server")),
		core.WithMetrics(a.metrics),
		core.WithTimeouts(cfg.ReadTimeout, cfg.WriteTimeout),
		core.WithMaxConns(cfg.MaxConns),
	)

	a.registerRoutes()
	return a, nil
}

// NewLogger builds the process logger: human-readable console output in
// development, JSON otherwise.
func NewLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.IsProduction() {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func (a *App) component(name string) zerolog.Logger {
	return a.logger.With().Str("component", name).Logger()
}

// Router returns the router for registering additional routes.
func (a *App) Router() *router.Router {
	return a.router
}

// Handler returns the full request handler, middleware included.
func (a *App) Handler() http.HandlerFunc {
	return a.pipeline.Then(a.router.Handler())
}

// Server returns the underlying connection driver.
func (a *App) Server() *core.Server {
	return a.server
}

// Logger returns the application logger.
func (a *App) Logger() zerolog.Logger {
	return a.logger
}

// Run serves on the configured address until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := a.server.Listen(ctx, a.cfg.Addr())
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully within
// ShutdownTimeout. A clean shutdown returns nil.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	a.logger.Info().
		Str("addr", ln.Addr().String()).
		Str("env", a.cfg.Env).
		Int("workers", a.cfg.Workers).
		Str("directory", a.cfg.Directory).
		Msg("mini-server starting")

	serveCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- a.server.Serve(serveCtx, ln)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info().Msg("shutdown requested")
	case serveErr = <-done:
		done = nil
	}

	shutdownErr := a.shutdown()
	if done != nil {
		serveErr = <-done
	}
	if errors.Is(serveErr, core.ErrServerClosed) {
		serveErr = nil
	}
	return errors.Join(serveErr, shutdownErr)
}

// shutdownContext bounds shutdown by ShutdownTimeout; zero waits for
// in-flight requests without a limit.
func (a *App) shutdownContext() (context.Context, context.CancelFunc) {
	if a.cfg.ShutdownTimeout > 0 {
		return context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	}
	return context.WithCancel(context.Background())
}

func (a *App) shutdown() error {
	ctx, cancel := a.shutdownContext()
	defer cancel()

	err := a.server.Shutdown(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("forced shutdown")
	}

	if totals, terr := observability.Totals(ctx, a.reader); terr == nil {
		ev := a.logger.Info()
		for name, v := range totals {
			ev = ev.Float64(name, v)
		}
		ev.Msg("final metrics")
	}
	a.logger.Info().Str("stats", a.server.GetStatsJSON()).Msg("server stopped")

	return errors.Join(err, a.provider.Shutdown(context.Background()))
}
