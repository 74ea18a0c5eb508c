// Package server provides the application server and dependency wiring.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/archive-debouncer/internal/api"
	"github.com/JakeFAU/archive-debouncer/internal/archive"
	"github.com/JakeFAU/archive-debouncer/internal/clock/system"
	"github.com/JakeFAU/archive-debouncer/internal/config"
	"github.com/JakeFAU/archive-debouncer/internal/debounce"
	"github.com/JakeFAU/archive-debouncer/internal/eventlog"
	"github.com/JakeFAU/archive-debouncer/internal/id/uuid"
	"github.com/JakeFAU/archive-debouncer/internal/logging"
	"github.com/JakeFAU/archive-debouncer/internal/metrics"
	"github.com/JakeFAU/archive-debouncer/internal/progress"
	progresssinks "github.com/JakeFAU/archive-debouncer/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/archive-debouncer/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/archive-debouncer/internal/publisher/pubsub"
	"github.com/JakeFAU/archive-debouncer/internal/telemetry"
	"github.com/JakeFAU/archive-debouncer/internal/wayback"
)

const shutdownTimeout = 10 * time.Second

// defaultTopic names the outcome topic when notifications stay in memory.
const defaultTopic = "archive-outcomes"

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	events          *eventlog.Log
	debouncer       *debounce.Debouncer
	apiServer       *api.Server
	progressHub     *progress.Hub
	publisher       archive.Publisher
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsub.Publisher
	tracerShutdown  func(context.Context) error
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) *App {
	type SanitizedConfig struct {
		Address        string `json:"address"`
		PasswordSet    bool   `json:"password_set"`
		Endpoint       string `json:"endpoint"`
		PubSubEnabled  bool   `json:"pubsub_enabled"`
		TracingEnabled bool   `json:"tracing_enabled"`
	}
	logger.Info("Creating application", zap.Any("config", SanitizedConfig{
		Address:        cfg.Address(),
		PasswordSet:    cfg.Auth.Password != "",
		Endpoint:       cfg.Archive.Endpoint,
		PubSubEnabled:  cfg.PubSubEnabled(),
		TracingEnabled: cfg.Telemetry.TracingEnabled,
	}))
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Telemetry.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return build(ctx, cfg, logger, prometheus.DefaultRegisterer)
}

func build(ctx context.Context, cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*App, error) {
	app := NewApp(cfg, logger)
	metrics.Init()

	if cfg.Telemetry.TracingEnabled {
		tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
			ServiceName: cfg.Telemetry.ServiceName,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("tracer init failed: %w", err)
		}
		app.tracerShutdown = tp.Shutdown
		app.logger.Info("tracing enabled", zap.String("service", cfg.Telemetry.ServiceName))
	}

	app.logger.Info("building application dependencies")
	clock := system.New()
	app.events = eventlog.New(eventlog.DefaultCapacity, clock, logger.Named("eventlog"))

	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}
	app.publisher = publisher

	if err := setupProgress(app, reg); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}

	client := wayback.New(wayback.Config{
		Endpoint:  cfg.Archive.Endpoint,
		UserAgent: cfg.Archive.UserAgent,
		Timeout:   cfg.ArchiveTimeout(),
	}, app.events, logger.Named("wayback"))
	app.logger.Info("using colly archive client",
		zap.String("endpoint", cfg.Archive.Endpoint),
		zap.String("user_agent", cfg.Archive.UserAgent),
		zap.Duration("timeout", cfg.ArchiveTimeout()),
	)

	if cfg.Auth.Password == "" {
		app.logger.Warn("no archive password configured; every archive request will be rejected")
	}
	app.debouncer = debounce.New(
		debounce.Config{Secret: cfg.Auth.Password},
		client,
		app.events,
		clock,
		uuid.NewUUIDGenerator(),
		app.progressHub,
		logger.Named("debounce"),
	)

	app.apiServer = api.NewServer(app.debouncer, app.events, logger.Named("api"))
	return app, nil
}

func setupPublisher(ctx context.Context, app *App) (archive.Publisher, error) {
	if !app.cfg.PubSubEnabled() {
		app.logger.Warn("No Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubPublisher = app.pubsubClient.Publisher(app.cfg.PubSub.TopicName)
	app.logger.Info(
		"Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return gcppublisher.New(app.pubsubPublisher), nil
}

func setupProgress(app *App, reg prometheus.Registerer) error {
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("progress metrics init failed: %w", err)
	}
	topic := app.cfg.PubSub.TopicName
	if topic == "" {
		topic = defaultTopic
	}
	sinkList := []progress.Sink{
		progresssinks.NewLogSink(app.logger.Named("progress_log")),
		promSink,
		progresssinks.NewNotifySink(app.publisher, topic, app.logger.Named("progress_notify")),
	}
	hubCfg := progress.Config{Logger: app.logger.Named("progress_hub")}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized", zap.Int("sinks", len(sinkList)))
	return nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              a.cfg.Address(),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	closeErr := a.Close(shutdownCtx)
	select {
	case err := <-serveErr:
		return errors.Join(fmt.Errorf("http server: %w", err), closeErr)
	default:
		return closeErr
	}
}

// Close gracefully shuts down the application. Pending archive jobs are
// dropped; running ones are canceled.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.debouncer != nil {
		if err := a.debouncer.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("debouncer close: %w", err))
		}
	}
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
}
