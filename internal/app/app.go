package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/floradistro/pos-checkout/internal/auth"
	"github.com/floradistro/pos-checkout/internal/config"
	"github.com/floradistro/pos-checkout/internal/event"
	handler "github.com/floradistro/pos-checkout/internal/handler/http"
	"github.com/floradistro/pos-checkout/internal/remote"
	"github.com/floradistro/pos-checkout/internal/service"
	"github.com/floradistro/pos-checkout/pkg/health"
	"github.com/floradistro/pos-checkout/pkg/httpclient"
	pkgkafka "github.com/floradistro/pos-checkout/pkg/kafka"
	"github.com/floradistro/pos-checkout/pkg/tracing"
)

// App wires together all dependencies and runs the checkout service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "pos-checkout",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize the Kafka telemetry producer. Async so a slow or down
	// broker never delays a commit.
	kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
	kafkaCfg.Async = true
	producer := pkgkafka.NewProducer(kafkaCfg, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	telemetry := event.NewProducer(producer, cfg.RegisterID, logger)

	// The auth token fetch is cheap and safe to retry.
	authClient := httpclient.New(httpclient.Config{
		Timeout:         10 * time.Second,
		MaxRetries:      3,
		RetryWaitMin:    500 * time.Millisecond,
		RetryWaitMax:    5 * time.Second,
		MaxConnsPerHost: 10,
	})
	credentials := auth.NewProvider(authClient, cfg.AuthServiceURL, logger)

	// The commit call is single-shot: the server may have durably
	// committed even when the response never arrived, so the transport
	// must never retry it. Duplicate protection is the server-side
	// idempotency key.
	commitClient := httpclient.New(httpclient.Config{
		Timeout:         cfg.CommitTimeout(),
		MaxRetries:      0,
		MaxConnsPerHost: 10,
	})

	cbCfg := httpclient.CircuitBreakerConfig{
		Name:         "order-commit",
		MaxRequests:  cfg.CBMaxRequests,
		Interval:     time.Duration(cfg.CBInterval) * time.Second,
		Timeout:      time.Duration(cfg.CBTimeout) * time.Second,
		FailureRatio: cfg.CBFailureRatio,
		MinRequests:  cfg.CBMinRequests,
	}
	cbClient := httpclient.NewCircuitBreakerClient(commitClient, cbCfg, logger)
	logger.Info("circuit breaker initialized",
		slog.String("name", cbCfg.Name),
		slog.Uint64("max_requests", uint64(cbCfg.MaxRequests)),
		slog.Int("timeout_seconds", cfg.CBTimeout),
		slog.Uint64("min_requests", uint64(cbCfg.MinRequests)),
	)

	commitSender := remote.NewClient(cbClient, cfg.CommitServiceURL, logger)

	orchestrator := service.NewOrchestrator(
		credentials,
		commitSender,
		telemetry,
		logger,
		service.WithCommitTimeout(cfg.CommitTimeout()),
	)

	// Health checks. Kafka is telemetry-only; a broker outage is worth
	// surfacing but commits keep working without it, so it only
	// degrades readiness.
	healthHandler := health.NewHandler()
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	// HTTP router.
	router := handler.NewRouter(orchestrator, healthHandler, logger, cfg.PprofAllowedCIDRs)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * cfg.CommitTimeout(),
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		producer:       producer,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain the in-flight commit, if any)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests. The budget must cover a commit
	// that is mid-flight; cutting it off risks an order the register
	// never hears about.
	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.CommitTimeout()+5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Close Kafka producer.
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
