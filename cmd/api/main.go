package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/auth"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/claim"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/config"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/db"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/lifecycle"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/metrics"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/outbox"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/report"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/signal"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/sla"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.IsProduction())
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
	logger.Info("server stopped")
}

// initLogger initializes the zap logger
func initLogger(production bool) *zap.Logger {
	var config zap.Config
	if production {
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	} else {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	logger, err := config.Build()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	return logger
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database.URL, db.PoolOptions{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("bootstrap database pool: %w", err)
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	rules, err := cfg.Rules()
	if err != nil {
		return err
	}
	calc := sla.NewCalculator(cfg.Windows())
	guard, err := lifecycle.NewGuard(rules,
		lifecycle.WithCalculator(calc),
		lifecycle.WithLogger(logger.Named("lifecycle")),
	)
	if err != nil {
		return err
	}

	claimRepo := claim.NewRepository(pool)
	signalRepo := signal.NewRepository(pool)
	outboxStore := outbox.NewStore(pool)

	authService := auth.NewService(auth.NewRepository(pool), cfg.Auth.JWTSecret).WithTokenTTL(cfg.Auth.TokenTTL)
	claimService := claim.NewService(pool, claimRepo, outboxStore).WithLogger(logger.Named("claim"))
	statusService := claim.NewStatusService(pool, claimRepo, guard, signalRepo, outboxStore).
		WithLogger(logger.Named("claim")).
		WithObserver(collector)
	milestoneService := claim.NewMilestoneService(pool, claimRepo, outboxStore).WithLogger(logger.Named("claim"))
	signalService := signal.NewService(signalRepo, logger.Named("signal"))
	reportService := report.NewService(claimRepo, pool, calc).
		WithConcurrency(cfg.SLA.Concurrency).
		WithLogger(logger.Named("report"))

	server := &Server{
		authService:       authService,
		claimService:      claimService,
		transitionService: statusService,
		milestoneService:  milestoneService,
		signalService:     signalService,
		reporter:          reportService,
		metrics:           collector,
		metricsHandler:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		logger:            logger.Named("http"),
	}
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var jobs []job
	if cfg.Outbox.Enabled {
		jobs = append(jobs, func(ctx context.Context) (func() error, func(), error) {
			publisher, err := newPublisher(cfg, logger)
			if err != nil {
				return nil, nil, err
			}
			relay := outbox.NewRelay(pool, outboxStore, publisher, outbox.RelayOptions{
				BatchSize:    cfg.Outbox.BatchSize,
				MaxAttempts:  cfg.Outbox.MaxAttempts,
				PollInterval: cfg.Outbox.PollInterval,
			}).WithLogger(logger.Named("outbox")).WithObserver(collector)
			return func() error { return relay.Run(ctx) }, func() { _ = publisher.Close() }, nil
		})
	}
	if cfg.SLA.SweepSchedule != "" {
		jobs = append(jobs, func(ctx context.Context) (func() error, func(), error) {
			sweeper := report.NewSweeper(reportService, pool, claimRepo, outboxStore, collector, logger.Named("sweeper"))
			if err := sweeper.Start(ctx, cfg.SLA.SweepSchedule); err != nil {
				return nil, nil, err
			}
			return nil, sweeper.Stop, nil
		})
	}

	return serve(ctx, httpServer, cfg.Server.ShutdownTimeout, logger, jobs...)
}

// job prepares a background worker. run, when non-nil, is started in the
// server's errgroup; cleanup runs once serve returns.
type job func(ctx context.Context) (run func() error, cleanup func(), err error)

// serve runs srv and jobs until ctx is done or one of them fails. Every job is
// prepared before the listener starts; when a job cannot be prepared the ones
// already running are stopped and waited for.
func serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, jobs ...job) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	var cleanups []func()
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	for _, j := range jobs {
		run, cleanup, err := j(gctx)
		if err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		if cleanup != nil {
			cleanups = append(cleanups, cleanup)
		}
		if run != nil {
			g.Go(run)
		}
	}

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newPublisher falls back to logging messages when no brokers are configured.
func newPublisher(cfg *config.Config, logger *zap.Logger) (outbox.Publisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Warn("no kafka brokers configured; outbox messages will only be logged")
		return outbox.NewLogPublisher(logger.Named("outbox")), nil
	}
	return outbox.NewKafkaPublisher(outbox.KafkaConfig{
		Brokers:      cfg.Kafka.Brokers,
		TopicPrefix:  cfg.Kafka.TopicPrefix,
		BatchSize:    cfg.Kafka.BatchSize,
		BatchTimeout: cfg.Kafka.BatchTimeout,
		WriteTimeout: cfg.Kafka.WriteTimeout,
	}, logger.Named("outbox"))
}
