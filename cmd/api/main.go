package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/hookqueue/internal/config"
	"github.com/joshu-sajeev/hookqueue/internal/job"
	"github.com/joshu-sajeev/hookqueue/internal/logging"
	"github.com/joshu-sajeev/hookqueue/internal/retry"
	"github.com/joshu-sajeev/hookqueue/internal/storage/postgres"
	"github.com/joshu-sajeev/hookqueue/internal/storage/redis"
	"github.com/joshu-sajeev/hookqueue/internal/telemetry"
	"github.com/joshu-sajeev/hookqueue/internal/webhook"
	"github.com/joshu-sajeev/hookqueue/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "api:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel, cfg.Development())
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	metrics, err := telemetry.NewGlobalMetrics()
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	dbCfg, err := postgres.LoadConfigFromEnv(ctx)
	if err != nil {
		return err
	}
	db, err := postgres.ConnectDB(ctx, dbCfg, log.Named("db"))
	if err != nil {
		return err
	}
	if dbCfg.MigrateOnStart {
		if err := postgres.RunMigrations(ctx, db, "up", log.Named("migrate")); err != nil {
			return err
		}
	}

	schedule, err := retry.ParseSchedule(cfg.Queue.RetrySchedule)
	if err != nil {
		return fmt.Errorf("QUEUE_RETRY_SCHEDULE: %w", err)
	}

	jobs := postgres.NewJobRepository(db, schedule, cfg.Queue.DefaultMaxAttempts)
	subs := postgres.NewSubscriberRepository(db)

	jobService := job.NewJobService(jobs, postgres.NewDeadLetterRepository(db), nil, log.Named("jobs"))
	dispatcher := webhook.NewDispatcher(subs, jobService, cfg.Webhook.MaxAttempts, log.Named("dispatcher"))

	ledger, closeLedger, err := newLedger(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeLedger()

	gateway, err := webhook.NewGateway(webhook.GatewayConfig{
		ValidateSignature: cfg.Webhook.ValidateSignature,
		Secret:            cfg.Webhook.Secret,
		ClockSkew:         cfg.Webhook.ClockSkew(),
		IPWhitelist:       cfg.Webhook.IPWhitelist,
	}, ledger, jobService, log.Named("inbound"), metrics)
	if err != nil {
		return err
	}

	webhookService := webhook.NewWebhookService(subs, postgres.NewDeliveryLogRepository(db), dispatcher, cfg.Webhook.Secret, log.Named("webhooks"))
	webhookHandler := webhook.NewWebhookHandler(webhookService, gateway, cfg.Webhook.MaxBodyBytes)

	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.RequestLogger(log.Named("http")), middleware.ErrorHandler())

	r.GET("/healthz", healthz(db))
	if cfg.Webhook.InboundEnabled {
		webhookHandler.RegisterInbound(r, cfg.Webhook.InboundPath, cfg.Webhook.InboundTimeout)
	}

	if cfg.AdminToken == "" {
		log.Warn("ADMIN_API_TOKEN is not set; admin routes will reject every request")
	}
	authz := middleware.NewTokenAuthorizer(cfg.AdminToken)
	admin := r.Group("/admin", middleware.TimeoutMiddleware(cfg.RequestTimeout))
	job.NewJobHandler(jobService).RegisterRoutes(admin, authz)
	webhookHandler.RegisterRoutes(admin, authz)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("api listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.Bool("inbound", cfg.Webhook.InboundEnabled),
			zap.String("inbound_path", cfg.Webhook.InboundPath),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down api")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newLedger picks the inbound dedupe store.
func newLedger(ctx context.Context, cfg *config.Config, db *gorm.DB) (webhook.EventLedger, func(), error) {
	if cfg.Webhook.DedupeBackend != config.DedupeBackendRedis {
		return postgres.NewInboundEventLedger(db, cfg.Webhook.DedupeRetention), func() {}, nil
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	// A reservation outlives the request that made it by one more timeout.
	pending := 2 * cfg.Webhook.InboundTimeout
	return redis.NewEventLedger(rdb, cfg.Webhook.DedupeRetention, pending), func() { _ = rdb.Close() }, nil
}

func healthz(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			err = sqlDB.PingContext(ctx)
			cancel()
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
