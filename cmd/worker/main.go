package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joshu-sajeev/hookqueue/internal/config"
	"github.com/joshu-sajeev/hookqueue/internal/job"
	"github.com/joshu-sajeev/hookqueue/internal/logging"
	"github.com/joshu-sajeev/hookqueue/internal/pool"
	"github.com/joshu-sajeev/hookqueue/internal/retry"
	"github.com/joshu-sajeev/hookqueue/internal/storage/postgres"
	"github.com/joshu-sajeev/hookqueue/internal/telemetry"
	"github.com/joshu-sajeev/hookqueue/internal/webhook"
	"github.com/joshu-sajeev/hookqueue/internal/worker"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "worker:", err)
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

	schedule, err := retry.ParseSchedule(cfg.Queue.RetrySchedule)
	if err != nil {
		return fmt.Errorf("QUEUE_RETRY_SCHEDULE: %w", err)
	}
	jobs := postgres.NewJobRepository(db, schedule, cfg.Queue.DefaultMaxAttempts)
	subs := postgres.NewSubscriberRepository(db)

	payloads := job.DefaultPayloadRegistry()
	jobService := job.NewJobService(jobs, postgres.NewDeadLetterRepository(db), payloads, log.Named("jobs"))
	dispatcher := webhook.NewDispatcher(subs, jobService, cfg.Webhook.MaxAttempts, log.Named("dispatcher"))

	registry := worker.NewRegistry()
	registry.Register(config.JobTypeProcessWebhookEvent,
		webhook.NewProcessor(dispatcher, cfg.Webhook.ForwardInbound, log.Named("processor")))
	if cfg.Webhook.OutboundEnabled {
		registry.Register(config.JobTypeDeliverWebhook,
			webhook.NewDeliverer(nil, postgres.NewDeliveryLogRepository(db), cfg.Webhook.DeliveryTimeout(), log.Named("deliverer"), metrics))
	}

	// Without an explicit filter a worker only claims types it can run, so
	// disabled outbound delivery leaves deliver_webhook jobs queued.
	jobTypes := cfg.Worker.JobTypes
	if len(jobTypes) == 0 {
		jobTypes = registry.Types()
	}

	newWorker := func(id string) *worker.Worker {
		return worker.New(jobs, registry, worker.Options{
			ID:              id,
			JobTypes:        jobTypes,
			PollInterval:    cfg.Worker.PollInterval,
			MaxPollInterval: cfg.Worker.MaxPollInterval,
			JobTimeout:      cfg.Worker.JobTimeout,
		}, log.With(zap.String("worker_id", id)), metrics)
	}

	log.Info("worker starting",
		zap.String("mode", cfg.Worker.Mode),
		zap.Strings("job_types", jobTypes),
		zap.Stringer("retry_schedule", schedule),
	)

	switch cfg.Worker.Mode {
	case config.WorkerModeOnce:
		processed, err := newWorker(cfg.Worker.ID).RunOnce(ctx)
		if err != nil {
			return err
		}
		log.Info("single run finished", zap.Bool("processed", processed))

	case config.WorkerModeLoop:
		processed := newWorker(cfg.Worker.ID).RunLoop(ctx, cfg.Worker.MaxJobs)
		log.Info("loop finished", zap.Int("processed", processed))

	default:
		workers := make([]*worker.Worker, cfg.Worker.Concurrency)
		for i := range workers {
			workers[i] = newWorker(fmt.Sprintf("%s-%d", cfg.Worker.ID, i+1))
		}

		var pruners []pool.Pruner
		if cfg.Webhook.DedupeBackend == config.DedupeBackendSQL {
			pruners = append(pruners, postgres.NewInboundEventLedger(db, cfg.Webhook.DedupeRetention))
		}

		pool.NewWorkerPool(workers, jobs, pool.Options{
			StaleAfter:       cfg.Worker.StaleAfter,
			ReclaimInterval:  cfg.Worker.ReclaimInterval,
			KnownTypes:       payloads.Types(),
			UnknownTypeGrace: cfg.Worker.UnknownTypeGrace,
		}, log.Named("pool"), pruners...).Run(ctx)
	}
	return nil
}
