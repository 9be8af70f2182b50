package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joshu-sajeev/hookqueue/internal/config"
	"github.com/joshu-sajeev/hookqueue/internal/models"
	"github.com/joshu-sajeev/hookqueue/internal/storage"
	"github.com/joshu-sajeev/hookqueue/internal/telemetry"
	goretry "github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Store is the part of the job store a worker drives.
type Store interface {
	ClaimNext(ctx context.Context, workerID string, jobTypes []string) (*models.Job, error)
	Complete(ctx context.Context, claim storage.Claim) error
	Fail(ctx context.Context, claim storage.Claim, errMsg string) (storage.FailResult, error)
	DeadLetter(ctx context.Context, claim storage.Claim, reason config.DeadLetterReason, errMsg string) error
}

const (
	OutcomeCompleted    = "completed"
	OutcomeRetry        = "retry"
	OutcomeDeadLettered = "dead_lettered"
)

type Options struct {
	ID       string
	JobTypes []string

	// PollInterval is the sleep after an empty poll. In daemon mode the
	// sleep doubles on every further empty poll up to MaxPollInterval.
	PollInterval    time.Duration
	MaxPollInterval time.Duration
	JobTimeout      time.Duration
}

func (o Options) withDefaults() Options {
	if o.ID == "" {
		o.ID = "worker"
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.MaxPollInterval < o.PollInterval {
		o.MaxPollInterval = o.PollInterval
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = 2 * time.Minute
	}
	return o
}

type Worker struct {
	store    Store
	registry *Registry
	opts     Options
	log      *zap.Logger
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
}

func New(store Store, registry *Registry, opts Options, log *zap.Logger, metrics *telemetry.Metrics) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	opts = opts.withDefaults()
	return &Worker{
		store:    store,
		registry: registry,
		opts:     opts,
		log:      log.With(zap.String("worker_id", opts.ID)),
		metrics:  metrics,
		tracer:   telemetry.Tracer(),
	}
}

func (w *Worker) ID() string { return w.opts.ID }

// RunOnce claims at most one job and processes it to completion. It reports
// whether a job was processed.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	// A claim that reached the database must come back even if ctx is
	// canceled mid-call; otherwise the job sits in processing until reclaimed.
	job, err := w.store.ClaimNext(context.WithoutCancel(ctx), w.opts.ID, w.opts.JobTypes)
	if errors.Is(err, storage.ErrNoJobAvailable) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}

	w.process(ctx, job)
	return true, nil
}

// RunLoop processes up to maxJobs jobs (unbounded when maxJobs <= 0),
// sleeping PollInterval after every empty poll. It returns when the budget
// is spent or ctx is canceled.
func (w *Worker) RunLoop(ctx context.Context, maxJobs int) int {
	processed := 0
	for maxJobs <= 0 || processed < maxJobs {
		if ctx.Err() != nil {
			return processed
		}

		ok, err := w.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			w.log.Error("poll failed", zap.Error(err))
		}
		if ok {
			processed++
			continue
		}
		if !sleep(ctx, w.opts.PollInterval) {
			return processed
		}
	}
	return processed
}

// RunDaemon polls until ctx is canceled. An in-flight job always finishes
// before RunDaemon returns.
func (w *Worker) RunDaemon(ctx context.Context) {
	w.log.Info("worker started", zap.Strings("job_types", w.opts.JobTypes))
	defer w.log.Info("worker stopped")

	idle := w.idleBackoff()
	for ctx.Err() == nil {
		ok, err := w.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			w.log.Error("poll failed", zap.Error(err))
		}
		if ok {
			idle = w.idleBackoff()
			continue
		}

		wait, _ := idle.Next()
		if !sleep(ctx, wait) {
			return
		}
	}
}

func (w *Worker) idleBackoff() goretry.Backoff {
	return goretry.WithCappedDuration(w.opts.MaxPollInterval, goretry.NewExponential(w.opts.PollInterval))
}

func (w *Worker) process(ctx context.Context, job *models.Job) {
	// Bookkeeping must land even when shutdown has begun.
	ctx = context.WithoutCancel(ctx)

	ctx, span := w.tracer.Start(ctx, "job.process", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.type", job.Type),
		attribute.Int("job.attempt", job.Attempts),
	))
	defer span.End()

	log := w.log.With(
		zap.String("job_id", job.ID),
		zap.String("type", job.Type),
		zap.Int("attempt", job.Attempts),
		zap.Int("max_attempts", job.MaxAttempts),
	)
	log.Debug("job claimed")
	claim := storage.ClaimOf(job)

	handler, ok := w.registry.Lookup(job.Type)
	if !ok {
		msg := fmt.Sprintf("no handler registered for job type %q", job.Type)
		span.SetStatus(codes.Error, msg)
		if err := w.store.DeadLetter(ctx, claim, config.DeadLetterUnknownJobType, msg); err != nil {
			logStoreError(log, "failed to dead-letter job", err)
			return
		}
		log.Warn("job dead-lettered", zap.String("reason", string(config.DeadLetterUnknownJobType)))
		w.metrics.JobProcessed(ctx, job.Type, OutcomeDeadLettered)
		return
	}

	err := w.execute(ctx, handler, job)
	if err == nil {
		if err := w.store.Complete(ctx, claim); err != nil {
			span.RecordError(err)
			logStoreError(log, "failed to complete job", err)
			return
		}
		log.Info("job completed")
		w.metrics.JobProcessed(ctx, job.Type, OutcomeCompleted)
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	result, ferr := w.store.Fail(ctx, claim, err.Error())
	if ferr != nil {
		logStoreError(log.With(zap.NamedError("handler_error", err)), "failed to record job failure", ferr)
		return
	}

	if result.DeadLettered {
		log.Warn("job dead-lettered",
			zap.String("reason", string(config.DeadLetterMaxAttempts)),
			zap.String("class", string(Classify(err))),
			zap.Error(err),
		)
		w.metrics.JobProcessed(ctx, job.Type, OutcomeDeadLettered)
		return
	}

	log.Warn("job failed, retry scheduled",
		zap.String("class", string(Classify(err))),
		zap.Time("retry_at", result.RetryAt),
		zap.Error(err),
	)
	w.metrics.JobProcessed(ctx, job.Type, OutcomeRetry)
}

// execute runs h under the job timeout and turns a panic into an error.
func (w *Worker) execute(ctx context.Context, h Handler, job *models.Job) (err error) {
	ctx, cancel := context.WithTimeout(ctx, w.opts.JobTimeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			w.log.Error("handler panic recovered",
				zap.String("job_id", job.ID),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
			err = panicError{value: rec}
		}
	}()

	return h.Handle(ctx, job)
}

// logStoreError reports a failed transition. A lost claim means the job was
// reclaimed while this worker ran it and now belongs to another claim.
func logStoreError(log *zap.Logger, msg string, err error) {
	if errors.Is(err, storage.ErrJobNotClaimed) {
		log.Warn("claim lost, result discarded", zap.Error(err))
		return
	}
	log.Error(msg, zap.Error(err))
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
