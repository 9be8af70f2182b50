package pool

import (
	"context"
	"sync"
	"time"

	"github.com/joshu-sajeev/hookqueue/internal/storage"
	"github.com/joshu-sajeev/hookqueue/internal/worker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Reclaimer returns orphaned claims to the queue and dead-letters queued jobs
// of a type outside the known set.
type Reclaimer interface {
	ReclaimStale(ctx context.Context, threshold time.Duration) (storage.ReclaimResult, error)
	DeadLetterUnknownTypes(ctx context.Context, known []string, grace time.Duration) (int, error)
}

// Pruner drops expired rows, such as old inbound dedupe entries.
type Pruner interface {
	Prune(ctx context.Context) (int64, error)
}

type Options struct {
	StaleAfter       time.Duration
	ReclaimInterval  time.Duration
	// KnownTypes is every job type that can be enqueued. Leaving it empty
	// disables the unknown-type sweep.
	KnownTypes       []string
	UnknownTypeGrace time.Duration
}

// WorkerPool runs daemon workers side by side with a janitor that reclaims
// stale claims, retires jobs nobody can run and prunes expired dedupe entries.
type WorkerPool struct {
	workers   []*worker.Worker
	reclaimer Reclaimer
	pruners   []Pruner
	opts      Options
	log       *zap.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewWorkerPool(workers []*worker.Worker, reclaimer Reclaimer, opts Options, log *zap.Logger, pruners ...Pruner) *WorkerPool {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 5 * time.Minute
	}
	if opts.ReclaimInterval <= 0 {
		opts.ReclaimInterval = 30 * time.Second
	}
	if opts.UnknownTypeGrace <= 0 {
		opts.UnknownTypeGrace = 15 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		workers:   workers,
		reclaimer: reclaimer,
		pruners:   pruners,
		opts:      opts,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches every worker and the janitor. It returns immediately.
func (p *WorkerPool) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		g, ctx := errgroup.WithContext(p.ctx)
		for _, w := range p.workers {
			g.Go(func() error {
				w.RunDaemon(ctx)
				return nil
			})
		}
		g.Go(func() error {
			p.janitor(ctx)
			return nil
		})
		_ = g.Wait()
	}()

	p.log.Info("worker pool started",
		zap.Int("workers", len(p.workers)),
		zap.Duration("stale_after", p.opts.StaleAfter),
		zap.Duration("reclaim_interval", p.opts.ReclaimInterval),
	)
}

func (p *WorkerPool) janitor(ctx context.Context) {
	ticker := time.NewTicker(p.opts.ReclaimInterval)
	defer ticker.Stop()

	p.sweep(ctx)
	for {
		select {
		case <-ticker.C:
			p.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// sweep runs one janitor pass.
func (p *WorkerPool) sweep(ctx context.Context) {
	if p.reclaimer != nil {
		res, err := p.reclaimer.ReclaimStale(ctx, p.opts.StaleAfter)
		switch {
		case err != nil && ctx.Err() == nil:
			p.log.Error("reclaim stale jobs", zap.Error(err))
		case res.Requeued > 0 || res.DeadLettered > 0:
			p.log.Warn("reclaimed stale jobs",
				zap.Int("requeued", res.Requeued),
				zap.Int("dead_lettered", res.DeadLettered),
			)
		}

		if len(p.opts.KnownTypes) > 0 {
			n, err := p.reclaimer.DeadLetterUnknownTypes(ctx, p.opts.KnownTypes, p.opts.UnknownTypeGrace)
			switch {
			case err != nil && ctx.Err() == nil:
				p.log.Error("dead-letter unknown job types", zap.Error(err))
			case n > 0:
				p.log.Warn("dead-lettered jobs of unknown type", zap.Int("dead_lettered", n))
			}
		}
	}

	for _, pr := range p.pruners {
		n, err := pr.Prune(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.log.Error("prune expired entries", zap.Error(err))
			}
			continue
		}
		if n > 0 {
			p.log.Info("pruned expired entries", zap.Int64("rows", n))
		}
	}
}

// Stop signals every worker and waits for in-flight jobs to finish.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
	p.log.Info("worker pool stopped")
}

// Run starts the pool and blocks until ctx is canceled, then stops it.
func (p *WorkerPool) Run(ctx context.Context) {
	p.Start()
	<-ctx.Done()
	p.Stop()
}
