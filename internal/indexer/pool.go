package indexer

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/yungbote/convoindex/internal/broker"
	"github.com/yungbote/convoindex/internal/config"
	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/logger"
)

// Pool is the Indexing Worker's dispatch loop (§4.7), grounded on the
// teacher's jobs/worker.Worker: a 1-second polling ticker claims ready jobs
// and dispatches them to a registered Handler. Unlike the teacher's fixed
// goroutine-per-slot pool, claiming and handling are decoupled by a
// semaphore.Weighted (§5's bound on `P` concurrent job executors), so a
// single poller can keep claiming work and hand each job to its own
// short-lived goroutine once a slot frees up.
type Pool struct {
	log      *logger.Logger
	broker   *broker.Broker
	registry *Registry
	sem      *semaphore.Weighted

	visibilityTimeout time.Duration
	classes           []domain.JobPriority
}

func NewPool(log *logger.Logger, b *broker.Broker, registry *Registry, cfg config.Config) *Pool {
	concurrency := cfg.WorkerConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{
		log:               log.With("component", "IndexingWorker"),
		broker:            b,
		registry:          registry,
		sem:               semaphore.NewWeighted(int64(concurrency)),
		visibilityTimeout: cfg.VisibilityTimeout,
		classes:           []domain.JobPriority{domain.PriorityHigh, domain.PriorityDefault, domain.PriorityLow},
	}
}

// Start runs the poller until ctx is cancelled. It blocks; callers run it in
// its own goroutine.
func (p *Pool) Start(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("indexing worker stopped")
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Pool) pollOnce(ctx context.Context) {
	if !p.sem.TryAcquire(1) {
		return
	}

	job, err := p.broker.Reserve(ctx, workerID(), p.classes, p.visibilityTimeout)
	if err != nil {
		p.sem.Release(1)
		p.log.Warn("reserve failed", "error", err)
		return
	}
	if job == nil {
		p.sem.Release(1)
		return
	}

	go func() {
		defer p.sem.Release(1)
		p.dispatch(ctx, job)
	}()
}

func (p *Pool) dispatch(ctx context.Context, job *domain.JobRun) {
	jc := &JobContext{Ctx: ctx, Job: job, Log: p.log.With("job_id", job.ID.String(), "job_type", job.JobType)}

	h, ok := p.registry.Get(job.JobType)
	if !ok {
		p.nack(ctx, job, fmt.Sprintf("no handler registered for job_type=%s", job.JobType))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			jc.Log.Error("handler panicked", "panic", r)
			p.nack(ctx, job, "panic")
		}
	}()

	if err := h.Handle(jc); err != nil {
		p.nack(ctx, job, err.Error())
		return
	}
	if err := p.broker.Ack(ctx, job.ID); err != nil {
		jc.Log.Warn("ack failed", "error", err)
	}
}

func (p *Pool) nack(ctx context.Context, job *domain.JobRun, reason string) {
	if err := p.broker.Nack(ctx, job.ID, reason); err != nil {
		p.log.Warn("nack failed", "job_id", job.ID, "error", err)
	}
}

func workerID() string {
	return fmt.Sprintf("iw-%d", time.Now().UnixNano())
}
