package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/yungbote/convoindex/internal/config"
	"github.com/yungbote/convoindex/internal/dbctx"
	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/logger"
	"github.com/yungbote/convoindex/internal/repos"
)

// EnqueueOptions mirrors the enqueue(...) contract of §4.3.
type EnqueueOptions struct {
	Key      *string
	Priority domain.JobPriority
	Delay    time.Duration
}

// Broker is the Job Broker (§4.3): a durable, priority, at-least-once work
// queue on top of JobRunRepo, with a cron-scheduled lease sweeper.
type Broker struct {
	log  *logger.Logger
	repo repos.JobRunRepo
	cfg  config.Config
	rdb  *redis.Client
}

func New(log *logger.Logger, repo repos.JobRunRepo, cfg config.Config) *Broker {
	return &Broker{log: log.With("component", "JobBroker"), repo: repo, cfg: cfg}
}

// WithRedisDedup attaches a Redis client used as the fast-path store for the
// dedup-key coalescing window (§4.3). When set, a dedup key's winning job ID
// is cached under a "SET NX EX dedupWindow" token so repeat enqueues from any
// GI instance within the window short-circuit before touching the RS at all;
// the RS-side coalescing query in JobRunRepo.Enqueue remains the fallback
// path used whenever rdb is nil (tests, or Redis unavailable at startup).
func (b *Broker) WithRedisDedup(rdb *redis.Client) *Broker {
	b.rdb = rdb
	return b
}

func (b *Broker) Enqueue(ctx context.Context, kind string, payload any, opts EnqueueOptions) (uuid.UUID, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, domain.Permanent("broker.enqueue", "marshal payload", err)
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityDefault
	}

	if b.rdb != nil && opts.Key != nil && *opts.Key != "" {
		return b.enqueueWithRedisDedup(ctx, kind, opts, raw)
	}

	job, err := b.repo.Enqueue(dbctx.New(ctx), kind, opts.Priority, raw, opts.Key, b.cfg.DedupWindow, opts.Delay)
	if err != nil {
		return uuid.Nil, domain.Transient("broker.enqueue", "insert job", err)
	}
	return job.ID, nil
}

func (b *Broker) enqueueWithRedisDedup(ctx context.Context, kind string, opts EnqueueOptions, raw []byte) (uuid.UUID, error) {
	redisKey := "convoindex:dedup:" + kind + ":" + *opts.Key

	if cached, err := b.rdb.Get(ctx, redisKey).Result(); err == nil && cached != "" {
		if id, parseErr := uuid.Parse(cached); parseErr == nil {
			return id, nil
		}
	} else if err != nil && err != redis.Nil {
		b.log.Warn("redis dedup lookup failed, falling back to RS coalescing", "error", err)
	}

	// RS-side dedupKey is still passed through: if two GI instances race
	// the Redis GET above, the RS's own dedup window catches the duplicate.
	job, err := b.repo.Enqueue(dbctx.New(ctx), kind, opts.Priority, raw, opts.Key, b.cfg.DedupWindow, opts.Delay)
	if err != nil {
		return uuid.Nil, domain.Transient("broker.enqueue", "insert job", err)
	}

	if err := b.rdb.SetNX(ctx, redisKey, job.ID.String(), b.cfg.DedupWindow).Err(); err != nil {
		b.log.Warn("redis dedup cache write failed", "error", err)
	}
	return job.ID, nil
}

func (b *Broker) Reserve(ctx context.Context, workerID string, classes []domain.JobPriority, visibilityTimeout time.Duration) (*domain.JobRun, error) {
	job, err := b.repo.ClaimNextRunnable(dbctx.New(ctx), workerID, classes, visibilityTimeout)
	if err != nil {
		return nil, domain.Transient("broker.reserve", "claim job", err)
	}
	return job, nil
}

func (b *Broker) Ack(ctx context.Context, id uuid.UUID) error {
	return b.repo.Ack(dbctx.New(ctx), id)
}

func (b *Broker) Nack(ctx context.Context, id uuid.UUID, reason string) error {
	return b.repo.Nack(dbctx.New(ctx), id, reason, b.cfg.JobMaxAttempts, b.cfg.JobBackoffBase, b.cfg.JobBackoffCap)
}

// StartLeaseSweeper runs lease_expired_sweeper (§4.3) on a cron schedule,
// using the teacher's robfig/cron dependency (the same library the original
// repo uses for its Discord-event scheduled jobs).
func (b *Broker) StartLeaseSweeper(ctx context.Context) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc("@every 30s", func() {
		n, err := b.repo.SweepExpiredLeases(dbctx.New(ctx), b.cfg.JobBackoffBase)
		if err != nil {
			b.log.Warn("lease sweep failed", "error", err)
			return
		}
		if n > 0 {
			b.log.Info("swept expired leases", "count", n)
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
