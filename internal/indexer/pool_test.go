package indexer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/convoindex/internal/broker"
	"github.com/yungbote/convoindex/internal/config"
	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/repos"
	"github.com/yungbote/convoindex/internal/repos/testutil"
)

type countingHandler struct {
	kind  string
	err   error
	calls int
}

func (h *countingHandler) JobType() string { return h.kind }
func (h *countingHandler) Handle(jc *JobContext) error {
	h.calls++
	return h.err
}

func newPoolHarness(t *testing.T) (*broker.Broker, *Registry, config.Config) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	jobRuns := repos.NewJobRunRepo(db, log)
	cfg := config.Config{JobMaxAttempts: 5, JobBackoffBase: time.Millisecond, JobBackoffCap: time.Second, DedupWindow: time.Minute, VisibilityTimeout: time.Minute, WorkerConcurrency: 2}
	b := broker.New(log, jobRuns, cfg)
	return b, NewRegistry(), cfg
}

func TestPoolDispatchAcksOnSuccess(t *testing.T) {
	b, reg, cfg := newPoolHarness(t)
	h := &countingHandler{kind: "kind.a"}
	if err := reg.Register(h); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := b.Enqueue(context.Background(), "kind.a", map[string]string{}, broker.EnqueueOptions{Priority: domain.PriorityDefault}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	log := testutil.Logger(t)
	p := NewPool(log, b, reg, cfg)
	p.pollOnce(context.Background())
	// dispatch runs in its own goroutine; give it a moment.
	time.Sleep(50 * time.Millisecond)

	if h.calls != 1 {
		t.Fatalf("expected handler invoked once, got %d", h.calls)
	}
	job, err := b.Reserve(context.Background(), "w2", []domain.JobPriority{domain.PriorityDefault}, time.Minute)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if job != nil {
		t.Fatalf("expected job acked and gone, got %+v", job)
	}
}

func TestPoolDispatchNacksOnHandlerError(t *testing.T) {
	b, reg, cfg := newPoolHarness(t)
	h := &countingHandler{kind: "kind.b", err: errors.New("boom")}
	if err := reg.Register(h); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := b.Enqueue(context.Background(), "kind.b", map[string]string{}, broker.EnqueueOptions{Priority: domain.PriorityDefault}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	log := testutil.Logger(t)
	p := NewPool(log, b, reg, cfg)
	p.pollOnce(context.Background())
	time.Sleep(50 * time.Millisecond)

	if h.calls != 1 {
		t.Fatalf("expected handler invoked once, got %d", h.calls)
	}
}
