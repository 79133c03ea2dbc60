package broker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/convoindex/internal/config"
	"github.com/yungbote/convoindex/internal/dbctx"
	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/logger"
	"github.com/yungbote/convoindex/internal/repos"
)

// fakeJobRunRepo is a small hand-rolled in-memory stand-in, matching the
// teacher's preference for hand-written interface fakes over a mocking
// framework. It implements just enough of repos.JobRunRepo to exercise the
// broker's own logic (classification, defaulting), not the SQL behavior
// already covered by the repo's own tests.
type fakeJobRunRepo struct {
	enqueued []domain.JobRun
	ackIDs   []uuid.UUID
	nackErr  error
}

func (f *fakeJobRunRepo) Enqueue(dbc dbctx.Context, jobType string, priority domain.JobPriority, payload []byte, dedupKey *string, dedupWindow, delay time.Duration) (*domain.JobRun, error) {
	job := domain.JobRun{ID: uuid.New(), JobType: jobType, Priority: priority, Payload: payload, DedupKey: dedupKey}
	f.enqueued = append(f.enqueued, job)
	return &job, nil
}

func (f *fakeJobRunRepo) ClaimNextRunnable(dbc dbctx.Context, workerID string, classes []domain.JobPriority, visibilityTimeout time.Duration) (*domain.JobRun, error) {
	return nil, nil
}
func (f *fakeJobRunRepo) Ack(dbc dbctx.Context, id uuid.UUID) error {
	f.ackIDs = append(f.ackIDs, id)
	return nil
}
func (f *fakeJobRunRepo) Nack(dbc dbctx.Context, id uuid.UUID, reason string, maxAttempts int, backoffBase, backoffCap time.Duration) error {
	return f.nackErr
}
func (f *fakeJobRunRepo) SweepExpiredLeases(dbc dbctx.Context, backoffBase time.Duration) (int64, error) {
	return 0, nil
}
func (f *fakeJobRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.JobRun, error) {
	return nil, nil
}
func (f *fakeJobRunRepo) CountByStatus(dbc dbctx.Context, status domain.JobStatus) (int64, error) {
	return 0, nil
}

var _ repos.JobRunRepo = (*fakeJobRunRepo)(nil)

func TestBrokerEnqueueDefaultsPriority(t *testing.T) {
	log, _ := logger.New("test")
	fake := &fakeJobRunRepo{}
	b := New(log, fake, config.Config{})

	if _, err := b.Enqueue(context.Background(), "sessionize", map[string]string{"a": "b"}, EnqueueOptions{}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if len(fake.enqueued) != 1 {
		t.Fatalf("expected 1 enqueued job, got %d", len(fake.enqueued))
	}
	if fake.enqueued[0].Priority != domain.PriorityDefault {
		t.Fatalf("expected default priority when unset, got %s", fake.enqueued[0].Priority)
	}
}

func TestBrokerEnqueuePropagatesExplicitPriorityAndKey(t *testing.T) {
	log, _ := logger.New("test")
	fake := &fakeJobRunRepo{}
	b := New(log, fake, config.Config{})

	key := "sz:channel-1"
	if _, err := b.Enqueue(context.Background(), "sessionize", map[string]string{}, EnqueueOptions{Priority: domain.PriorityHigh, Key: &key}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	got := fake.enqueued[0]
	if got.Priority != domain.PriorityHigh {
		t.Fatalf("expected high priority, got %s", got.Priority)
	}
	if got.DedupKey == nil || *got.DedupKey != key {
		t.Fatalf("expected dedup key propagated, got %v", got.DedupKey)
	}
}

func TestBrokerAckDelegatesToRepo(t *testing.T) {
	log, _ := logger.New("test")
	fake := &fakeJobRunRepo{}
	b := New(log, fake, config.Config{})

	id := uuid.New()
	if err := b.Ack(context.Background(), id); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if len(fake.ackIDs) != 1 || fake.ackIDs[0] != id {
		t.Fatalf("expected Ack to delegate the id to the repo, got %v", fake.ackIDs)
	}
}
