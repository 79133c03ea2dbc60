package indexer

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/jobkind"
)

func TestBackfillHandlerEnqueuesOnePagePerBatch(t *testing.T) {
	h := newHarness(t) // BackfillPageSize: 2
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"m1", "m2", "m3"} {
		h.putMessage(t, &domain.Message{ID: id, GuildID: "g1", ChannelID: "c1", AuthorID: "u1", Content: "hi", Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}

	handler := &backfillHandler{d: h.deps}
	jctx := newJobContext(t, ctx, jobkind.BackfillChannel, jobkind.BackfillPayload{GuildID: "g1", ChannelID: "c1"})
	if err := handler.Handle(jctx); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	var jobs []*domain.JobRun
	for {
		job, err := h.b.Reserve(ctx, "w1", []domain.JobPriority{domain.PriorityLow}, time.Minute)
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}
		if job == nil {
			break
		}
		jobs = append(jobs, job)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 sessionize jobs (pages of 2 over 3 messages), got %d", len(jobs))
	}
	for _, j := range jobs {
		if j.JobType != jobkind.Sessionize {
			t.Fatalf("expected sessionize job, got %s", j.JobType)
		}
	}
}
