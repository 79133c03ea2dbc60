package indexer

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/convoindex/internal/dbctx"
	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/jobkind"
)

func TestReindexHandlerTouchesSessionAndEnqueuesEmbed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dbc := dbctx.New(ctx)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	session := &domain.MessageSession{GuildID: "g1", ChannelID: "c1", StartMessageID: "m1", EndMessageID: "m2", MessageCount: 2, StartTime: base, EndTime: base.Add(time.Minute)}
	if err := h.sessions.Create(dbc, session); err != nil {
		t.Fatalf("Create session: %v", err)
	}
	h.putMessage(t, &domain.Message{ID: "m1", GuildID: "g1", ChannelID: "c1", AuthorID: "u1", Content: "edited", Timestamp: base, SessionID: &session.ID})

	handler := &reindexHandler{d: h.deps}
	jctx := newJobContext(t, ctx, jobkind.ReindexSessionFor, jobkind.ReindexPayload{GuildID: "g1", MessageID: "m1"})
	if err := handler.Handle(jctx); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	job, err := h.b.Reserve(ctx, "w1", []domain.JobPriority{domain.PriorityDefault}, time.Minute)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if job == nil || job.JobType != jobkind.EmbedSession {
		t.Fatalf("expected an embed_session job, got %+v", job)
	}
}

func TestReindexHandlerSessionizesWhenMessageHasNoSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h.putMessage(t, &domain.Message{ID: "m1", GuildID: "g1", ChannelID: "c1", AuthorID: "u1", Content: "hi", Timestamp: base})

	handler := &reindexHandler{d: h.deps}
	jctx := newJobContext(t, ctx, jobkind.ReindexSessionFor, jobkind.ReindexPayload{GuildID: "g1", MessageID: "m1"})
	if err := handler.Handle(jctx); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	job, err := h.b.Reserve(ctx, "w1", []domain.JobPriority{domain.PriorityDefault}, time.Minute)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if job == nil || job.JobType != jobkind.Sessionize {
		t.Fatalf("expected a sessionize job, got %+v", job)
	}
}
