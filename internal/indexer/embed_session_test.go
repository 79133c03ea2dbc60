package indexer

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/convoindex/internal/dbctx"
	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/jobkind"
)

func TestEmbedSessionHandlerUpsertsAndMarksIndexed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dbc := dbctx.New(ctx)

	if err := h.channels.Upsert(dbc, &domain.Channel{ID: "c1", GuildID: "g1", Name: "general"}); err != nil {
		t.Fatalf("Upsert channel: %v", err)
	}
	if err := h.users.Upsert(dbc, &domain.User{ID: "u1", DisplayName: "Alice"}); err != nil {
		t.Fatalf("Upsert user: %v", err)
	}

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	session := &domain.MessageSession{GuildID: "g1", ChannelID: "c1", StartMessageID: "m1", EndMessageID: "m2", MessageCount: 2, StartTime: base, EndTime: base.Add(time.Minute)}
	if err := h.sessions.Create(dbc, session); err != nil {
		t.Fatalf("Create session: %v", err)
	}
	for i, id := range []string{"m1", "m2"} {
		h.putMessage(t, &domain.Message{ID: id, GuildID: "g1", ChannelID: "c1", AuthorID: "u1", Content: "hi " + id, Timestamp: base.Add(time.Duration(i) * time.Minute), SessionID: &session.ID})
	}

	handler := &embedSessionHandler{d: h.deps}
	jctx := newJobContext(t, ctx, jobkind.EmbedSession, jobkind.EmbedSessionPayload{GuildID: "g1", SessionID: session.ID.String()})
	if err := handler.Handle(jctx); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	got, err := h.sessions.GetByID(dbc, session.ID)
	if err != nil || got == nil || got.VectorKey == nil {
		t.Fatalf("expected session marked indexed: err=%v got=%+v", err, got)
	}
	if _, ok := h.vs.points[*got.VectorKey]; !ok {
		t.Fatalf("expected a VS point for vector_key %s", *got.VectorKey)
	}
}

func TestEmbedSessionHandlerNoOpWhenSessionGone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	handler := &embedSessionHandler{d: h.deps}
	jctx := newJobContext(t, ctx, jobkind.EmbedSession, jobkind.EmbedSessionPayload{GuildID: "g1", SessionID: uuid.New().String()})
	if err := handler.Handle(jctx); err != nil {
		t.Fatalf("expected no-op for a missing session, got %v", err)
	}
}
