package indexer

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/convoindex/internal/dbctx"
	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/jobkind"
	"github.com/yungbote/convoindex/internal/vectorstore"
)

func TestPurgeMessagesHandlerDeletesVectorAndEmptiesSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dbc := dbctx.New(ctx)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	session := &domain.MessageSession{GuildID: "g1", ChannelID: "c1", StartMessageID: "m1", EndMessageID: "m1", MessageCount: 1, StartTime: base, EndTime: base}
	if err := h.sessions.Create(dbc, session); err != nil {
		t.Fatalf("Create session: %v", err)
	}
	if err := h.sessions.MarkIndexed(dbc, session.ID, "vk-session"); err != nil {
		t.Fatalf("MarkIndexed: %v", err)
	}
	h.vs.points["vk-session"] = vectorstore.Point{ID: "vk-session", GuildID: "g1"}
	h.putMessage(t, &domain.Message{ID: "m1", GuildID: "g1", ChannelID: "c1", AuthorID: "u1", Content: "hi", Timestamp: base, SessionID: &session.ID})

	handler := &purgeMessagesHandler{d: h.deps}
	jctx := newJobContext(t, ctx, jobkind.PurgeMessageVectors, jobkind.PurgeMessagesPayload{GuildID: "g1", MessageIDs: []string{"m1"}})
	if err := handler.Handle(jctx); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if _, ok := h.vs.points["vk-session"]; ok {
		t.Fatalf("expected VS point deleted")
	}
	got, err := h.sessions.GetByID(dbc, session.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got != nil {
		t.Fatalf("expected session row deleted once emptied, got %+v", got)
	}
}

func TestPurgeChannelHandlerClearsEverything(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dbc := dbctx.New(ctx)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	session := &domain.MessageSession{GuildID: "g1", ChannelID: "c1", StartMessageID: "m1", EndMessageID: "m1", MessageCount: 1, StartTime: base, EndTime: base}
	if err := h.sessions.Create(dbc, session); err != nil {
		t.Fatalf("Create session: %v", err)
	}
	h.vs.points["vk-1"] = vectorstore.Point{ID: "vk-1", GuildID: "g1", ChannelID: "c1"}
	h.vs.points["vk-2"] = vectorstore.Point{ID: "vk-2", GuildID: "g1", ChannelID: "other"}
	h.putMessage(t, &domain.Message{ID: "m1", GuildID: "g1", ChannelID: "c1", AuthorID: "u1", Content: "hi", Timestamp: base, SessionID: &session.ID})

	handler := &purgeChannelHandler{d: h.deps}
	jctx := newJobContext(t, ctx, jobkind.PurgeChannelVectors, jobkind.PurgeChannelPayload{GuildID: "g1", ChannelID: "c1"})
	if err := handler.Handle(jctx); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if _, ok := h.vs.points["vk-1"]; ok {
		t.Fatalf("expected c1's VS point deleted")
	}
	if _, ok := h.vs.points["vk-2"]; !ok {
		t.Fatalf("expected other channel's VS point untouched")
	}

	got, err := h.sessions.GetByID(dbc, session.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got != nil {
		t.Fatalf("expected channel's session row deleted, got %+v", got)
	}

	msg, err := h.messages.GetByID(dbc, "g1", "m1")
	if err != nil || msg == nil {
		t.Fatalf("expected message row to remain: err=%v msg=%+v", err, msg)
	}
	if msg.SessionID != nil || msg.VectorKey != nil {
		t.Fatalf("expected message's session_id/vector_key cleared, got %+v", msg)
	}
}
