package sessionizer

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/convoindex/internal/domain"
)

func msg(id string, t time.Time, replyTo *string) domain.Message {
	return domain.Message{ID: id, Content: "message " + id, Timestamp: t, ReplyToID: replyTo}
}

func ptr(s string) *string { return &s }

func TestTemporalSplitByTimeGap(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	messages := []domain.Message{
		msg("1", base, nil),
		msg("2", base.Add(time.Minute), nil),
		msg("3", base.Add(30*time.Minute), nil), // exceeds the 15-minute gap
		msg("4", base.Add(31*time.Minute), nil),
	}

	params := DefaultParams()
	out, err := Sessionize(context.Background(), messages, "general", params, nil)
	if err != nil {
		t.Fatalf("Sessionize: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 sessions, got %d: %+v", len(out), out)
	}
	if out[0].StartMessageID != "1" || out[0].EndMessageID != "2" {
		t.Fatalf("unexpected first session: %+v", out[0])
	}
	if out[1].StartMessageID != "3" || out[1].EndMessageID != "4" {
		t.Fatalf("unexpected second session: %+v", out[1])
	}
}

func TestTemporalSplitReplyChainOverridesGap(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	messages := []domain.Message{
		msg("1", base, nil),
		msg("2", base.Add(time.Minute), nil),
		// message 3 arrives well past the time gap, but replies into the
		// still-open session, so it must stay merged (§4.5).
		msg("3", base.Add(time.Hour), ptr("1")),
	}
	params := DefaultParams()
	out, err := Sessionize(context.Background(), messages, "general", params, nil)
	if err != nil {
		t.Fatalf("Sessionize: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected a single merged session, got %d: %+v", len(out), out)
	}
	if out[0].MessageCount != 3 {
		t.Fatalf("expected 3 messages in the merged session, got %d", out[0].MessageCount)
	}
}

func TestSessionizeSkipsSingleMessageSessions(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	messages := []domain.Message{
		msg("1", base, nil),
		msg("2", base.Add(time.Hour), nil), // isolated, gap exceeded on both sides
		msg("3", base.Add(2*time.Hour), nil),
	}
	params := DefaultParams()
	out, err := Sessionize(context.Background(), messages, "general", params, nil)
	if err != nil {
		t.Fatalf("Sessionize: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected single-message blocks to be skipped, got %d: %+v", len(out), out)
	}
}

func TestSessionizeIsDeterministic(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	messages := []domain.Message{
		msg("1", base, nil),
		msg("2", base.Add(time.Minute), nil),
		msg("3", base.Add(2*time.Minute), nil),
	}
	params := DefaultParams()
	a, err := Sessionize(context.Background(), messages, "general", params, nil)
	if err != nil {
		t.Fatalf("Sessionize a: %v", err)
	}
	b, err := Sessionize(context.Background(), messages, "general", params, nil)
	if err != nil {
		t.Fatalf("Sessionize b: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("non-deterministic session count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].StartMessageID != b[i].StartMessageID || a[i].EndMessageID != b[i].EndMessageID {
			t.Fatalf("non-deterministic session bounds at %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestTemporalSplitRespectsTokenBudget(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	big := ""
	for i := 0; i < 400; i++ {
		big += "word "
	}
	messages := []domain.Message{
		{ID: "1", Content: big, Timestamp: base},
		{ID: "2", Content: "short", Timestamp: base.Add(time.Minute)},
	}
	params := DefaultParams()
	out, err := Sessionize(context.Background(), messages, "general", params, nil)
	if err != nil {
		t.Fatalf("Sessionize: %v", err)
	}
	// The first message alone already exceeds the token budget, so the
	// second message starts a new block; both end up as lone-message blocks
	// and are dropped by the "fewer than 2 messages" skip rule.
	if len(out) != 0 {
		t.Fatalf("expected both oversized blocks to be skipped as single-message sessions, got %+v", out)
	}
}

func TestEnrichProducesCanonicalHeader(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 30, 0, 0, time.UTC)
	messages := []domain.Message{
		{ID: "1", AuthorID: "u1", Content: "hi", Timestamp: base},
	}
	text := Enrich("general", messages, map[string]string{"u1": "alice"})
	want := "Conversation in #general:\n[alice @ 2026-01-01 12:30]: hi\n"
	if text != want {
		t.Fatalf("unexpected enrichment:\ngot:  %q\nwant: %q", text, want)
	}
}
