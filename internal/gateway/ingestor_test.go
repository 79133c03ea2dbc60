package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/convoindex/internal/broker"
	"github.com/yungbote/convoindex/internal/config"
	"github.com/yungbote/convoindex/internal/dbctx"
	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/jobkind"
	"github.com/yungbote/convoindex/internal/repos"
	"github.com/yungbote/convoindex/internal/repos/testutil"
)

// OnMessageCreate's upsert_message path takes a row lock, so these tests run
// against a real Postgres instance, matching the gating the repo-level
// locking tests already use.
func newIngestor(t *testing.T) (*Ingestor, repos.MessageRepo, repos.ChannelRepo, *broker.Broker) {
	t.Helper()
	db := testutil.PostgresDB(t)
	log := testutil.Logger(t)

	guilds := repos.NewGuildRepo(db, log)
	channels := repos.NewChannelRepo(db, log)
	users := repos.NewUserRepo(db, log)
	messages := repos.NewMessageRepo(db, log)
	attachments := repos.NewAttachmentRepo(db, log)
	jobRuns := repos.NewJobRunRepo(db, log)

	b := broker.New(log, jobRuns, config.Config{JobMaxAttempts: 5, JobBackoffBase: time.Second, JobBackoffCap: time.Minute, DedupWindow: 5 * time.Minute})
	return New(log, guilds, channels, users, messages, attachments, b), messages, channels, b
}

func TestIngestorMessageCreateEnqueuesSessionizeOnlyWhenIndexed(t *testing.T) {
	ing, messages, channels, b := newIngestor(t)
	ctx := context.Background()

	err := ing.OnMessageCreate(ctx, MessageCreateEvent{
		GuildID: "g1", ChannelID: "c1", ChannelName: "general",
		MessageID: "m1", AuthorID: "u1", AuthorName: "alice",
		Content: "hello world", Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("OnMessageCreate: %v", err)
	}

	got, err := messages.GetByID(dbctx.Background(), "g1", "m1")
	if err != nil || got == nil {
		t.Fatalf("expected message persisted: err=%v got=%v", err, got)
	}

	job, err := b.Reserve(ctx, "w1", []domain.JobPriority{domain.PriorityDefault}, time.Minute)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if job != nil {
		t.Fatalf("expected no sessionize job for a non-indexed channel, got %+v", job)
	}

	if err := channels.SetIndexed(dbctx.Background(), "g1", "c1", true); err != nil {
		t.Fatalf("SetIndexed: %v", err)
	}
	if err := ing.OnMessageCreate(ctx, MessageCreateEvent{
		GuildID: "g1", ChannelID: "c1", ChannelName: "general",
		MessageID: "m2", AuthorID: "u1", AuthorName: "alice",
		Content: "second message", Timestamp: time.Now(),
	}); err != nil {
		t.Fatalf("OnMessageCreate 2: %v", err)
	}

	job, err = b.Reserve(ctx, "w1", []domain.JobPriority{domain.PriorityDefault}, time.Minute)
	if err != nil {
		t.Fatalf("reserve 2: %v", err)
	}
	if job == nil || job.JobType != jobkind.Sessionize {
		t.Fatalf("expected a sessionize job once the channel is indexed, got %+v", job)
	}
}

func TestIngestorMessageDeleteEnqueuesPurgeOnlyWhenIndexed(t *testing.T) {
	ing, messages, _, b := newIngestor(t)
	ctx := context.Background()

	if err := ing.OnMessageCreate(ctx, MessageCreateEvent{
		GuildID: "g1", ChannelID: "c1", MessageID: "m1", AuthorID: "u1", Content: "x", Timestamp: time.Now(),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := messages.MarkIndexed(dbctx.Background(), "m1", "vk-1"); err != nil {
		t.Fatalf("MarkIndexed: %v", err)
	}

	if err := ing.OnMessageDelete(ctx, MessageDeleteEvent{GuildID: "g1", ChannelID: "c1", MessageID: "m1"}); err != nil {
		t.Fatalf("OnMessageDelete: %v", err)
	}

	job, err := b.Reserve(ctx, "w1", []domain.JobPriority{domain.PriorityHigh}, time.Minute)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if job == nil || job.JobType != jobkind.PurgeMessageVectors {
		t.Fatalf("expected a purge_message_vectors job, got %+v", job)
	}

	got, err := messages.GetByID(dbctx.Background(), "g1", "m1")
	if err != nil || got == nil {
		t.Fatalf("expected tombstone row to remain: err=%v got=%v", err, got)
	}
	if !got.IsDeleted || got.Content != "[deleted]" {
		t.Fatalf("expected redacted tombstone, got %+v", got)
	}
}

func TestIngestorChannelIndexToggleOff(t *testing.T) {
	ing, _, channels, b := newIngestor(t)
	ctx := context.Background()

	if err := channels.Upsert(dbctx.Background(), &domain.Channel{ID: "c1", GuildID: "g1", Name: "general"}); err != nil {
		t.Fatalf("Upsert channel: %v", err)
	}
	if err := channels.SetIndexed(dbctx.Background(), "g1", "c1", true); err != nil {
		t.Fatalf("SetIndexed: %v", err)
	}

	if err := ing.OnChannelIndexToggle(ctx, ChannelIndexToggleEvent{GuildID: "g1", ChannelID: "c1", Indexed: false}); err != nil {
		t.Fatalf("OnChannelIndexToggle: %v", err)
	}

	c, err := channels.GetByID(dbctx.Background(), "g1", "c1")
	if err != nil || c == nil || c.IsIndexed {
		t.Fatalf("expected channel to be un-indexed: err=%v c=%+v", err, c)
	}

	job, err := b.Reserve(ctx, "w1", []domain.JobPriority{domain.PriorityHigh}, time.Minute)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if job == nil || job.JobType != jobkind.PurgeChannelVectors {
		t.Fatalf("expected purge_channel_vectors job, got %+v", job)
	}
}
