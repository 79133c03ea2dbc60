package indexer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/convoindex/internal/broker"
	"github.com/yungbote/convoindex/internal/chunking"
	"github.com/yungbote/convoindex/internal/config"
	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/embedder"
	"github.com/yungbote/convoindex/internal/repos"
	"github.com/yungbote/convoindex/internal/repos/testutil"
	"github.com/yungbote/convoindex/internal/sessionizer"
	"github.com/yungbote/convoindex/internal/vectorstore"
)

// fakeEmbedder returns a deterministic unit vector without any network
// call, so handler tests exercise the embed-then-upsert wiring without a
// real embedding service.
type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) Dim() int                { return f.dim }
func (f *fakeEmbedder) Identity() embedder.Identity { return embedder.Identity{Name: "fake", Version: "v1"} }
func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, f.dim)
	v[0] = 1
	return v, nil
}
func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, _ := f.Embed(ctx, texts[i])
		out[i] = v
	}
	return out, nil
}

// fakeVectorStore records every call in memory, enough for handler tests to
// assert on upserts/deletes without a real Qdrant instance.
type fakeVectorStore struct {
	points       map[string]vectorstore.Point
	deletedWhere []vectorstore.Filter
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{points: make(map[string]vectorstore.Point)}
}

func (f *fakeVectorStore) EnsureNamespace(ctx context.Context) error { return nil }

func (f *fakeVectorStore) Upsert(ctx context.Context, points []vectorstore.Point) error {
	for _, p := range points {
		f.points[p.ID] = p
	}
	return nil
}

func (f *fakeVectorStore) Query(ctx context.Context, vector []float32, filter vectorstore.Filter, k int, scoreMin float64) ([]vectorstore.Match, error) {
	return nil, nil
}

func (f *fakeVectorStore) Delete(ctx context.Context, guildID string, ids []string) error {
	for _, id := range ids {
		delete(f.points, id)
	}
	return nil
}

func (f *fakeVectorStore) DeleteWhere(ctx context.Context, filter vectorstore.Filter) error {
	f.deletedWhere = append(f.deletedWhere, filter)
	for id, p := range f.points {
		if p.GuildID == filter.GuildID && (filter.ChannelID == "" || p.ChannelID == filter.ChannelID) {
			delete(f.points, id)
		}
	}
	return nil
}

func (f *fakeVectorStore) Scroll(ctx context.Context, guildID string, cursor string, limit int) ([]vectorstore.Point, string, error) {
	var out []vectorstore.Point
	for _, p := range f.points {
		if guildID == "" || p.GuildID == guildID {
			out = append(out, p)
		}
	}
	return out, "", nil
}

// fakeDescriber stands in for the Vision client in attachment tests.
type fakeDescriber struct{ description string }

func (f *fakeDescriber) Describe(ctx context.Context, image []byte, mime string) (string, error) {
	return f.description, nil
}
func (f *fakeDescriber) Close() error { return nil }

// fakeFetcher returns canned bytes for any source_url.
type fakeFetcher struct {
	body []byte
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, sourceURL string, maxBytes int64) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.body, nil
}

type testHarness struct {
	db      *gorm.DB
	deps    *Deps
	channels repos.ChannelRepo
	users    repos.UserRepo
	messages repos.MessageRepo
	sessions repos.SessionRepo
	attachments repos.AttachmentRepo
	chunks   repos.DocumentChunkRepo
	vs       *fakeVectorStore
	b        *broker.Broker
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)

	channels := repos.NewChannelRepo(db, log)
	users := repos.NewUserRepo(db, log)
	messages := repos.NewMessageRepo(db, log)
	sessions := repos.NewSessionRepo(db, log)
	attachments := repos.NewAttachmentRepo(db, log)
	chunks := repos.NewDocumentChunkRepo(db, log)
	jobRuns := repos.NewJobRunRepo(db, log)

	cfg := config.Config{
		JobMaxAttempts: 5, JobBackoffBase: time.Second, JobBackoffCap: time.Minute,
		DedupWindow: 5 * time.Minute, BackfillPageSize: 2,
		AttachmentMaxTextBytes: 1 << 20, AttachmentMaxPDFBytes: 1 << 20, AttachmentMaxImageBytes: 1 << 20,
		WorkerConcurrency: 2,
	}
	b := broker.New(log, jobRuns, cfg)
	vs := newFakeVectorStore()

	deps := &Deps{
		Log: log, Channels: channels, Users: users, Messages: messages,
		Sessions: sessions, Attachments: attachments, Chunks: chunks,
		VS: vs, Em: &fakeEmbedder{dim: 4}, Broker: b,
		Vision: &fakeDescriber{description: "a cat on a windowsill"},
		Fetch:  &fakeFetcher{body: []byte("hello world")},
		SessionParams: sessionizer.DefaultParams(),
		ChunkParams:   chunking.Params{MinTokens: 2, MaxTokens: 100},
		Cfg:           cfg,
	}
	return &testHarness{db: db, deps: deps, channels: channels, users: users, messages: messages, sessions: sessions, attachments: attachments, chunks: chunks, vs: vs, b: b}
}

// putMessage inserts a message directly (bypassing UpsertMessage's row
// lock, which SQLite has no equivalent syntax for), matching how these
// handler tests only need a message already present in RS, not the
// upsert semantics themselves.
func (h *testHarness) putMessage(t *testing.T, m *domain.Message) {
	t.Helper()
	if err := h.db.Create(m).Error; err != nil {
		t.Fatalf("insert message: %v", err)
	}
}

// newJobContext builds a JobContext around an arbitrary payload, the way
// the Pool would after decoding a claimed domain.JobRun.
func newJobContext(t *testing.T, ctx context.Context, jobType string, payload any) *JobContext {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	job := &domain.JobRun{
		ID:      uuid.New(),
		JobType: jobType,
		Payload: datatypes.JSON(raw),
	}
	return &JobContext{Ctx: ctx, Job: job, Log: testutil.Logger(t)}
}
