package vectorstore

import (
	"context"
)

// Point is one vector-store record (§4.2). GuildID is mandatory and is
// enforced by the adapter, never by callers remembering to set it right.
type Point struct {
	ID       string
	Vector   []float32
	GuildID  string
	Kind     string // "session" | "doc_chunk"
	ChannelID string
	SourceIDs []string
	Preview   string // truncated to <=1KiB by the caller (I7)
	StartTime *int64 // unix seconds, optional
	EndTime   *int64
}

// Filter constrains a Query. GuildID is mandatory; the adapter rejects any
// call where it is empty, enforcing invariant I1 at the type-system's edge.
type Filter struct {
	GuildID   string
	ChannelID string // optional
}

type Match struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// VectorStore is the tenant-scoped semantic index (§4.2). Every
// implementation MUST reject Upsert/Query/Delete calls missing a guild_id,
// per invariant I1, by returning a domain.TenantViolation error rather than
// silently proceeding.
type VectorStore interface {
	EnsureNamespace(ctx context.Context) error
	Upsert(ctx context.Context, points []Point) error
	Query(ctx context.Context, vector []float32, filter Filter, k int, scoreMin float64) ([]Match, error)
	Delete(ctx context.Context, guildID string, ids []string) error
	DeleteWhere(ctx context.Context, filter Filter) error

	// Scroll pages through stored points for the Reconciler's orphan sweep
	// (§4.8): pass guildID="" to scan every tenant. cursor is opaque; start
	// with "" and stop once the returned cursor is "".
	Scroll(ctx context.Context, guildID string, cursor string, limit int) ([]Point, string, error)
}
