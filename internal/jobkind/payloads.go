// Package jobkind defines the job_type identifiers and JSON payload shapes
// exchanged between the Gateway Ingestor (producer) and the Indexing Worker
// (consumer) through the Job Broker, per §4.7's job kind table.
package jobkind

const (
	Sessionize           = "sessionize"
	EmbedSession         = "embed_session"
	ReindexSessionFor    = "reindex_session_for"
	PurgeMessageVectors  = "purge_message_vectors"
	PurgeChannelVectors  = "purge_channel_vectors"
	BackfillChannel      = "backfill_channel"
	IngestAttachment     = "ingest_attachment"
)

// SessionizePayload triggers re-sessionizing the window around a message
// (or the whole channel tail when Around is empty).
type SessionizePayload struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	Around    string `json:"around,omitempty"`
}

// EmbedSessionPayload requests an embedding + upsert for one session.
type EmbedSessionPayload struct {
	GuildID   string `json:"guild_id"`
	SessionID string `json:"session_id"`
}

// ReindexPayload requests the owning session of a message be recomputed
// and re-embedded, covering edits that land inside an already-indexed span.
type ReindexPayload struct {
	GuildID   string `json:"guild_id"`
	MessageID string `json:"message_id"`
}

// PurgeMessagesPayload requests VS deletion of any points referencing these
// message ids (I3, I6).
type PurgeMessagesPayload struct {
	GuildID    string   `json:"guild_id"`
	MessageIDs []string `json:"message_ids"`
}

// PurgeChannelPayload requests VS deletion of every point tagged with this
// channel, used both for channel deletion and for indexing-toggled-off.
type PurgeChannelPayload struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
}

// BackfillPayload requests a full historical sessionize+embed pass over a
// channel that was just toggled into indexing.
type BackfillPayload struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
}

// IngestAttachmentPayload requests extraction, chunking and embedding of one
// attachment.
type IngestAttachmentPayload struct {
	AttachmentID string `json:"attachment_id"`
}
