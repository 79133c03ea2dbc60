package gateway

import "time"

// Event shapes mirror §6's inbound event stream: at minimum type, guild_id,
// actor id, timestamp, plus type-specific fields. Delivery is at-least-once
// with unique event ids for idempotent processing.

type MessageCreateEvent struct {
	EventID     string
	GuildID     string
	ChannelID   string
	MessageID   string
	AuthorID    string
	AuthorName  string
	ChannelName string
	Content     string
	ReplyToID   *string
	Timestamp   time.Time
	IsBot       bool
	Attachments []AttachmentMeta
}

type AttachmentMeta struct {
	SourceURL  string
	Mime       string
	Size       int64
	SourceType string // image|pdf|text|markdown
}

type MessageEditEvent struct {
	EventID   string
	GuildID   string
	ChannelID string
	MessageID string
	NewContent string
	IsBot     bool
}

type MessageDeleteEvent struct {
	EventID   string
	GuildID   string
	ChannelID string
	MessageID string
}

type BulkDeleteEvent struct {
	EventID    string
	GuildID    string
	ChannelID  string
	MessageIDs []string
}

type ChannelIndexToggleEvent struct {
	EventID   string
	GuildID   string
	ChannelID string
	Indexed   bool
}

type ChannelDeleteEvent struct {
	EventID   string
	GuildID   string
	ChannelID string
}

type AttachmentAttachedEvent struct {
	EventID      string
	GuildID      string
	MessageID    string
	SourceURL    string
	Mime         string
	Size         int64
	SourceType   string
}
