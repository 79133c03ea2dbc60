package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Guild is a tenant: an isolated top-level container of channels and
// messages. Platform snowflakes are stored as strings to stay agnostic to
// the exact 64-bit encoding the upstream gateway uses.
type Guild struct {
	ID       string `gorm:"column:id;primaryKey" json:"id"`
	Name     string `gorm:"column:name" json:"name"`
	IsActive bool   `gorm:"column:is_active;not null;default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Guild) TableName() string { return "guild" }

// Channel is a room within a guild; is_indexed is the admin opt-in flag.
type Channel struct {
	ID        string `gorm:"column:id;primaryKey" json:"id"`
	GuildID   string `gorm:"column:guild_id;not null;index" json:"guild_id"`
	Name      string `gorm:"column:name" json:"name"`
	IsIndexed bool   `gorm:"column:is_indexed;not null;default:false" json:"is_indexed"`
	IsDeleted bool   `gorm:"column:is_deleted;not null;default:false" json:"is_deleted"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Channel) TableName() string { return "channel" }

// User is a global cache of display names; the only table without guild_id,
// per §6 ("all tables carry guild_id except users").
type User struct {
	ID          string `gorm:"column:id;primaryKey" json:"id"`
	DisplayName string `gorm:"column:display_name" json:"display_name"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (User) TableName() string { return "nb_user" }

// Message is a platform message. Content is replaced with "[deleted]" on
// soft delete (I6); VectorKey/IndexedAt track the VS sync state (I2, I4).
type Message struct {
	ID        string  `gorm:"column:id;primaryKey" json:"id"`
	GuildID   string  `gorm:"column:guild_id;not null;index" json:"guild_id"`
	ChannelID string  `gorm:"column:channel_id;not null;index" json:"channel_id"`
	AuthorID  string  `gorm:"column:author_id;not null;index" json:"author_id"`
	Content   string  `gorm:"column:content" json:"content"`
	ReplyToID *string `gorm:"column:reply_to_id;index" json:"reply_to_id,omitempty"`

	Timestamp time.Time  `gorm:"column:timestamp;not null;index" json:"timestamp"`
	IsDeleted bool       `gorm:"column:is_deleted;not null;default:false;index" json:"is_deleted"`
	DeletedAt *time.Time `gorm:"column:deleted_at" json:"deleted_at,omitempty"`

	VectorKey *string    `gorm:"column:vector_key;index" json:"vector_key,omitempty"`
	IndexedAt *time.Time `gorm:"column:indexed_at" json:"indexed_at,omitempty"`

	SessionID *uuid.UUID `gorm:"type:uuid;column:session_id;index" json:"session_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now();index" json:"updated_at"`
}

func (Message) TableName() string { return "message" }

// AttachmentSourceType enumerates §3's source_type domain.
type AttachmentSourceType string

const (
	SourceTypeImage    AttachmentSourceType = "image"
	SourceTypePDF      AttachmentSourceType = "pdf"
	SourceTypeText     AttachmentSourceType = "text"
	SourceTypeMarkdown AttachmentSourceType = "markdown"
)

// AttachmentProcessingStatus enumerates §3's processing_status domain.
type AttachmentProcessingStatus string

const (
	ProcessingPending    AttachmentProcessingStatus = "pending"
	ProcessingProcessing AttachmentProcessingStatus = "processing"
	ProcessingCompleted  AttachmentProcessingStatus = "completed"
	ProcessingFailed     AttachmentProcessingStatus = "failed"
)

type Attachment struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MessageID string    `gorm:"column:message_id;not null;index" json:"message_id"`
	GuildID   string    `gorm:"column:guild_id;not null;index" json:"guild_id"`

	SourceURL  string                     `gorm:"column:source_url;not null" json:"source_url"`
	Mime       string                     `gorm:"column:mime" json:"mime"`
	Size       int64                      `gorm:"column:size" json:"size"`
	SourceType AttachmentSourceType       `gorm:"column:source_type;not null" json:"source_type"`
	Status     AttachmentProcessingStatus `gorm:"column:processing_status;not null;default:pending;index" json:"processing_status"`

	ExtractedText   *string        `gorm:"column:extracted_text" json:"extracted_text,omitempty"`
	Description     *string        `gorm:"column:description" json:"description,omitempty"`
	ProcessingError *string        `gorm:"column:processing_error" json:"processing_error,omitempty"`
	VectorKeys      []string       `gorm:"column:vector_keys;serializer:json" json:"vector_keys,omitempty"`
	IsDeleted       bool           `gorm:"column:is_deleted;not null;default:false" json:"is_deleted"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Attachment) TableName() string { return "attachment" }

// BeforeCreate assigns the primary key in application code rather than via a
// Postgres-side uuid_generate_v4() default, so inserts don't depend on the
// uuid-ossp extension and behave the same against any gorm dialect.
func (a *Attachment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

type DocumentChunk struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	AttachmentID uuid.UUID  `gorm:"type:uuid;column:attachment_id;not null;index" json:"attachment_id"`
	GuildID      string     `gorm:"column:guild_id;not null;index" json:"guild_id"`
	ChunkIndex   int        `gorm:"column:chunk_index;not null" json:"chunk_index"`
	ChunkText    string     `gorm:"column:chunk_text" json:"chunk_text"`
	ParentID     *uuid.UUID `gorm:"type:uuid;column:parent_chunk_id" json:"parent_chunk_id,omitempty"`
	VectorKey    *string    `gorm:"column:vector_key;index" json:"vector_key,omitempty"`
	IndexedAt    *time.Time `gorm:"column:indexed_at" json:"indexed_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (DocumentChunk) TableName() string { return "document_chunk" }

func (c *DocumentChunk) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

type MessageSession struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	GuildID string    `gorm:"column:guild_id;not null;index" json:"guild_id"`
	ChannelID string  `gorm:"column:channel_id;not null;index" json:"channel_id"`

	StartMessageID string `gorm:"column:start_message_id;not null" json:"start_message_id"`
	EndMessageID   string `gorm:"column:end_message_id;not null" json:"end_message_id"`
	MessageCount   int    `gorm:"column:message_count;not null" json:"message_count"`

	StartTime time.Time `gorm:"column:start_time;not null" json:"start_time"`
	EndTime   time.Time `gorm:"column:end_time;not null" json:"end_time"`

	VectorKey *string    `gorm:"column:vector_key;index" json:"vector_key,omitempty"`
	IndexedAt *time.Time `gorm:"column:indexed_at" json:"indexed_at,omitempty"`
	Summary   *string    `gorm:"column:summary" json:"summary,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now();index" json:"updated_at"`
}

func (MessageSession) TableName() string { return "message_session" }

func (s *MessageSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// AllTables lists every model for AutoMigrate, in dependency order.
func AllTables() []interface{} {
	return []interface{}{
		&Guild{},
		&User{},
		&Channel{},
		&Message{},
		&MessageSession{},
		&Attachment{},
		&DocumentChunk{},
		&JobRun{},
		&DeadLetter{},
		&RuntimeManifest{},
	}
}
