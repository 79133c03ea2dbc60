package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// JobPriority is one of the three broker classes (§4.3).
type JobPriority string

const (
	PriorityHigh    JobPriority = "high"
	PriorityDefault JobPriority = "default"
	PriorityLow     JobPriority = "low"
)

// priorityRank gives the ORDER BY value used by ClaimNextRunnable: lower
// ranks first, so high < default < low.
func (p JobPriority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityDefault:
		return 1
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

func PriorityRank(p JobPriority) int { return p.rank() }

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobRunning    JobStatus = "running"
	JobFailed     JobStatus = "failed"
	JobDeadletter JobStatus = "deadletter"
)

// JobRun is a durable record in the priority work queue (§4.3). Modeled on
// the teacher's job_run table (data/repos/jobs/job_run.go), extended with
// Priority, DedupKey and LeaseExpiresAt to implement the visibility-timeout
// and priority-class semantics the teacher's single-queue polling loop
// did not need.
type JobRun struct {
	ID       uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	JobType  string      `gorm:"column:job_type;not null;index" json:"job_type"`
	Priority JobPriority `gorm:"column:priority;not null;index" json:"priority"`
	Status   JobStatus   `gorm:"column:status;not null;index" json:"status"`

	DedupKey *string `gorm:"column:dedup_key;index" json:"dedup_key,omitempty"`

	Attempts    int        `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastError   string     `gorm:"column:last_error" json:"last_error,omitempty"`
	LastErrorAt *time.Time `gorm:"column:last_error_at" json:"last_error_at,omitempty"`

	AvailableAt    time.Time  `gorm:"column:available_at;not null;index" json:"available_at"`
	LeaseExpiresAt *time.Time `gorm:"column:lease_expires_at;index" json:"lease_expires_at,omitempty"`
	LockedBy       *string    `gorm:"column:locked_by" json:"locked_by,omitempty"`

	Payload datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (JobRun) TableName() string { return "job_run" }

// BeforeCreate assigns the primary key in Go, so inserts don't depend on a
// Postgres-side uuid_generate_v4() default (and the uuid-ossp extension it
// requires) and behave the same under the in-memory SQLite test store.
func (j *JobRun) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

// DeadLetter holds permanently-failed and attempts-exhausted jobs, one
// bucket per kind as required by §6.
type DeadLetter struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OriginJobID uuid.UUID      `gorm:"type:uuid;column:origin_job_id;index" json:"origin_job_id"`
	JobType     string         `gorm:"column:job_type;not null;index" json:"job_type"`
	Reason      string         `gorm:"column:reason" json:"reason"`
	Payload     datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (DeadLetter) TableName() string { return "job_dead_letter" }

func (d *DeadLetter) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// RuntimeManifest is the single-row record of which embedder identity
// produced the vectors currently in VS (SPEC_FULL §5). Checked against the
// configured embedder at every process startup; a mismatch is a fatal
// config error rather than silently mixing incompatible vector spaces.
type RuntimeManifest struct {
	ID              int    `gorm:"column:id;primaryKey"`
	EmbedderName    string `gorm:"column:embedder_name;not null"`
	EmbedderVersion string `gorm:"column:embedder_version;not null"`
	VectorDim       int    `gorm:"column:vector_dim;not null"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (RuntimeManifest) TableName() string { return "runtime_manifest" }
