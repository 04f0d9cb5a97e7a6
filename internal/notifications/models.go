package notifications

import "time"

const (
	TypeMessage      = "message"
	TypeAnnouncement = "announcement"
)

// Notification is a per-recipient fan-out record. SourceID identifies the
// originating entity (message or post), and the unique (recipient, source)
// index makes creation idempotent under at-least-once event delivery.
type Notification struct {
	ID          string    `gorm:"primaryKey;size:26" json:"id"`
	RecipientID string    `gorm:"size:26;not null;index;uniqueIndex:uniq_notif_recipient_source,priority:1" json:"recipient_id"`
	Type        string    `gorm:"size:32;not null" json:"type"`
	SourceID    string    `gorm:"size:64;not null;uniqueIndex:uniq_notif_recipient_source,priority:2" json:"-"`
	Payload     string    `gorm:"type:text" json:"payload"`
	IsRead      bool      `gorm:"not null;default:false" json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Notification) TableName() string { return "notifications" }

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// FanoutJob is the durable record of one announcement fan-out batch. The
// queue message only carries the job id; the worker re-reads everything else
// from this row.
type FanoutJob struct {
	ID       string `gorm:"primaryKey;size:26"`
	PostID   string `gorm:"size:26;not null;index"`
	Audience string `gorm:"size:16;not null"`

	Status JobStatus `gorm:"type:varchar(16);index;not null"`

	// Filled on completion.
	Delivered int
	Skipped   int

	// Filled when failed.
	Error *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (FanoutJob) TableName() string { return "fanout_jobs" }
