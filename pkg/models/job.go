package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// IsTerminalStatus reports whether a job status admits no further transitions.
func IsTerminalStatus(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

// GenerationJob tracks one async scene-generation run. The API returns a
// job id on POST /api/v1/generate; the client polls GET /api/v1/jobs/{id}
// until status is completed or failed. At most one non-terminal job exists
// per user at any time (enforced by a partial unique index).
type GenerationJob struct {
	ID              uuid.UUID  `db:"id"               json:"id"`
	UserID          uuid.UUID  `db:"user_id"          json:"user_id"`
	ProjectID       uuid.UUID  `db:"project_id"       json:"project_id"`
	Script          string     `db:"script"           json:"-"`
	Fingerprint     string     `db:"fingerprint"      json:"fingerprint"`
	Language        string     `db:"language"         json:"language"`
	StoryType       string     `db:"story_type"       json:"story_type"`
	Tone            string     `db:"tone"             json:"tone"`
	Status          string     `db:"status"           json:"status"`
	Progress        int        `db:"progress"         json:"progress"`
	ScenesGenerated int        `db:"scenes_generated" json:"scenes_generated"`
	RetryCount      int        `db:"retry_count"      json:"retry_count"`
	MaxRetries      int        `db:"max_retries"      json:"max_retries"`
	ErrorMessage    *string    `db:"error_message"    json:"error_message,omitempty"`
	ScheduledAt     time.Time  `db:"scheduled_at"     json:"scheduled_at"`
	StartedAt       *time.Time `db:"started_at"       json:"started_at,omitempty"`
	CompletedAt     *time.Time `db:"completed_at"     json:"completed_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at"       json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"       json:"updated_at"`
}

// IsTerminal reports whether the job has reached completed or failed.
func (j *GenerationJob) IsTerminal() bool {
	return IsTerminalStatus(j.Status)
}

// JobSnapshot is the lightweight poll view cached in Redis so that frequent
// status checks on non-terminal jobs skip the database.
type JobSnapshot struct {
	UserID          uuid.UUID `json:"user_id"`
	Status          string    `json:"status"`
	Progress        int       `json:"progress"`
	ScenesGenerated int       `json:"scenes_generated"`
	ErrorMessage    string    `json:"error_message,omitempty"`
}
