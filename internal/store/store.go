package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/irfan-workspace/kakistorychannel/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrJobTerminal is returned when an update targets a job that has already
// reached completed or failed. Terminal jobs are immutable.
var ErrJobTerminal = errors.New("job is in a terminal state")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error

	CreateUser(ctx context.Context, user *models.User) error
	CreateProject(ctx context.Context, project *models.Project) error
	GetProject(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Project, error)

	CreateJob(ctx context.Context, job *models.GenerationJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error)
	GetActiveJobForUser(ctx context.Context, userID uuid.UUID) (*models.GenerationJob, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error

	CreateScene(ctx context.Context, scene *models.Scene) error
	ListScenesByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Scene, error)

	GetSceneCacheEntry(ctx context.Context, fp string) (*models.SceneCacheEntry, error)
	IncrementSceneCacheHit(ctx context.Context, fp string) error
	UpsertSceneCacheEntry(ctx context.Context, entry *models.SceneCacheEntry) error
}

// JobUpdate collects the optional fields an UpdateJobStatus call can set.
// Fakes in tests apply the options to one of these the same way the
// Postgres implementation does.
type JobUpdate struct {
	Progress        *int
	ScenesGenerated *int
	RetryCount      *int
	ErrorMessage    *string
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

type JobUpdateOption func(*JobUpdate)

func WithProgress(p int) JobUpdateOption {
	return func(u *JobUpdate) {
		u.Progress = &p
	}
}

func WithScenesGenerated(n int) JobUpdateOption {
	return func(u *JobUpdate) {
		u.ScenesGenerated = &n
	}
}

func WithRetryCount(n int) JobUpdateOption {
	return func(u *JobUpdate) {
		u.RetryCount = &n
	}
}

func WithErrorMessage(msg string) JobUpdateOption {
	return func(u *JobUpdate) {
		u.ErrorMessage = &msg
	}
}

func WithStartedAt(t time.Time) JobUpdateOption {
	return func(u *JobUpdate) {
		u.StartedAt = &t
	}
}

func WithCompletedAt(t time.Time) JobUpdateOption {
	return func(u *JobUpdate) {
		u.CompletedAt = &t
	}
}
