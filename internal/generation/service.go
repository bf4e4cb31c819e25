package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/irfan-workspace/kakistorychannel/internal/cache"
	"github.com/irfan-workspace/kakistorychannel/internal/config"
	"github.com/irfan-workspace/kakistorychannel/internal/store"
	"github.com/irfan-workspace/kakistorychannel/internal/textgen"
	"github.com/irfan-workspace/kakistorychannel/pkg/fingerprint"
	"github.com/irfan-workspace/kakistorychannel/pkg/models"
)

// snapshotTTL bounds how long a poll snapshot outlives its last write. Long
// enough to cover any realistic job, short enough to not accumulate.
const snapshotTTL = 30 * time.Minute

// Service is the generation pipeline: it admits submissions, spawns the
// chunked worker, and serves job status reads.
type Service struct {
	store    store.Store
	cache    cache.Cache
	provider textgen.Provider
	retryCfg textgen.RetryConfig
	cfg      config.GenerationConfig

	// sleep is swapped out in tests so the inter-chunk pause costs nothing.
	sleep func(time.Duration)

	wg sync.WaitGroup
}

// NewService wires the generation pipeline.
func NewService(st store.Store, ca cache.Cache, provider textgen.Provider, retryCfg textgen.RetryConfig, cfg config.GenerationConfig) *Service {
	return &Service{
		store:    st,
		cache:    ca,
		provider: provider,
		retryCfg: retryCfg,
		cfg:      cfg,
		sleep:    time.Sleep,
	}
}

// Wait blocks until all in-flight generation workers have finished. Called
// during shutdown so jobs reach a terminal state before the process exits.
func (s *Service) Wait() {
	s.wg.Wait()
}

// SubmitParams is one generation request after authentication.
type SubmitParams struct {
	UserID    uuid.UUID
	ProjectID uuid.UUID
	Script    string
	Language  string
	StoryType string
	Tone      string
}

// SubmitResult is the admission outcome. Cached means the scenes were served
// from the fingerprint cache and the job is already completed.
type SubmitResult struct {
	Job    *models.GenerationJob
	Cached bool
	Scenes []models.SceneData
}

// Submit runs the admission pipeline: validation, quota, single-flight,
// cache lookup, then job creation with a detached worker. Checks are ordered
// cheapest first; a rejected submission consumes no quota.
func (s *Service) Submit(ctx context.Context, p SubmitParams) (*SubmitResult, error) {
	script := strings.TrimSpace(p.Script)
	if len(script) < s.cfg.MinScriptChars {
		return nil, ErrScriptTooShort
	}
	if len(script) > s.cfg.MaxScriptChars {
		return nil, ErrScriptTooLong
	}

	if _, err := s.store.GetProject(ctx, p.ProjectID, p.UserID); err != nil {
		return nil, fmt.Errorf("checking project: %w", err)
	}

	if err := s.checkQuota(ctx, p.UserID); err != nil {
		return nil, err
	}

	if existing, err := s.store.GetActiveJobForUser(ctx, p.UserID); err == nil {
		s.refundQuota(ctx, p.UserID)
		return nil, &ConflictError{Job: existing}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("checking active job: %w", err)
	}

	fp := fingerprint.Compute(script, p.Language, p.StoryType, p.Tone)

	entry, err := s.store.GetSceneCacheEntry(ctx, fp)
	if err == nil {
		return s.admitCached(ctx, p, script, fp, entry)
	}
	if !errors.Is(err, store.ErrNotFound) {
		// A broken cache degrades to a miss, never to a failed submission.
		slog.Warn("scene cache lookup failed", "fingerprint", fp, "error", err)
	}

	now := time.Now().UTC()
	job := &models.GenerationJob{
		ID:          uuid.New(),
		UserID:      p.UserID,
		ProjectID:   p.ProjectID,
		Script:      script,
		Fingerprint: fp,
		Language:    p.Language,
		StoryType:   p.StoryType,
		Tone:        p.Tone,
		Status:      models.JobStatusQueued,
		MaxRetries:  maxRetries(s.retryCfg),
		ScheduledAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			// Lost the race against a concurrent submission from the same
			// user. The index is the authority; report the winner.
			s.refundQuota(ctx, p.UserID)
			if existing, lookupErr := s.store.GetActiveJobForUser(ctx, p.UserID); lookupErr == nil {
				return nil, &ConflictError{Job: existing}
			}
			return nil, fmt.Errorf("creating job: %w", err)
		}
		return nil, fmt.Errorf("creating job: %w", err)
	}

	s.writeSnapshot(ctx, job.ID, models.JobSnapshot{
		UserID: job.UserID,
		Status: models.JobStatusQueued,
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runJob(job)
	}()

	slog.Info("generation job queued",
		"job_id", job.ID,
		"user_id", job.UserID,
		"project_id", job.ProjectID,
		"script_chars", len(script))

	return &SubmitResult{Job: job}, nil
}

// admitCached serves a fingerprint hit: the job is born completed and the
// cached scenes are materialized as rows under it, so the result is
// indistinguishable from a fresh run apart from latency.
func (s *Service) admitCached(ctx context.Context, p SubmitParams, script, fp string, entry *models.SceneCacheEntry) (*SubmitResult, error) {
	if err := s.store.IncrementSceneCacheHit(ctx, fp); err != nil {
		slog.Warn("incrementing cache hit count failed", "fingerprint", fp, "error", err)
	}

	now := time.Now().UTC()
	job := &models.GenerationJob{
		ID:              uuid.New(),
		UserID:          p.UserID,
		ProjectID:       p.ProjectID,
		Script:          script,
		Fingerprint:     fp,
		Language:        p.Language,
		StoryType:       p.StoryType,
		Tone:            p.Tone,
		Status:          models.JobStatusCompleted,
		Progress:        100,
		ScenesGenerated: len(entry.Scenes),
		MaxRetries:      maxRetries(s.retryCfg),
		ScheduledAt:     now,
		StartedAt:       &now,
		CompletedAt:     &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating cached job: %w", err)
	}

	for i, data := range entry.Scenes {
		scene := &models.Scene{
			ID:                uuid.New(),
			ProjectID:         p.ProjectID,
			JobID:             job.ID,
			Order:             i + 1,
			Title:             data.Title,
			Narration:         data.Narration,
			VisualDescription: data.VisualDescription,
			Mood:              data.Mood,
			EstimatedDuration: data.EstimatedDuration,
			CreatedAt:         now,
		}
		if err := s.store.CreateScene(ctx, scene); err != nil {
			return nil, fmt.Errorf("materializing cached scene %d: %w", i+1, err)
		}
	}

	slog.Info("generation served from cache",
		"job_id", job.ID,
		"user_id", job.UserID,
		"fingerprint", fp,
		"scenes", len(entry.Scenes))

	return &SubmitResult{Job: job, Cached: true, Scenes: entry.Scenes}, nil
}

// checkQuota enforces the per-user sliding submission window. Redis being
// down fails open: generation keeps working without the limiter.
func (s *Service) checkQuota(ctx context.Context, userID uuid.UUID) error {
	count, err := s.cache.IncrWithExpiry(ctx, cache.SubmitQuotaKey(userID), time.Minute)
	if err != nil {
		slog.Warn("submission quota check failed, allowing", "user_id", userID, "error", err)
		return nil
	}
	if count > int64(s.cfg.SubmitsPerMinute) {
		s.refundQuota(ctx, userID)
		return ErrRateLimited
	}
	return nil
}

// refundQuota undoes the quota increment for a submission that was rejected
// after the quota check passed.
func (s *Service) refundQuota(ctx context.Context, userID uuid.UUID) {
	if err := s.cache.Decr(ctx, cache.SubmitQuotaKey(userID)); err != nil {
		slog.Warn("refunding submission quota failed", "user_id", userID, "error", err)
	}
}

// JobStatus is the poll view of a job. Scenes is populated only once the job
// has completed.
type JobStatus struct {
	JobID           uuid.UUID          `json:"job_id"`
	Status          string             `json:"status"`
	Progress        int                `json:"progress"`
	ScenesGenerated int                `json:"scenes_generated"`
	ErrorMessage    string             `json:"error_message,omitempty"`
	Scenes          []models.SceneData `json:"scenes,omitempty"`
}

// GetJobStatus returns the poll view of jobID for userID. Non-terminal jobs
// are usually served from the Redis snapshot; terminal jobs and snapshot
// misses go to the database. Jobs belonging to other users read as not found.
func (s *Service) GetJobStatus(ctx context.Context, userID, jobID uuid.UUID) (*JobStatus, error) {
	snap, ok, err := s.cache.GetJobSnapshot(ctx, jobID)
	if err != nil {
		slog.Warn("job snapshot read failed", "job_id", jobID, "error", err)
	}
	if err == nil && ok && !models.IsTerminalStatus(snap.Status) {
		if snap.UserID != userID {
			return nil, store.ErrNotFound
		}
		return &JobStatus{
			JobID:           jobID,
			Status:          snap.Status,
			Progress:        snap.Progress,
			ScenesGenerated: snap.ScenesGenerated,
			ErrorMessage:    snap.ErrorMessage,
		}, nil
	}

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, store.ErrNotFound
	}

	status := &JobStatus{
		JobID:           job.ID,
		Status:          job.Status,
		Progress:        job.Progress,
		ScenesGenerated: job.ScenesGenerated,
	}
	if job.ErrorMessage != nil {
		status.ErrorMessage = *job.ErrorMessage
	}
	if job.Status == models.JobStatusCompleted {
		scenes, err := s.store.ListScenesByJob(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("listing scenes: %w", err)
		}
		status.Scenes = make([]models.SceneData, 0, len(scenes))
		for _, sc := range scenes {
			status.Scenes = append(status.Scenes, sc.Data())
		}
	}
	return status, nil
}

func (s *Service) writeSnapshot(ctx context.Context, jobID uuid.UUID, snap models.JobSnapshot) {
	if err := s.cache.SetJobSnapshot(ctx, jobID, snap, snapshotTTL); err != nil {
		slog.Warn("writing job snapshot failed", "job_id", jobID, "error", err)
	}
}

// maxRetries converts the retry policy's attempt budget into the per-call
// retry count recorded on the job.
func maxRetries(cfg textgen.RetryConfig) int {
	if cfg.MaxAttempts <= 1 {
		return 0
	}
	return int(cfg.MaxAttempts) - 1
}
