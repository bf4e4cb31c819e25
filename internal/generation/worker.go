package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/irfan-workspace/kakistorychannel/internal/store"
	"github.com/irfan-workspace/kakistorychannel/internal/textgen"
	"github.com/irfan-workspace/kakistorychannel/pkg/chunker"
	"github.com/irfan-workspace/kakistorychannel/pkg/models"
)

const (
	// progressFloor is reported as soon as the job starts processing, so the
	// first poll after pickup already shows movement.
	progressFloor = 5
	// progressCeiling caps per-chunk progress; 100 is reserved for the
	// completed transition.
	progressCeiling = 95
)

// runJob executes one generation job from pickup to terminal state. It runs
// on its own goroutine, detached from the submitting request: the job
// outlives the HTTP call that created it. Whatever happens inside, the
// deferred finalization below writes exactly one terminal status.
func (s *Service) runJob(job *models.GenerationJob) {
	ctx := context.Background()

	var (
		jobErr     error
		sceneCount int
		progress   = progressFloor
	)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("generation worker panicked", "job_id", job.ID, "panic", r)
			jobErr = fmt.Errorf("internal error: %v", r)
		}
		s.finalize(ctx, job, sceneCount, progress, jobErr)
	}()

	startedAt := time.Now().UTC()
	if err := s.store.UpdateJobStatus(ctx, job.ID, models.JobStatusProcessing,
		store.WithStartedAt(startedAt),
		store.WithProgress(progressFloor),
	); err != nil {
		jobErr = fmt.Errorf("marking job processing: %w", err)
		return
	}
	s.writeSnapshot(ctx, job.ID, models.JobSnapshot{
		UserID:   job.UserID,
		Status:   models.JobStatusProcessing,
		Progress: progressFloor,
	})

	chunks := chunker.Chunk(job.Script, s.cfg.MaxChunkChars)
	if len(chunks) == 0 {
		jobErr = errors.New("script produced no chunks")
		return
	}

	client := textgen.NewRetrying(s.provider, s.retryCfg)
	retries := 0
	client.OnRetry = func(_ uint, err error) {
		retries++
		slog.Warn("text generation retrying",
			"job_id", job.ID,
			"retry", retries,
			"error", err)
	}

	var generated []models.SceneData
	for i, chunk := range chunks {
		if i > 0 {
			// Fixed pause between provider calls, to stay inside its
			// sustained rate limits on long scripts.
			s.sleep(s.cfg.InterChunkDelay)
		}

		prompt := BuildScenePrompt(PromptParams{
			Chunk:     chunk,
			Position:  i + 1,
			Total:     len(chunks),
			Language:  job.Language,
			StoryType: job.StoryType,
			Tone:      job.Tone,
		})

		raw, err := client.Generate(ctx, prompt)
		if err != nil {
			jobErr = fmt.Errorf("generating scenes for segment %d of %d: %w", i+1, len(chunks), err)
			return
		}

		scenes, err := ParseScenes(raw)
		if err != nil {
			jobErr = fmt.Errorf("parsing scenes for segment %d of %d: %w", i+1, len(chunks), err)
			return
		}

		// Persist incrementally: scenes from earlier segments survive a
		// failure in a later one.
		for _, data := range scenes {
			sceneCount++
			scene := &models.Scene{
				ID:                uuid.New(),
				ProjectID:         job.ProjectID,
				JobID:             job.ID,
				Order:             sceneCount,
				Title:             data.Title,
				Narration:         data.Narration,
				VisualDescription: data.VisualDescription,
				Mood:              data.Mood,
				EstimatedDuration: data.EstimatedDuration,
				CreatedAt:         time.Now().UTC(),
			}
			if err := s.store.CreateScene(ctx, scene); err != nil {
				jobErr = fmt.Errorf("persisting scene %d: %w", sceneCount, err)
				return
			}
			generated = append(generated, data)
		}

		progress = chunkProgress(i+1, len(chunks))
		if err := s.store.UpdateJobStatus(ctx, job.ID, models.JobStatusProcessing,
			store.WithProgress(progress),
			store.WithScenesGenerated(sceneCount),
			store.WithRetryCount(retries),
		); err != nil {
			slog.Warn("recording chunk progress failed", "job_id", job.ID, "error", err)
		}
		s.writeSnapshot(ctx, job.ID, models.JobSnapshot{
			UserID:          job.UserID,
			Status:          models.JobStatusProcessing,
			Progress:        progress,
			ScenesGenerated: sceneCount,
		})
	}

	entry := &models.SceneCacheEntry{
		Fingerprint: job.Fingerprint,
		Language:    job.Language,
		StoryType:   job.StoryType,
		Tone:        job.Tone,
		Scenes:      generated,
		ExpiresAt:   time.Now().UTC().Add(s.cfg.CacheTTL),
	}
	if err := s.store.UpsertSceneCacheEntry(ctx, entry); err != nil {
		// Cache population is best effort; the job still completed.
		slog.Warn("storing scene cache entry failed", "job_id", job.ID, "error", err)
	}
}

// finalize writes the single terminal transition for a job. jobErr nil means
// completed; anything else means failed with that message.
func (s *Service) finalize(ctx context.Context, job *models.GenerationJob, sceneCount, progress int, jobErr error) {
	completedAt := time.Now().UTC()

	if jobErr == nil {
		if err := s.store.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted,
			store.WithProgress(100),
			store.WithScenesGenerated(sceneCount),
			store.WithCompletedAt(completedAt),
		); err != nil {
			slog.Error("finalizing completed job failed", "job_id", job.ID, "error", err)
		}
		s.writeSnapshot(ctx, job.ID, models.JobSnapshot{
			UserID:          job.UserID,
			Status:          models.JobStatusCompleted,
			Progress:        100,
			ScenesGenerated: sceneCount,
		})
		slog.Info("generation job completed", "job_id", job.ID, "scenes", sceneCount)
		return
	}

	msg := jobErr.Error()
	if err := s.store.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed,
		store.WithErrorMessage(msg),
		store.WithScenesGenerated(sceneCount),
		store.WithCompletedAt(completedAt),
	); err != nil {
		slog.Error("finalizing failed job failed", "job_id", job.ID, "error", err)
	}
	s.writeSnapshot(ctx, job.ID, models.JobSnapshot{
		UserID:          job.UserID,
		Status:          models.JobStatusFailed,
		Progress:        progress,
		ScenesGenerated: sceneCount,
		ErrorMessage:    msg,
	})
	slog.Error("generation job failed", "job_id", job.ID, "scenes", sceneCount, "error", jobErr)
}

// chunkProgress maps completed chunks onto the 5..95 progress band.
func chunkProgress(done, total int) int {
	p := progressFloor + done*(progressCeiling-progressFloor)/total
	if p > progressCeiling {
		p = progressCeiling
	}
	return p
}
