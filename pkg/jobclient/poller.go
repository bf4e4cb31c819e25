package jobclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/irfan-workspace/kakistorychannel/pkg/models"
)

// State is the poller's view of a generation job.
type State string

const (
	StateIdle       State = "idle"
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// IsTerminal reports whether the state admits no further polling.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

var (
	// ErrNoActiveJob means PollOnce or Run was called with nothing to poll.
	ErrNoActiveJob = errors.New("no active job to poll")
	// ErrJobActive means Reset was called while a job is still in flight.
	ErrJobActive = errors.New("a job is still active")
)

// StatusClient is the API surface the poller needs.
type StatusClient interface {
	SubmitGeneration(ctx context.Context, req SubmitRequest) (*SubmitOutcome, error)
	JobStatus(ctx context.Context, jobID uuid.UUID) (*Job, error)
}

// PollerConfig bounds the polling loop.
type PollerConfig struct {
	// Interval between status fetches. Defaults to 3s.
	Interval time.Duration
	// MaxWait is the client-side deadline for one job; past it the poller
	// fails locally without touching the server. Defaults to 10m.
	MaxWait time.Duration
}

// Poller drives a generation job from submission to a terminal state and
// survives restarts through its SessionStore. Safe for concurrent reads;
// Submit/PollOnce/Run/Resume must not be called concurrently with each other.
type Poller struct {
	client   StatusClient
	sessions SessionStore
	cfg      PollerConfig

	// now is swapped out in tests to drive the max-wait deadline.
	now func() time.Time

	mu              sync.Mutex
	state           State
	jobID           uuid.UUID
	progress        int
	scenesGenerated int
	scenes          []models.SceneData
	message         string
	deadline        time.Time
}

// NewPoller wires a Poller over the given client and session store.
func NewPoller(client StatusClient, sessions SessionStore, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 10 * time.Minute
	}
	return &Poller{
		client:   client,
		sessions: sessions,
		cfg:      cfg,
		now:      time.Now,
		state:    StateIdle,
	}
}

func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) JobID() uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jobID
}

func (p *Poller) Progress() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

func (p *Poller) ScenesGenerated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scenesGenerated
}

// Scenes returns the generated scenes once the state is completed.
func (p *Poller) Scenes() []models.SceneData {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scenes
}

// Message returns the plain-language failure message, if any.
func (p *Poller) Message() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.message
}

// Submit sends a generation request and adopts whatever job the server
// reports: a fresh one, a cached completion, or (on conflict) the job that
// is already running. A conflict is not an error.
func (p *Poller) Submit(ctx context.Context, req SubmitRequest) (State, error) {
	p.mu.Lock()
	if p.state == StateQueued || p.state == StateProcessing {
		p.mu.Unlock()
		return "", ErrJobActive
	}
	// Optimistic transition: the UI shows queued while the request is out.
	p.resetLocked()
	p.state = StateQueued
	p.mu.Unlock()

	outcome, err := p.client.SubmitGeneration(ctx, req)
	if err != nil {
		p.mu.Lock()
		p.state = StateIdle
		p.mu.Unlock()
		return "", fmt.Errorf("submitting job: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.adoptLocked(&outcome.Job)

	if outcome.Conflict {
		slog.Info("attached to existing generation job", "job_id", outcome.Job.JobID)
	}
	if !p.state.IsTerminal() {
		p.deadline = p.now().Add(p.cfg.MaxWait)
		p.saveSessionLocked()
	}
	return p.state, nil
}

// PollOnce fetches the job status once and updates the poller. Past the
// max-wait deadline it fails locally without a server round trip. Transport
// errors leave the state unchanged so the caller can retry.
func (p *Poller) PollOnce(ctx context.Context) (State, error) {
	p.mu.Lock()
	if p.state != StateQueued && p.state != StateProcessing {
		st := p.state
		p.mu.Unlock()
		if st.IsTerminal() {
			return st, nil
		}
		return "", ErrNoActiveJob
	}
	jobID := p.jobID
	if p.now().After(p.deadline) {
		p.state = StateFailed
		p.message = "Timed out waiting for the story to generate. The job may still finish on the server."
		p.clearSessionLocked()
		p.mu.Unlock()
		return StateFailed, nil
	}
	p.mu.Unlock()

	job, err := p.client.JobStatus(ctx, jobID)
	if err != nil {
		if IsNotFound(err) {
			p.mu.Lock()
			p.state = StateFailed
			p.message = "The job could not be found anymore."
			p.clearSessionLocked()
			p.mu.Unlock()
			return StateFailed, nil
		}
		return p.State(), fmt.Errorf("polling job %s: %w", jobID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.adoptLocked(job)
	if p.state.IsTerminal() {
		p.clearSessionLocked()
	} else {
		p.saveSessionLocked()
	}
	return p.state, nil
}

// Run polls on the configured interval until the job reaches a terminal
// state or ctx is cancelled. One status request is outstanding at a time.
func (p *Poller) Run(ctx context.Context) (State, error) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		state, err := p.PollOnce(ctx)
		if err == nil && state.IsTerminal() {
			return state, nil
		}
		if err != nil && !isTransient(err) {
			return state, err
		}
		if err != nil {
			slog.Warn("poll attempt failed, will retry", "error", err)
		}

		select {
		case <-ctx.Done():
			return p.State(), ctx.Err()
		case <-ticker.C:
		}
	}
}

// Resume re-attaches to a stored session. It verifies the job against the
// server first: missing or stale jobs clear the session. Returns false when
// there is nothing to resume.
func (p *Poller) Resume(ctx context.Context) (bool, error) {
	sess, ok, err := p.sessions.Load()
	if err != nil {
		return false, fmt.Errorf("loading session: %w", err)
	}
	if !ok {
		return false, nil
	}

	job, err := p.client.JobStatus(ctx, sess.JobID)
	if err != nil {
		if IsNotFound(err) {
			_ = p.sessions.Clear()
			return false, nil
		}
		return false, fmt.Errorf("verifying stored job %s: %w", sess.JobID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	p.adoptLocked(job)
	if p.state.IsTerminal() {
		p.clearSessionLocked()
	} else {
		p.deadline = p.now().Add(p.cfg.MaxWait)
		p.saveSessionLocked()
	}
	return true, nil
}

// Reset clears a finished job so a new one can be submitted. It refuses
// while a job is still active.
func (p *Poller) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateQueued || p.state == StateProcessing {
		return ErrJobActive
	}
	p.resetLocked()
	return nil
}

// adoptLocked applies the server's job view. Callers hold p.mu.
func (p *Poller) adoptLocked(job *Job) {
	p.jobID = job.JobID
	p.progress = job.Progress
	p.scenesGenerated = job.ScenesGenerated
	if len(job.Scenes) > 0 {
		p.scenes = job.Scenes
	}

	switch job.Status {
	case models.JobStatusQueued:
		p.state = StateQueued
	case models.JobStatusProcessing:
		p.state = StateProcessing
	case models.JobStatusCompleted:
		p.state = StateCompleted
		p.progress = 100
	case models.JobStatusFailed:
		p.state = StateFailed
		p.message = friendlyMessage(job.ErrorMessage)
	default:
		p.state = StateFailed
		p.message = friendlyMessage("")
	}
}

func (p *Poller) resetLocked() {
	p.state = StateIdle
	p.jobID = uuid.Nil
	p.progress = 0
	p.scenesGenerated = 0
	p.scenes = nil
	p.message = ""
	p.deadline = time.Time{}
}

func (p *Poller) saveSessionLocked() {
	err := p.sessions.Save(&Session{
		JobID:     p.jobID,
		Status:    string(p.state),
		UpdatedAt: p.now(),
	})
	if err != nil {
		slog.Warn("saving poll session failed", "job_id", p.jobID, "error", err)
	}
}

func (p *Poller) clearSessionLocked() {
	if err := p.sessions.Clear(); err != nil {
		slog.Warn("clearing poll session failed", "error", err)
	}
}

// isTransient reports whether a poll error is worth retrying inside Run.
// API errors other than rate limiting are not expected to heal on their own.
func isTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == 429 || apiErr.Status >= 500
	}
	// Transport-level failure.
	return true
}

// friendlyMessage maps a server-side failure message onto something fit for
// an end user. Raw internals are never shown.
func friendlyMessage(raw string) string {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "unavailable"), strings.Contains(lower, "rate limit"):
		return "The story service is busy right now. Please try again in a few minutes."
	case strings.Contains(lower, "parse"):
		return "The generator returned an unexpected answer. Please try again."
	case strings.Contains(lower, "internal error"):
		return "Something went wrong on our side. Please try again."
	default:
		return "Story generation failed. Please try again."
	}
}
