package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/irfan-workspace/kakistorychannel/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// --- Users / Projects ---

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Email, user.Name, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateProject(ctx context.Context, project *models.Project) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO projects (id, user_id, title, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		project.ID, project.UserID, project.Title, project.CreatedAt, project.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

// GetProject returns the project only when it is owned by userID; a project
// owned by someone else is indistinguishable from a missing one.
func (s *PostgresStore) GetProject(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Project, error) {
	var p models.Project
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, title, created_at, updated_at
		 FROM projects WHERE id = $1 AND user_id = $2`, id, userID,
	).Scan(&p.ID, &p.UserID, &p.Title, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

// --- Generation Jobs ---

const jobColumns = `id, user_id, project_id, script, fingerprint, language, story_type, tone,
	status, progress, scenes_generated, retry_count, max_retries, error_message,
	scheduled_at, started_at, completed_at, created_at, updated_at`

func scanJob(row pgx.Row) (*models.GenerationJob, error) {
	var j models.GenerationJob
	err := row.Scan(&j.ID, &j.UserID, &j.ProjectID, &j.Script, &j.Fingerprint,
		&j.Language, &j.StoryType, &j.Tone, &j.Status, &j.Progress,
		&j.ScenesGenerated, &j.RetryCount, &j.MaxRetries, &j.ErrorMessage,
		&j.ScheduledAt, &j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// CreateJob inserts a job row. A partial unique index on (user_id) over
// non-terminal statuses makes this the atomic check-then-set for the
// one-active-job-per-user rule: a concurrent second insert fails with
// ErrDuplicateKey instead of racing.
func (s *PostgresStore) CreateJob(ctx context.Context, job *models.GenerationJob) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO generation_jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		job.ID, job.UserID, job.ProjectID, job.Script, job.Fingerprint,
		job.Language, job.StoryType, job.Tone, job.Status, job.Progress,
		job.ScenesGenerated, job.RetryCount, job.MaxRetries, job.ErrorMessage,
		job.ScheduledAt, job.StartedAt, job.CompletedAt, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM generation_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) GetActiveJobForUser(ctx context.Context, userID uuid.UUID) (*models.GenerationJob, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM generation_jobs
		 WHERE user_id = $1 AND status IN ($2, $3)
		 ORDER BY created_at DESC LIMIT 1`,
		userID, models.JobStatusQueued, models.JobStatusProcessing))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active job: %w", err)
	}
	return j, nil
}

// UpdateJobStatus applies a status plus any partial field updates. Updates
// against a terminal job return ErrJobTerminal; the guard is in the UPDATE's
// WHERE clause, so the immutability holds under concurrent writers too.
func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	params := &JobUpdate{}
	for _, opt := range opts {
		opt(params)
	}

	query := `UPDATE generation_jobs SET status = $2, updated_at = $3`
	args := []any{id, status, time.Now().UTC()}
	argIdx := 4

	appendField := func(col string, val any) {
		query += fmt.Sprintf(", %s = $%d", col, argIdx)
		args = append(args, val)
		argIdx++
	}

	if params.Progress != nil {
		appendField("progress", *params.Progress)
	}
	if params.ScenesGenerated != nil {
		appendField("scenes_generated", *params.ScenesGenerated)
	}
	if params.RetryCount != nil {
		appendField("retry_count", *params.RetryCount)
	}
	if params.ErrorMessage != nil {
		appendField("error_message", *params.ErrorMessage)
	}
	if params.StartedAt != nil {
		appendField("started_at", *params.StartedAt)
	}
	if params.CompletedAt != nil {
		appendField("completed_at", *params.CompletedAt)
	}

	query += fmt.Sprintf(" WHERE id = $1 AND status IN ($%d, $%d)", argIdx, argIdx+1)
	args = append(args, models.JobStatusQueued, models.JobStatusProcessing)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var current string
		err := s.pool.QueryRow(ctx,
			`SELECT status FROM generation_jobs WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get job status: %w", err)
		}
		return fmt.Errorf("%w: %s", ErrJobTerminal, current)
	}
	return nil
}

// --- Scenes ---

func (s *PostgresStore) CreateScene(ctx context.Context, scene *models.Scene) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scenes (id, project_id, job_id, scene_order, title, narration, visual_description, mood, estimated_duration, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		scene.ID, scene.ProjectID, scene.JobID, scene.Order, scene.Title,
		scene.Narration, scene.VisualDescription, scene.Mood,
		scene.EstimatedDuration, scene.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create scene: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListScenesByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Scene, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, job_id, scene_order, title, narration, visual_description, mood, estimated_duration, created_at
		 FROM scenes WHERE job_id = $1 ORDER BY scene_order ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list scenes by job: %w", err)
	}
	defer rows.Close()

	var scenes []*models.Scene
	for rows.Next() {
		var sc models.Scene
		if err := rows.Scan(&sc.ID, &sc.ProjectID, &sc.JobID, &sc.Order, &sc.Title,
			&sc.Narration, &sc.VisualDescription, &sc.Mood,
			&sc.EstimatedDuration, &sc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan scene: %w", err)
		}
		scenes = append(scenes, &sc)
	}
	return scenes, rows.Err()
}

// --- Scene Cache ---

// GetSceneCacheEntry returns the entry for fp only while it is unexpired.
func (s *PostgresStore) GetSceneCacheEntry(ctx context.Context, fp string) (*models.SceneCacheEntry, error) {
	var e models.SceneCacheEntry
	var scenesJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT fingerprint, language, story_type, tone, scenes, hit_count, expires_at, created_at, updated_at
		 FROM scene_cache WHERE fingerprint = $1 AND expires_at > NOW()`, fp,
	).Scan(&e.Fingerprint, &e.Language, &e.StoryType, &e.Tone, &scenesJSON,
		&e.HitCount, &e.ExpiresAt, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get scene cache entry: %w", err)
	}
	if err := json.Unmarshal(scenesJSON, &e.Scenes); err != nil {
		return nil, fmt.Errorf("decode cached scenes: %w", err)
	}
	return &e, nil
}

func (s *PostgresStore) IncrementSceneCacheHit(ctx context.Context, fp string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE scene_cache SET hit_count = hit_count + 1, updated_at = NOW() WHERE fingerprint = $1`, fp)
	if err != nil {
		return fmt.Errorf("increment scene cache hit: %w", err)
	}
	return nil
}

// UpsertSceneCacheEntry overwrites by fingerprint: identical normalized
// inputs imply the same expected output, so last write wins.
func (s *PostgresStore) UpsertSceneCacheEntry(ctx context.Context, entry *models.SceneCacheEntry) error {
	scenesJSON, err := json.Marshal(entry.Scenes)
	if err != nil {
		return fmt.Errorf("encode cached scenes: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO scene_cache (fingerprint, language, story_type, tone, scenes, hit_count, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 0, $6, NOW(), NOW())
		 ON CONFLICT (fingerprint) DO UPDATE SET
		   language = EXCLUDED.language,
		   story_type = EXCLUDED.story_type,
		   tone = EXCLUDED.tone,
		   scenes = EXCLUDED.scenes,
		   expires_at = EXCLUDED.expires_at,
		   updated_at = NOW()`,
		entry.Fingerprint, entry.Language, entry.StoryType, entry.Tone,
		scenesJSON, entry.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert scene cache entry: %w", err)
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
