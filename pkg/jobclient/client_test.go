package jobclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apiServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "sc_test_key_12345678", 5*time.Second)
}

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func TestSubmitGeneration_Accepted(t *testing.T) {
	jobID := uuid.New()
	c := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/generate", r.URL.Path)
		assert.Equal(t, "Bearer sc_test_key_12345678", r.Header.Get("Authorization"))

		var req SubmitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.Script)

		writeEnvelope(w, http.StatusAccepted, map[string]any{
			"job_id": jobID, "status": "queued",
		})
	})

	out, err := c.SubmitGeneration(context.Background(), SubmitRequest{
		ProjectID: uuid.New(),
		Script:    "a script",
	})
	require.NoError(t, err)
	assert.False(t, out.Conflict)
	assert.Equal(t, jobID, out.Job.JobID)
	assert.Equal(t, "queued", out.Job.Status)
}

func TestSubmitGeneration_ConflictIsNotAnError(t *testing.T) {
	existingID := uuid.New()
	c := apiServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, http.StatusConflict, map[string]any{
			"job_id": existingID, "status": "processing", "progress": 40,
		})
	})

	out, err := c.SubmitGeneration(context.Background(), SubmitRequest{Script: "s"})
	require.NoError(t, err)
	assert.True(t, out.Conflict)
	assert.Equal(t, existingID, out.Job.JobID)
	assert.Equal(t, 40, out.Job.Progress)
}

func TestSubmitGeneration_ErrorEnvelope(t *testing.T) {
	c := apiServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": "RATE_LIMIT_EXCEEDED", "message": "Too many requests"},
		})
	})

	_, err := c.SubmitGeneration(context.Background(), SubmitRequest{Script: "s"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", apiErr.Code)
}

func TestJobStatus_OK(t *testing.T) {
	jobID := uuid.New()
	c := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/jobs/"+jobID.String(), r.URL.Path)
		writeEnvelope(w, http.StatusOK, map[string]any{
			"job_id": jobID, "status": "processing", "progress": 65, "scenes_generated": 2,
		})
	})

	job, err := c.JobStatus(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, "processing", job.Status)
	assert.Equal(t, 65, job.Progress)
	assert.Equal(t, 2, job.ScenesGenerated)
}

func TestJobStatus_NotFound(t *testing.T) {
	c := apiServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": "RESOURCE_NOT_FOUND", "message": "Job not found"},
		})
	})

	_, err := c.JobStatus(context.Background(), uuid.New())
	assert.True(t, IsNotFound(err))
}

func TestFileSessionStore_RoundTrip(t *testing.T) {
	path := t.TempDir() + "/session.json"
	fs := NewFileSessionStore(path)

	_, ok, err := fs.Load()
	require.NoError(t, err)
	assert.False(t, ok)

	sess := &Session{JobID: uuid.New(), Status: "processing", UpdatedAt: time.Now().UTC()}
	require.NoError(t, fs.Save(sess))

	loaded, ok, err := fs.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sess.JobID, loaded.JobID)
	assert.Equal(t, "processing", loaded.Status)

	require.NoError(t, fs.Clear())
	_, ok, err = fs.Load()
	require.NoError(t, err)
	assert.False(t, ok)

	// Clearing an absent session is not an error.
	require.NoError(t, fs.Clear())
}
