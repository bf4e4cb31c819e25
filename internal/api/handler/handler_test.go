package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/irfan-workspace/kakistorychannel/internal/api/handler"
	mw "github.com/irfan-workspace/kakistorychannel/internal/api/middleware"
	"github.com/irfan-workspace/kakistorychannel/internal/generation"
	"github.com/irfan-workspace/kakistorychannel/internal/store"
	"github.com/irfan-workspace/kakistorychannel/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockGenerator struct {
	result *generation.SubmitResult
	err    error
	got    generation.SubmitParams
}

func (m *mockGenerator) Submit(_ context.Context, p generation.SubmitParams) (*generation.SubmitResult, error) {
	m.got = p
	return m.result, m.err
}

type mockStatusReader struct {
	status *generation.JobStatus
	err    error
}

func (m *mockStatusReader) GetJobStatus(_ context.Context, _, _ uuid.UUID) (*generation.JobStatus, error) {
	return m.status, m.err
}

func authedRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return req.WithContext(mw.SetUserID(req.Context(), uuid.New()))
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func generateBody(projectID uuid.UUID) string {
	return `{"project_id":"` + projectID.String() + `","script":"A long enough script about a quiet village.","language":"en","story_type":"folk tale","tone":"warm"}`
}

func TestGenerate_Accepted(t *testing.T) {
	jobID := uuid.New()
	gen := &mockGenerator{result: &generation.SubmitResult{
		Job: &models.GenerationJob{ID: jobID, Status: models.JobStatusQueued},
	}}
	h := handler.NewGenerateHandler(gen)

	projectID := uuid.New()
	w := httptest.NewRecorder()
	h(w, authedRequest("POST", "/api/v1/generate", generateBody(projectID)))

	assert.Equal(t, http.StatusAccepted, w.Code)
	data := decodeBody(t, w)["data"].(map[string]any)
	assert.Equal(t, jobID.String(), data["job_id"])
	assert.Equal(t, "queued", data["status"])
	assert.Equal(t, projectID, gen.got.ProjectID)
	assert.Equal(t, "folk tale", gen.got.StoryType)
}

func TestGenerate_CacheHitReturnsScenes(t *testing.T) {
	jobID := uuid.New()
	gen := &mockGenerator{result: &generation.SubmitResult{
		Job:    &models.GenerationJob{ID: jobID, Status: models.JobStatusCompleted, Progress: 100, ScenesGenerated: 1},
		Cached: true,
		Scenes: []models.SceneData{{Title: "T", Narration: "N", EstimatedDuration: 5}},
	}}
	h := handler.NewGenerateHandler(gen)

	w := httptest.NewRecorder()
	h(w, authedRequest("POST", "/api/v1/generate", generateBody(uuid.New())))

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]any)
	assert.Equal(t, "completed", data["status"])
	assert.Equal(t, true, data["cached"])
	assert.Len(t, data["scenes"].([]any), 1)
}

func TestGenerate_ConflictCarriesExistingJob(t *testing.T) {
	existing := &models.GenerationJob{ID: uuid.New(), Status: models.JobStatusProcessing, Progress: 40}
	gen := &mockGenerator{err: &generation.ConflictError{Job: existing}}
	h := handler.NewGenerateHandler(gen)

	w := httptest.NewRecorder()
	h(w, authedRequest("POST", "/api/v1/generate", generateBody(uuid.New())))

	assert.Equal(t, http.StatusConflict, w.Code)
	data := decodeBody(t, w)["data"].(map[string]any)
	assert.Equal(t, existing.ID.String(), data["job_id"])
	assert.Equal(t, "processing", data["status"])
	assert.Equal(t, float64(40), data["progress"])
}

func TestGenerate_Validation(t *testing.T) {
	h := handler.NewGenerateHandler(&mockGenerator{})

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing project_id", `{"script":"some script"}`},
		{"bad project_id", `{"project_id":"not-a-uuid","script":"some script"}`},
		{"missing script", `{"project_id":"` + uuid.NewString() + `"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h(w, authedRequest("POST", "/api/v1/generate", tc.body))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestGenerate_ScriptBounds(t *testing.T) {
	for _, sentinel := range []error{generation.ErrScriptTooShort, generation.ErrScriptTooLong} {
		gen := &mockGenerator{err: sentinel}
		h := handler.NewGenerateHandler(gen)

		w := httptest.NewRecorder()
		h(w, authedRequest("POST", "/api/v1/generate", generateBody(uuid.New())))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		errObj := decodeBody(t, w)["error"].(map[string]any)
		assert.Equal(t, "VALIDATION_ERROR", errObj["code"])
	}
}

func TestGenerate_RateLimited(t *testing.T) {
	gen := &mockGenerator{err: generation.ErrRateLimited}
	h := handler.NewGenerateHandler(gen)

	w := httptest.NewRecorder()
	h(w, authedRequest("POST", "/api/v1/generate", generateBody(uuid.New())))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestGenerate_ProjectNotFound(t *testing.T) {
	gen := &mockGenerator{err: store.ErrNotFound}
	h := handler.NewGenerateHandler(gen)

	w := httptest.NewRecorder()
	h(w, authedRequest("POST", "/api/v1/generate", generateBody(uuid.New())))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerate_MissingUser(t *testing.T) {
	h := handler.NewGenerateHandler(&mockGenerator{})

	req := httptest.NewRequest("POST", "/api/v1/generate", strings.NewReader(generateBody(uuid.New())))
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func statusRouter(svc handler.JobStatusReader) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v1/jobs/{jobID}", handler.NewJobStatusHandler(svc))
	return r
}

func TestJobStatus_OK(t *testing.T) {
	jobID := uuid.New()
	svc := &mockStatusReader{status: &generation.JobStatus{
		JobID:           jobID,
		Status:          models.JobStatusCompleted,
		Progress:        100,
		ScenesGenerated: 2,
		Scenes: []models.SceneData{
			{Title: "One", Narration: "N1", EstimatedDuration: 5},
			{Title: "Two", Narration: "N2", EstimatedDuration: 7},
		},
	}}

	w := httptest.NewRecorder()
	statusRouter(svc).ServeHTTP(w, authedRequest("GET", "/api/v1/jobs/"+jobID.String(), ""))

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]any)
	assert.Equal(t, jobID.String(), data["job_id"])
	assert.Equal(t, "completed", data["status"])
	assert.Len(t, data["scenes"].([]any), 2)
}

func TestJobStatus_FailedIncludesErrorMessage(t *testing.T) {
	jobID := uuid.New()
	svc := &mockStatusReader{status: &generation.JobStatus{
		JobID:        jobID,
		Status:       models.JobStatusFailed,
		Progress:     35,
		ErrorMessage: "generating scenes for segment 2 of 3: text generation unavailable",
	}}

	w := httptest.NewRecorder()
	statusRouter(svc).ServeHTTP(w, authedRequest("GET", "/api/v1/jobs/"+jobID.String(), ""))

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]any)
	assert.Equal(t, "failed", data["status"])
	assert.Contains(t, data["error_message"], "segment 2 of 3")
	_, hasScenes := data["scenes"]
	assert.False(t, hasScenes)
}

func TestJobStatus_NotFound(t *testing.T) {
	svc := &mockStatusReader{err: store.ErrNotFound}

	w := httptest.NewRecorder()
	statusRouter(svc).ServeHTTP(w, authedRequest("GET", "/api/v1/jobs/"+uuid.NewString(), ""))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestJobStatus_BadID(t *testing.T) {
	svc := &mockStatusReader{}

	w := httptest.NewRecorder()
	statusRouter(svc).ServeHTTP(w, authedRequest("GET", "/api/v1/jobs/not-a-uuid", ""))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobStatus_MissingUser(t *testing.T) {
	svc := &mockStatusReader{}

	req := httptest.NewRequest("GET", "/api/v1/jobs/"+uuid.NewString(), nil)
	w := httptest.NewRecorder()
	statusRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
