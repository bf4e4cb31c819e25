package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	mw "github.com/irfan-workspace/kakistorychannel/internal/api/middleware"
	"github.com/irfan-workspace/kakistorychannel/internal/api/response"
	"github.com/irfan-workspace/kakistorychannel/internal/generation"
	"github.com/irfan-workspace/kakistorychannel/internal/store"
	"github.com/irfan-workspace/kakistorychannel/pkg/models"
)

// SceneGenerator defines the interface the generate handler depends on.
type SceneGenerator interface {
	Submit(ctx context.Context, p generation.SubmitParams) (*generation.SubmitResult, error)
}

// jobResponse is the job view returned by submit and poll endpoints.
type jobResponse struct {
	JobID           uuid.UUID          `json:"job_id"`
	Status          string             `json:"status"`
	Progress        int                `json:"progress"`
	ScenesGenerated int                `json:"scenes_generated"`
	Cached          bool               `json:"cached,omitempty"`
	ErrorMessage    string             `json:"error_message,omitempty"`
	Scenes          []models.SceneData `json:"scenes,omitempty"`
}

// NewGenerateHandler returns an http.HandlerFunc for POST /api/v1/generate.
func NewGenerateHandler(svc SceneGenerator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req struct {
			ProjectID string `json:"project_id"`
			Script    string `json:"script"`
			Language  string `json:"language"`
			StoryType string `json:"story_type"`
			Tone      string `json:"tone"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.ProjectID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "project_id is required", nil)
			return
		}
		projectID, err := uuid.Parse(req.ProjectID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "project_id must be a valid UUID", nil)
			return
		}
		if req.Script == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "script is required", nil)
			return
		}

		result, err := svc.Submit(r.Context(), generation.SubmitParams{
			UserID:    userID,
			ProjectID: projectID,
			Script:    req.Script,
			Language:  req.Language,
			StoryType: req.StoryType,
			Tone:      req.Tone,
		})
		if err != nil {
			var conflict *generation.ConflictError
			switch {
			case errors.As(err, &conflict):
				response.Conflict(w, jobResponse{
					JobID:           conflict.Job.ID,
					Status:          conflict.Job.Status,
					Progress:        conflict.Job.Progress,
					ScenesGenerated: conflict.Job.ScenesGenerated,
				})
			case errors.Is(err, generation.ErrScriptTooShort):
				response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
					"script is too short", nil)
			case errors.Is(err, generation.ErrScriptTooLong):
				response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
					"script is too long", nil)
			case errors.Is(err, generation.ErrRateLimited):
				w.Header().Set("Retry-After", "60")
				response.Error(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED",
					"Too many generation requests, try again shortly", nil)
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND",
					"Project not found", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		resp := jobResponse{
			JobID:           result.Job.ID,
			Status:          result.Job.Status,
			Progress:        result.Job.Progress,
			ScenesGenerated: result.Job.ScenesGenerated,
			Cached:          result.Cached,
			Scenes:          result.Scenes,
		}
		if result.Cached {
			response.JSON(w, resp)
			return
		}
		response.Accepted(w, resp)
	}
}
