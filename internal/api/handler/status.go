package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/irfan-workspace/kakistorychannel/internal/api/middleware"
	"github.com/irfan-workspace/kakistorychannel/internal/api/response"
	"github.com/irfan-workspace/kakistorychannel/internal/generation"
	"github.com/irfan-workspace/kakistorychannel/internal/store"
)

// JobStatusReader defines the interface the poll handler depends on.
type JobStatusReader interface {
	GetJobStatus(ctx context.Context, userID, jobID uuid.UUID) (*generation.JobStatus, error)
}

// NewJobStatusHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewJobStatusHandler(svc JobStatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a valid UUID", nil)
			return
		}

		status, err := svc.GetJobStatus(r.Context(), userID, jobID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Job not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, jobResponse{
			JobID:           status.JobID,
			Status:          status.Status,
			Progress:        status.Progress,
			ScenesGenerated: status.ScenesGenerated,
			ErrorMessage:    status.ErrorMessage,
			Scenes:          status.Scenes,
		})
	}
}
