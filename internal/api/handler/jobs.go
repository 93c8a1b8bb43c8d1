package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/nairabhi/habitvault/internal/api/middleware"
	"github.com/nairabhi/habitvault/internal/api/response"
	"github.com/nairabhi/habitvault/internal/pipeline"
	"github.com/nairabhi/habitvault/internal/store"
	"github.com/nairabhi/habitvault/pkg/models"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// JobService is the pipeline surface the job handlers depend on.
type JobService interface {
	Create(ctx context.Context, ownerID uuid.UUID, kind string, opts models.JobOptions) (*models.Job, error)
	Cancel(ctx context.Context, jobID, ownerID uuid.UUID) (*models.Job, error)
	Retry(ctx context.Context, jobID, ownerID uuid.UUID) (*models.Job, error)
	Download(ctx context.Context, jobID, ownerID uuid.UUID) (io.ReadCloser, *models.Artifact, error)
	Delete(ctx context.Context, jobID, ownerID uuid.UUID) error
}

// JobReader reads job records for listing and polling.
type JobReader interface {
	GetJob(ctx context.Context, id, ownerID uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, filter store.JobFilter) ([]*models.Job, int, error)
}

// NewCreateJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
func NewCreateJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req struct {
			Kind    string            `json:"kind"`
			Options models.JobOptions `json:"options"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		switch req.Kind {
		case models.JobKindExport, models.JobKindImport, models.JobKindBackup:
		case "":
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "kind is required", nil)
			return
		default:
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"kind must be one of export, import, backup", nil)
			return
		}

		job, err := svc.Create(r.Context(), ownerID, req.Kind, req.Options)
		if err != nil {
			if errors.Is(err, pipeline.ErrInvalidOptions) {
				response.Error(w, http.StatusBadRequest, "INVALID_OPTIONS", err.Error(), nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to create job", nil)
			return
		}

		response.Accepted(w, job)
	}
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/jobs.
func NewListJobsHandler(reader JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		filter := store.JobFilter{
			OwnerID: ownerID,
			Kind:    r.URL.Query().Get("kind"),
			State:   r.URL.Query().Get("state"),
			Page:    1,
			Limit:   defaultPageLimit,
		}

		if since := r.URL.Query().Get("since"); since != "" {
			t, err := time.Parse(time.RFC3339, since)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"since must be a valid RFC3339 timestamp", nil)
				return
			}
			filter.Since = t
		}
		if page := r.URL.Query().Get("page"); page != "" {
			n, err := strconv.Atoi(page)
			if err != nil || n < 1 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"page must be a positive integer", nil)
				return
			}
			filter.Page = n
		}
		if limit := r.URL.Query().Get("limit"); limit != "" {
			n, err := strconv.Atoi(limit)
			if err != nil || n < 1 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"limit must be a positive integer", nil)
				return
			}
			if n > maxPageLimit {
				n = maxPageLimit
			}
			filter.Limit = n
		}

		jobs, total, err := reader.ListJobs(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list jobs", nil)
			return
		}

		response.Collection(w, jobs, response.PaginationMeta{
			Page:    filter.Page,
			Limit:   filter.Limit,
			Total:   total,
			HasNext: filter.Page*filter.Limit < total,
		})
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(reader JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, jobID, ok := jobRequestIDs(w, r)
		if !ok {
			return
		}

		job, err := reader.GetJob(r.Context(), jobID, ownerID)
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewCancelJobHandler returns an http.HandlerFunc for POST /api/v1/jobs/{jobID}/cancel.
func NewCancelJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, jobID, ok := jobRequestIDs(w, r)
		if !ok {
			return
		}

		job, err := svc.Cancel(r.Context(), jobID, ownerID)
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewRetryJobHandler returns an http.HandlerFunc for POST /api/v1/jobs/{jobID}/retry.
func NewRetryJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, jobID, ok := jobRequestIDs(w, r)
		if !ok {
			return
		}

		job, err := svc.Retry(r.Context(), jobID, ownerID)
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.Accepted(w, job)
	}
}

// NewDownloadJobHandler returns an http.HandlerFunc for
// GET /api/v1/jobs/{jobID}/download. It streams the artifact bytes with
// the recorded checksum exposed in a response header.
func NewDownloadJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, jobID, ok := jobRequestIDs(w, r)
		if !ok {
			return
		}

		rc, artifact, err := svc.Download(r.Context(), jobID, ownerID)
		if err != nil {
			writeJobError(w, err)
			return
		}
		defer rc.Close()

		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.FormatInt(artifact.Size, 10))
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", artifact.FileName))
		w.Header().Set("X-Checksum-Sha256", artifact.Checksum)
		io.Copy(w, rc)
	}
}

// StateReader reads a job's mirrored state without touching the database.
type StateReader interface {
	GetJobState(ctx context.Context, ownerID, jobID uuid.UUID) (string, bool, error)
}

// NewJobStateHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}/state.
// Polling clients hit this endpoint every few seconds, so it answers from the
// Redis state mirror when it can and only falls back to the store on a miss.
func NewJobStateHandler(states StateReader, reader JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, jobID, ok := jobRequestIDs(w, r)
		if !ok {
			return
		}

		if state, found, err := states.GetJobState(r.Context(), ownerID, jobID); err == nil && found {
			response.JSON(w, map[string]any{"id": jobID, "state": state})
			return
		}

		job, err := reader.GetJob(r.Context(), jobID, ownerID)
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.JSON(w, map[string]any{"id": job.ID, "state": job.State})
	}
}

// NewDeleteJobHandler returns an http.HandlerFunc for DELETE /api/v1/jobs/{jobID}.
func NewDeleteJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, jobID, ok := jobRequestIDs(w, r)
		if !ok {
			return
		}

		if err := svc.Delete(r.Context(), jobID, ownerID); err != nil {
			writeJobError(w, err)
			return
		}
		response.NoContent(w)
	}
}

func jobRequestIDs(w http.ResponseWriter, r *http.Request) (ownerID, jobID uuid.UUID, ok bool) {
	ownerID, authed := mw.GetUserID(r)
	if !authed {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
		return uuid.Nil, uuid.Nil, false
	}
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid job ID", nil)
		return uuid.Nil, uuid.Nil, false
	}
	return ownerID, jobID, true
}

func writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
	case errors.Is(err, pipeline.ErrNotCancellable):
		response.Error(w, http.StatusConflict, "JOB_NOT_CANCELLABLE",
			"Job is not in a cancellable state", nil)
	case errors.Is(err, pipeline.ErrNotRetryable):
		response.Error(w, http.StatusConflict, "JOB_NOT_RETRYABLE",
			"Job is not in a retryable state", nil)
	case errors.Is(err, pipeline.ErrNoArtifact):
		response.Error(w, http.StatusConflict, "NO_ARTIFACT",
			"Job has no downloadable artifact", nil)
	case errors.Is(err, pipeline.ErrJobActive):
		response.Error(w, http.StatusConflict, "JOB_ACTIVE",
			"Job is still running and cannot be deleted", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
