package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/revcheck/revd/internal/storage"
	"github.com/revcheck/revd/internal/training"
)

type RetrainJobResponse struct {
	ID        string   `json:"id"`
	Status    string   `json:"status"`
	Attempts  int      `json:"attempts"`
	LastError string   `json:"last_error,omitempty"`
	Logs      []string `json:"logs,omitempty"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

type ModelVersionResponse struct {
	Version      string          `json:"version"`
	Name         string          `json:"name"`
	ArtifactPath string          `json:"artifact_path"`
	Accuracy     float64         `json:"accuracy"`
	Active       bool            `json:"active"`
	CreatedAt    string          `json:"created_at"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

func handleRetrain(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		busy, err := deps.Store.HasPendingOrRunningJob(storage.JobRetrain)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to check job queue: %v", err)
			return
		}
		if busy {
			httpError(w, http.StatusConflict, "invalid_request_error", "retraining already in progress")
			return
		}

		// A failed training run is not retried automatically; the data
		// that gated it will not have changed a second later.
		job := storage.Job{
			ID:          uuid.New().String(),
			Type:        storage.JobRetrain,
			MaxAttempts: 1,
		}
		if err := deps.Store.EnqueueJob(job); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue job: %v", err)
			return
		}

		writeJSON(w, map[string]string{
			"job_id": job.ID,
			"status": "queued",
		})
	}
}

func handleGetRetrainJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		job, err := deps.Store.GetJob(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get job: %v", err)
			return
		}

		resp := RetrainJobResponse{
			ID:        job.ID,
			Status:    job.Status,
			Attempts:  job.Attempts,
			LastError: job.LastError,
			CreatedAt: job.CreatedAt.Format(time.RFC3339),
			UpdatedAt: job.UpdatedAt.Format(time.RFC3339),
		}
		if job.Logs != "" {
			resp.Logs = strings.Split(strings.TrimRight(job.Logs, "\n"), "\n")
		}

		writeJSON(w, resp)
	}
}

func handleListModels(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		versions, err := deps.Store.ListModelVersions()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list model versions: %v", err)
			return
		}

		resp := make([]ModelVersionResponse, len(versions))
		for i, v := range versions {
			resp[i] = modelVersionResponse(v, false)
		}

		writeJSON(w, resp)
	}
}

func handleActiveModel(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active, err := deps.Store.ActiveModelVersion()
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "no active model version")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get active model: %v", err)
			return
		}

		writeJSON(w, modelVersionResponse(active, true))
	}
}

// modelVersionResponse maps a stored version row; withMetadata attaches
// the artifact's metadata.json when it is readable.
func modelVersionResponse(v storage.ModelVersion, withMetadata bool) ModelVersionResponse {
	resp := ModelVersionResponse{
		Version:      v.Version,
		Name:         v.Name,
		ArtifactPath: v.ArtifactPath,
		Accuracy:     v.Accuracy,
		Active:       v.Active,
		CreatedAt:    v.CreatedAt.Format(time.RFC3339),
	}
	if withMetadata && v.ArtifactPath != "" {
		if data, err := os.ReadFile(filepath.Join(v.ArtifactPath, training.MetadataFile)); err == nil && json.Valid(data) {
			resp.Metadata = json.RawMessage(data)
		}
	}
	return resp
}
