package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/revcheck/revd/internal/storage"
)

const maxAnalyzeBodySize = 10 << 20 // 10MB
const maxReviewsPerBatch = 500

type ReviewInput struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type AnalyzeRequest struct {
	Reviews []ReviewInput `json:"reviews"`
}

type ReviewResult struct {
	Position int             `json:"position"`
	Content  string          `json:"content"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	Score    float64         `json:"reliability_score"`
	Label    string          `json:"label,omitempty"`
	Category string          `json:"display_category,omitempty"`
	Warning  string          `json:"warning,omitempty"`
}

type AnalysisResponse struct {
	ID           string         `json:"id"`
	Status       string         `json:"status"`
	Verdict      string         `json:"verdict,omitempty"`
	Confidence   float64        `json:"confidence"`
	AverageScore float64        `json:"average_score"`
	ReviewCount  int            `json:"review_count"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    string         `json:"created_at"`
	UpdatedAt    string         `json:"updated_at"`
	Reviews      []ReviewResult `json:"reviews,omitempty"`
}

type AnalysisSummary struct {
	ID          string  `json:"id"`
	Status      string  `json:"status"`
	Verdict     string  `json:"verdict,omitempty"`
	Confidence  float64 `json:"confidence"`
	ReviewCount int     `json:"review_count"`
	CreatedAt   string  `json:"created_at"`
}

func handleCreateAnalysis(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxAnalyzeBodySize)
		defer r.Body.Close()

		var req AnalyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(req.Reviews) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reviews is required and must not be empty")
			return
		}
		if len(req.Reviews) > maxReviewsPerBatch {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "too many reviews: %d (max %d)", len(req.Reviews), maxReviewsPerBatch)
			return
		}

		batchID := uuid.New().String()
		batch := storage.Batch{
			ID:          batchID,
			Status:      storage.BatchQueued,
			ReviewCount: len(req.Reviews),
			CreatedAt:   time.Now().UTC(),
		}
		if err := deps.Store.SaveBatch(batch); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save batch: %v", err)
			return
		}

		reviews := make([]storage.Review, len(req.Reviews))
		for i, in := range req.Reviews {
			metadataJSON := ""
			if in.Metadata != nil {
				b, err := json.Marshal(in.Metadata)
				if err != nil {
					httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid metadata at position %d: %v", i, err)
					return
				}
				metadataJSON = string(b)
			}
			reviews[i] = storage.Review{
				ID:           uuid.New().String(),
				BatchID:      batchID,
				Position:     i,
				Content:      in.Content,
				MetadataJSON: metadataJSON,
			}
		}
		if err := deps.Store.SaveReviews(reviews); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save reviews: %v", err)
			return
		}

		payload, err := json.Marshal(map[string]string{"batch_id": batchID})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create job payload: %v", err)
			return
		}
		// A failed analysis marks the batch terminally failed, so the
		// job must not be retried against it.
		job := storage.Job{
			ID:          uuid.New().String(),
			Type:        storage.JobAnalyzeBatch,
			PayloadJSON: string(payload),
			MaxAttempts: 1,
		}
		if err := deps.Store.EnqueueJob(job); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue job: %v", err)
			return
		}

		writeJSON(w, map[string]string{
			"id":     batchID,
			"status": storage.BatchQueued,
		})
	}
}

func handleGetAnalysis(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		batch, err := deps.Store.GetBatch(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "analysis not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get analysis: %v", err)
			return
		}

		reviews, err := deps.Store.GetBatchReviews(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get reviews: %v", err)
			return
		}

		resp := AnalysisResponse{
			ID:           batch.ID,
			Status:       batch.Status,
			Verdict:      batch.Verdict,
			Confidence:   batch.Confidence,
			AverageScore: batch.AverageScore,
			ReviewCount:  batch.ReviewCount,
			Error:        batch.ErrorMessage,
			CreatedAt:    batch.CreatedAt.Format(time.RFC3339),
			UpdatedAt:    batch.UpdatedAt.Format(time.RFC3339),
			Reviews:      make([]ReviewResult, len(reviews)),
		}
		for i, rev := range reviews {
			result := ReviewResult{
				Position: rev.Position,
				Content:  rev.Content,
				Score:    rev.ReliabilityScore,
				Label:    rev.AnalysisLabel,
				Category: rev.DisplayCategory,
				Warning:  rev.ScoringWarning,
			}
			if rev.MetadataJSON != "" {
				result.Metadata = json.RawMessage(rev.MetadataJSON)
			}
			resp.Reviews[i] = result
		}

		writeJSON(w, resp)
	}
}

func handleListAnalyses(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := r.URL.Query().Get("status")
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		batches, err := deps.Store.ListBatches(status, limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list analyses: %v", err)
			return
		}

		summaries := make([]AnalysisSummary, len(batches))
		for i, b := range batches {
			summaries[i] = AnalysisSummary{
				ID:          b.ID,
				Status:      b.Status,
				Verdict:     b.Verdict,
				Confidence:  b.Confidence,
				ReviewCount: b.ReviewCount,
				CreatedAt:   b.CreatedAt.Format(time.RFC3339),
			}
		}

		writeJSON(w, summaries)
	}
}
