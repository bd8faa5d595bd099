package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/revcheck/revd/internal/feedback"
	"github.com/revcheck/revd/internal/storage"
)

type FeedbackRequest struct {
	BatchID   string `json:"batch_id"`
	Satisfied *bool  `json:"satisfied"`
	Strategy  string `json:"strategy,omitempty"`
}

type FeedbackResponse struct {
	BatchID      string  `json:"batch_id"`
	Strategy     string  `json:"strategy"`
	Saved        int     `json:"saved"`
	Excluded     int     `json:"excluded"`
	Helpful      int     `json:"helpful"`
	Unfit        int     `json:"unfit"`
	AverageScore float64 `json:"average_score"`
}

func handleSubmitFeedback(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxAnalyzeBodySize)
		defer r.Body.Close()

		var req FeedbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.BatchID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "batch_id is required")
			return
		}
		if req.Satisfied == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "satisfied is required")
			return
		}

		res, err := deps.Feedback.Submit(req.BatchID, *req.Satisfied, req.Strategy)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "analysis not found")
			return
		case errors.Is(err, feedback.ErrUnknownStrategy):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		case errors.Is(err, feedback.ErrBatchNotCompleted):
			httpError(w, http.StatusConflict, "invalid_request_error", "%v", err)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to store feedback: %v", err)
			return
		}

		writeJSON(w, FeedbackResponse{
			BatchID:      res.BatchID,
			Strategy:     res.Strategy,
			Saved:        res.Saved,
			Excluded:     res.Excluded,
			Helpful:      res.Helpful,
			Unfit:        res.Unfit,
			AverageScore: res.AverageScore,
		})
	}
}

func handleFeedbackStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Store.GetFeedbackStats()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get feedback stats: %v", err)
			return
		}

		writeJSON(w, map[string]int{
			"total":   stats.Total,
			"helpful": stats.Helpful,
			"unfit":   stats.Unfit,
		})
	}
}
