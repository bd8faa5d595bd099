package api

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/revcheck/revd/internal/storage"
)

type AdminStats struct {
	TotalBatches  int     `json:"total_batches"`
	RecentBatches int     `json:"recent_batches"` // last 7 days
	Feedback      struct {
		Total   int `json:"total"`
		Helpful int `json:"helpful"`
		Unfit   int `json:"unfit"`
	} `json:"feedback"`
	ActiveModel struct {
		Version  string  `json:"version,omitempty"`
		Accuracy float64 `json:"accuracy,omitempty"`
	} `json:"active_model"`
}

func handleAdminStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		since := time.Now().UTC().AddDate(0, 0, -7)
		total, recent, err := deps.Store.CountBatches(since)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count batches: %v", err)
			return
		}

		feedbackStats, err := deps.Store.GetFeedbackStats()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get feedback stats: %v", err)
			return
		}

		stats := AdminStats{TotalBatches: total, RecentBatches: recent}
		stats.Feedback.Total = feedbackStats.Total
		stats.Feedback.Helpful = feedbackStats.Helpful
		stats.Feedback.Unfit = feedbackStats.Unfit

		active, err := deps.Store.ActiveModelVersion()
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get active model: %v", err)
			return
		}
		if err == nil {
			stats.ActiveModel.Version = active.Version
			stats.ActiveModel.Accuracy = active.Accuracy
		}

		writeJSON(w, stats)
	}
}

// handleExportFeedback streams the feedback dataset as CSV. The UTF-8
// BOM keeps Korean text intact when the file is opened in Excel.
func handleExportFeedback(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := deps.Store.AllFeedback()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load feedback: %v", err)
			return
		}

		filename := fmt.Sprintf("feedback_export_%s.csv", time.Now().UTC().Format("20060102"))
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		w.Write([]byte{0xEF, 0xBB, 0xBF})

		cw := csv.NewWriter(w)
		cw.Write([]string{"review_text", "label", "confidence", "original_score", "strategy", "batch_id", "created_at"})
		for _, rec := range records {
			cw.Write([]string{
				rec.ReviewText,
				strconv.Itoa(rec.Label),
				strconv.FormatFloat(rec.LabelConfidence, 'f', 4, 64),
				strconv.FormatFloat(rec.OriginalScore, 'f', 1, 64),
				rec.Strategy,
				rec.BatchID,
				rec.CreatedAt.Format(time.RFC3339),
			})
		}
		cw.Flush()
	}
}

// handleExportAnalyses streams analysis batches in [start, end) as CSV.
// Dates are YYYY-MM-DD; the range defaults to the last 30 days.
func handleExportAnalyses(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		end := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, 1)
		start := end.AddDate(0, 0, -30)

		var err error
		if v := r.URL.Query().Get("start"); v != "" {
			if start, err = time.Parse("2006-01-02", v); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request", "invalid start date %q, want YYYY-MM-DD", v)
				return
			}
		}
		if v := r.URL.Query().Get("end"); v != "" {
			var endDay time.Time
			if endDay, err = time.Parse("2006-01-02", v); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request", "invalid end date %q, want YYYY-MM-DD", v)
				return
			}
			// End date is inclusive.
			end = endDay.AddDate(0, 0, 1)
		}
		if !start.Before(end) {
			httpError(w, http.StatusBadRequest, "invalid_request", "start date must be before end date")
			return
		}

		batches, err := deps.Store.BatchesBetween(start, end)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load batches: %v", err)
			return
		}

		filename := fmt.Sprintf("analyses_export_%s.csv", time.Now().UTC().Format("20060102"))
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		w.Write([]byte{0xEF, 0xBB, 0xBF})

		cw := csv.NewWriter(w)
		cw.Write([]string{"batch_id", "status", "verdict", "confidence", "average_score", "review_count", "created_at"})
		for _, b := range batches {
			cw.Write([]string{
				b.ID,
				b.Status,
				b.Verdict,
				strconv.FormatFloat(b.Confidence, 'f', 2, 64),
				strconv.FormatFloat(b.AverageScore, 'f', 1, 64),
				strconv.Itoa(b.ReviewCount),
				b.CreatedAt.Format(time.RFC3339),
			})
		}
		cw.Flush()
	}
}
