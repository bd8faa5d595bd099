// Package api exposes the HTTP surface: analysis submission, feedback,
// retraining control, and admin endpoints.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/revcheck/revd/internal/feedback"
	"github.com/revcheck/revd/internal/storage"
)

type AppDeps struct {
	Store    *storage.Store
	Feedback *feedback.Service
	Token    string
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/analyses", handleCreateAnalysis(deps))
		r.Get("/analyses", handleListAnalyses(deps))
		r.Get("/analyses/{id}", handleGetAnalysis(deps))

		r.Post("/feedback", handleSubmitFeedback(deps))
		r.Get("/feedback/stats", handleFeedbackStats(deps))

		r.Post("/retrain", handleRetrain(deps))
		r.Get("/retrain/{id}", handleGetRetrainJob(deps))
		r.Get("/models", handleListModels(deps))
		r.Get("/models/active", handleActiveModel(deps))

		r.Get("/admin/stats", handleAdminStats(deps))
		r.Get("/admin/export", handleExportFeedback(deps))
		r.Get("/admin/export/analyses", handleExportAnalyses(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
