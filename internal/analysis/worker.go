// Package analysis runs the background worker that scores queued
// review batches and executes retraining jobs.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/revcheck/revd/internal/features"
	"github.com/revcheck/revd/internal/forest"
	"github.com/revcheck/revd/internal/scoring"
	"github.com/revcheck/revd/internal/storage"
	"github.com/revcheck/revd/internal/training"
)

// JobStore abstracts the job queue and batch persistence operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	MarkBatchProcessing(id string) error
	MarkBatchFailed(id, reason string) error
	CompleteBatch(id, verdict string, confidence, averageScore float64) error
	GetBatchReviews(batchID string) ([]storage.Review, error)
	UpdateReviewAnalysis(id string, score float64, label, category, warning string) error
	ActiveModelVersion() (storage.ModelVersion, error)
}

// Retrainer executes one retraining run.
type Retrainer interface {
	Run(ctx context.Context, jobID string) (*training.Result, error)
}

// Worker processes analyze_batch and retrain jobs from the SQLite job
// queue.
type Worker struct {
	store     JobStore
	extractor scoring.FeatureExtractor
	retrainer Retrainer
	poll      time.Duration
	logger    *slog.Logger

	// The loaded forest is cached per artifact path, so a newly
	// registered model version takes effect on the next batch.
	mu         sync.Mutex
	forestPath string
	forest     *forest.Forest
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, extractor scoring.FeatureExtractor, retrainer Retrainer, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:     store,
		extractor: extractor,
		retrainer: retrainer,
		poll:      pollInterval,
		logger:    slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{storage.JobAnalyzeBatch, storage.JobRetrain})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "type", job.Type, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type analyzePayload struct {
	BatchID string `json:"batch_id"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	switch job.Type {
	case storage.JobRetrain:
		_, err := w.retrainer.Run(ctx, job.ID)
		return err
	case storage.JobAnalyzeBatch:
		var payload analyzePayload
		if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
			return fmt.Errorf("parsing payload: %w", err)
		}
		if err := w.analyzeBatch(ctx, payload.BatchID); err != nil {
			// A terminal batch stays as it is; only the job records the failure.
			if markErr := w.store.MarkBatchFailed(payload.BatchID, err.Error()); markErr != nil && !errors.Is(markErr, storage.ErrBatchTerminal) {
				w.logger.Error("failed to mark batch as failed", "batch_id", payload.BatchID, "error", markErr)
			}
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}

func (w *Worker) analyzeBatch(ctx context.Context, batchID string) error {
	if err := w.store.MarkBatchProcessing(batchID); err != nil {
		return fmt.Errorf("marking batch processing: %w", err)
	}

	classifier, err := w.activeClassifier()
	if err != nil {
		return err
	}
	scorer := scoring.NewScorer(w.extractor, classifier)

	reviews, err := w.store.GetBatchReviews(batchID)
	if err != nil {
		return fmt.Errorf("loading reviews: %w", err)
	}
	if len(reviews) == 0 {
		return fmt.Errorf("batch %s has no reviews", batchID)
	}

	var sum float64
	for _, rev := range reviews {
		score, warning := 0.0, ""
		score, err = scorer.Score(ctx, rev.Content)
		if err != nil {
			// An unreachable embedder fails the whole batch; any other
			// per-review failure degrades that review to a zero score.
			if errors.Is(err, features.ErrEmbeddingUnavailable) {
				return fmt.Errorf("scoring review %s: %w", rev.ID, err)
			}
			w.logger.Warn("review scoring failed", "review_id", rev.ID, "error", err)
			score, warning = 0.0, err.Error()
		}
		label, category := scoring.AnalysisLabel(score)
		if err := w.store.UpdateReviewAnalysis(rev.ID, score, label, category, warning); err != nil {
			return fmt.Errorf("storing review analysis: %w", err)
		}
		sum += score
	}

	avg := sum / float64(len(reviews))
	verdict, confidence := scoring.Verdict(avg)
	if err := w.store.CompleteBatch(batchID, verdict, confidence, avg); err != nil {
		return fmt.Errorf("completing batch: %w", err)
	}

	w.logger.Info("batch analyzed",
		"batch_id", batchID, "reviews", len(reviews), "verdict", verdict, "avg_score", avg)
	return nil
}

// activeClassifier loads the forest behind the active model version,
// reusing the cached copy while the artifact path is unchanged.
func (w *Worker) activeClassifier() (*forest.Forest, error) {
	active, err := w.store.ActiveModelVersion()
	if err != nil {
		return nil, fmt.Errorf("loading active model version: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	path := filepath.Join(active.ArtifactPath, training.ForestFile)
	if w.forest != nil && w.forestPath == path {
		return w.forest, nil
	}

	f, err := forest.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s (%v)", scoring.ErrModelArtifactMissing, path, err)
	}
	w.forest = f
	w.forestPath = path
	w.logger.Info("loaded model artifact", "version", active.Version, "path", path)
	return f, nil
}
