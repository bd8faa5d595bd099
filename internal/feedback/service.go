// Package feedback converts a batch-level user verdict into stored
// per-review training labels.
package feedback

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/revcheck/revd/internal/labeling"
	"github.com/revcheck/revd/internal/storage"
)

var (
	// ErrUnknownStrategy rejects strategy names outside the known set.
	ErrUnknownStrategy = errors.New("unknown labeling strategy")
	// ErrBatchNotCompleted rejects feedback on batches that have no
	// scored reviews yet.
	ErrBatchNotCompleted = errors.New("batch analysis not completed")
)

// Store is the persistence surface the feedback service needs.
type Store interface {
	GetBatch(id string) (storage.Batch, error)
	GetBatchReviews(batchID string) ([]storage.Review, error)
	ReplaceFeedback(batchID string, records []storage.FeedbackRecord) error
	GetFeedbackStats() (storage.FeedbackStats, error)
}

// Result summarizes one feedback submission.
type Result struct {
	BatchID      string
	Strategy     string
	Saved        int
	Excluded     int
	Helpful      int // label = 1
	Unfit        int // label = 0
	AverageScore float64
}

type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

// Submit labels every review of a completed batch from the user's
// single satisfied/unsatisfied verdict and replaces any feedback
// previously stored for that batch. An empty strategy selects the
// default.
func (s *Service) Submit(batchID string, satisfied bool, strategy string) (*Result, error) {
	if strategy == "" {
		strategy = labeling.DefaultStrategy
	}
	if !labeling.Valid(strategy) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}

	batch, err := s.store.GetBatch(batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != storage.BatchCompleted {
		return nil, fmt.Errorf("%w: batch %s is %s", ErrBatchNotCompleted, batchID, batch.Status)
	}

	reviews, err := s.store.GetBatchReviews(batchID)
	if err != nil {
		return nil, err
	}
	if len(reviews) == 0 {
		return nil, fmt.Errorf("%w: batch %s has no reviews", ErrBatchNotCompleted, batchID)
	}

	var sum float64
	for _, rev := range reviews {
		sum += rev.ReliabilityScore
	}
	avg := sum / float64(len(reviews))

	res := &Result{BatchID: batchID, Strategy: strategy, AverageScore: avg}
	records := make([]storage.FeedbackRecord, 0, len(reviews))
	createdAt := s.now().UTC()
	for _, rev := range reviews {
		label, ok := labeling.Label(strategy, rev.ReliabilityScore, avg, satisfied)
		if !ok {
			res.Excluded++
			continue
		}
		if label == 1 {
			res.Helpful++
		} else {
			res.Unfit++
		}
		records = append(records, storage.FeedbackRecord{
			ID:              uuid.NewString(),
			BatchID:         batchID,
			ReviewText:      rev.Content,
			OriginalScore:   rev.ReliabilityScore,
			Label:           label,
			LabelConfidence: labeling.Confidence(rev.ReliabilityScore, label),
			Strategy:        strategy,
			CreatedAt:       createdAt,
		})
	}
	res.Saved = len(records)

	if err := s.store.ReplaceFeedback(batchID, records); err != nil {
		return nil, fmt.Errorf("storing feedback: %w", err)
	}

	s.logger.Info("feedback stored",
		"batch_id", batchID, "strategy", strategy, "satisfied", satisfied,
		"saved", res.Saved, "excluded", res.Excluded)
	return res, nil
}

// Stats returns label counts over all stored feedback.
func (s *Service) Stats() (storage.FeedbackStats, error) {
	return s.store.GetFeedbackStats()
}
