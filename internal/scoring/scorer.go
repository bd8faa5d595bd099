// Package scoring computes review reliability scores: classifier
// probability shaped by keyword rules, plus the derived per-review
// labels and batch-level verdict.
package scoring

import (
	"context"
	"errors"
	"math"

	"github.com/revcheck/revd/internal/features"
)

// ErrModelArtifactMissing is returned when the active model version
// points at a path with no usable forest artifact.
var ErrModelArtifactMissing = errors.New("model artifact missing")

// Batch verdicts derived from the normalized average score.
const (
	VerdictSafe       = "safe"
	VerdictSuspicious = "suspicious"
	VerdictMalicious  = "malicious"
)

// Verdict thresholds on avg/100. Deliberately looser than the
// per-review label bands below.
const (
	safeThreshold       = 0.7
	suspiciousThreshold = 0.3
)

// Per-review label bands on the 0-100 score.
const (
	highlyHelpfulMin    = 76
	partiallyHelpfulMin = 36
)

// FeatureExtractor builds the classifier input for a review text.
type FeatureExtractor interface {
	Extract(ctx context.Context, text string) (features.Vector, error)
}

// Classifier yields the positive-class probability for a feature vector.
type Classifier interface {
	PredictProba(x []float64) (float64, error)
}

// Scorer scores individual reviews with the active classifier.
type Scorer struct {
	extractor  FeatureExtractor
	classifier Classifier
}

// NewScorer creates a Scorer from an extractor and classifier.
func NewScorer(extractor FeatureExtractor, classifier Classifier) *Scorer {
	return &Scorer{extractor: extractor, classifier: classifier}
}

// Score computes the reliability score (0-100, one decimal) for a review.
// The classifier probability is shaped by keyword rules in priority order:
// a review that never mentions the product collapses to a quarter of its
// raw score; a short shipping-only review collapses to a tenth; everything
// else earns a length bonus. Empty text scores 0.0 without touching the
// classifier.
func (s *Scorer) Score(ctx context.Context, text string) (float64, error) {
	if text == "" {
		return 0.0, nil
	}

	v, err := s.extractor.Extract(ctx, text)
	if err != nil {
		return 0, err
	}

	proba, err := s.classifier.PredictProba(v.Values)
	if err != nil {
		return 0, err
	}
	raw := proba * 100

	var score float64
	switch {
	case !v.HasProduct:
		score = raw * 0.25
	case v.HasDelivery && v.LengthSignal < 0.2:
		score = raw * 0.1
	default:
		bonus := float64(min(v.Chars, 50)) / 50.0
		score = raw*0.85 + raw*0.15*bonus
	}

	return round1(score), nil
}

// Verdict maps a batch average score (0-100) to the aggregate verdict
// and its confidence (the average itself, two decimals).
func Verdict(avgScore float64) (verdict string, confidence float64) {
	trust := avgScore / 100
	switch {
	case trust > safeThreshold:
		verdict = VerdictSafe
	case trust >= suspiciousThreshold:
		verdict = VerdictSuspicious
	default:
		verdict = VerdictMalicious
	}
	return verdict, math.Round(avgScore*100) / 100
}

// AnalysisLabel maps a review score to its UI label and display category.
func AnalysisLabel(score float64) (label, category string) {
	switch {
	case score >= highlyHelpfulMin:
		return "highly helpful", "status-green"
	case score >= partiallyHelpfulMin:
		return "partially helpful", "status-orange"
	default:
		return "not helpful", "status-red"
	}
}

// round1 rounds half away from zero to one decimal place.
func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
