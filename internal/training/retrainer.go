package training

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/revcheck/revd/internal/features"
	"github.com/revcheck/revd/internal/forest"
	"github.com/revcheck/revd/internal/storage"
)

// Data-sufficiency gates. A gated run fails the retrain job without
// touching the active model.
var (
	ErrInsufficientData = errors.New("insufficient training data")
	ErrClassImbalance   = errors.New("class imbalance")
)

const (
	minTotalSamples = 100
	minPerClass     = 5
	testFraction    = 0.2
)

// ForestFile is the classifier artifact name inside a model directory.
const ForestFile = "forest.json"

// MetadataFile sits next to the forest artifact.
const MetadataFile = "metadata.json"

// Store is the persistence surface the retrainer needs.
type Store interface {
	AllFeedback() ([]storage.FeedbackRecord, error)
	ActiveModelVersion() (storage.ModelVersion, error)
	RegisterModelVersion(m storage.ModelVersion) (storage.ModelVersion, error)
	AppendJobLog(id, line string) error
}

// BatchExtractor turns texts into feature vectors.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, texts []string) ([]features.Vector, error)
}

// Metadata describes a trained model artifact; written as metadata.json
// next to the forest.
type Metadata struct {
	TotalSamples    int            `json:"total_samples"`
	OriginalSamples int            `json:"original_samples"`
	FeedbackSamples int            `json:"feedback_samples"`
	TrainSamples    int            `json:"train_samples"`
	ValSamples      int            `json:"val_samples"`
	TrainAccuracy   float64        `json:"train_accuracy"`
	ValAccuracy     float64        `json:"val_accuracy"`
	CVAccuracy      float64        `json:"cv_accuracy"`
	CVStd           float64        `json:"cv_std"`
	NumFeatures     int            `json:"n_features"`
	Params          forest.Params  `json:"hyperparameters"`
	LabelCounts     map[string]int `json:"label_distribution"`
	CreatedAt       string         `json:"created_at"`
	EmbedModel      string         `json:"embed_model"`
	TrainingMode    string         `json:"training_mode"`
}

// Result summarizes one completed retraining run.
type Result struct {
	Metadata    Metadata
	Warnings    []string
	ArtifactDir string
	Version     storage.ModelVersion
}

// Retrainer rebuilds the classifier from the merged original + feedback
// dataset and registers the artifact as the new active model version.
type Retrainer struct {
	store       Store
	extractor   BatchExtractor
	originalCSV string
	modelsDir   string
	embedModel  string
	params      forest.Params
	logger      *slog.Logger
	now         func() time.Time
}

// NewRetrainer wires a Retrainer. originalCSV may point at a missing
// file; retraining then runs on feedback data alone.
func NewRetrainer(store Store, extractor BatchExtractor, originalCSV, modelsDir, embedModel string, logger *slog.Logger) *Retrainer {
	return &Retrainer{
		store:       store,
		extractor:   extractor,
		originalCSV: originalCSV,
		modelsDir:   modelsDir,
		embedModel:  embedModel,
		params:      forest.DefaultParams(),
		logger:      logger,
		now:         time.Now,
	}
}

// Run executes one retraining job. Gate failures (too little data, a
// starved class) return an error before any training work; the active
// model version is only replaced after the new artifact is fully
// persisted.
func (r *Retrainer) Run(ctx context.Context, jobID string) (*Result, error) {
	original, err := LoadOriginalCSV(r.originalCSV)
	if err != nil {
		return nil, fmt.Errorf("loading original dataset: %w", err)
	}

	feedbackRows, err := r.store.AllFeedback()
	if err != nil {
		return nil, fmt.Errorf("loading feedback: %w", err)
	}
	feedback := make([]Example, 0, len(feedbackRows))
	for _, f := range feedbackRows {
		feedback = append(feedback, Example{Text: f.ReviewText, Label: f.Label})
	}

	dataset, err := Merge(original, feedback)
	if err != nil {
		return nil, err
	}
	r.log(jobID, fmt.Sprintf("dataset merged: %d original + %d feedback", len(original), len(feedback)))

	if len(dataset) < minTotalSamples {
		return nil, fmt.Errorf("%w: %d samples, need %d", ErrInsufficientData, len(dataset), minTotalSamples)
	}
	positives, negatives := 0, 0
	for _, e := range dataset {
		if e.Label == 1 {
			positives++
		} else {
			negatives++
		}
	}
	if positives < minPerClass || negatives < minPerClass {
		return nil, fmt.Errorf("%w: label=1 %d, label=0 %d, need %d each", ErrClassImbalance, positives, negatives, minPerClass)
	}

	texts := make([]string, len(dataset))
	labels := make([]int, len(dataset))
	for i, e := range dataset {
		texts[i] = e.Text
		labels[i] = e.Label
	}
	r.log(jobID, fmt.Sprintf("extracting features for %d samples", len(texts)))
	vectors, err := r.extractor.ExtractBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("extracting features: %w", err)
	}
	X := make([][]float64, len(vectors))
	for i, v := range vectors {
		X[i] = v.Values
	}

	split, err := StratifiedSplit(X, labels, testFraction, r.params.Seed)
	if err != nil {
		return nil, fmt.Errorf("splitting dataset: %w", err)
	}
	r.log(jobID, fmt.Sprintf("split: train=%d val=%d", len(split.TrainX), len(split.ValX)))

	f, err := forest.Fit(split.TrainX, split.TrainY, r.params)
	if err != nil {
		return nil, fmt.Errorf("training forest: %w", err)
	}

	trainAcc, err := f.Accuracy(split.TrainX, split.TrainY)
	if err != nil {
		return nil, fmt.Errorf("scoring training set: %w", err)
	}
	valAcc, err := f.Accuracy(split.ValX, split.ValY)
	if err != nil {
		return nil, fmt.Errorf("scoring validation set: %w", err)
	}

	k := len(X) / 4
	if k > 5 {
		k = 5
	}
	cvMean, cvStd, err := CrossValidate(X, labels, k, r.params)
	if err != nil {
		return nil, fmt.Errorf("cross-validating: %w", err)
	}
	r.log(jobID, fmt.Sprintf("accuracy: train=%.4f val=%.4f cv=%.4f (±%.4f)", trainAcc, valAcc, cvMean, cvStd))

	var warnings []string
	if valAcc < 0.7 {
		warnings = append(warnings, fmt.Sprintf("validation accuracy below 0.70 (%.4f)", valAcc))
	}
	if trainAcc-valAcc > 0.15 {
		warnings = append(warnings, fmt.Sprintf("possible overfit: train-val gap %.4f", trainAcc-valAcc))
	}
	for _, w := range warnings {
		r.logger.Warn("retraining quality warning", "job_id", jobID, "warning", w)
		r.log(jobID, "warning: "+w)
	}

	artifactDir := filepath.Join(r.modelsDir, "model_"+r.now().UTC().Format("20060102_150405"))
	if err := os.MkdirAll(artifactDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}
	if err := forest.Save(f, filepath.Join(artifactDir, ForestFile)); err != nil {
		return nil, err
	}

	meta := Metadata{
		TotalSamples:    len(X),
		OriginalSamples: len(original),
		FeedbackSamples: len(feedback),
		TrainSamples:    len(split.TrainX),
		ValSamples:      len(split.ValX),
		TrainAccuracy:   trainAcc,
		ValAccuracy:     valAcc,
		CVAccuracy:      cvMean,
		CVStd:           cvStd,
		NumFeatures:     f.NumFeatures,
		Params:          r.params,
		LabelCounts:     map[string]int{"positive": positives, "negative": negatives},
		CreatedAt:       r.now().UTC().Format(time.RFC3339),
		EmbedModel:      r.embedModel,
		TrainingMode:    "original_plus_feedback",
	}
	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(artifactDir, MetadataFile), metaData, 0o644); err != nil {
		return nil, fmt.Errorf("writing metadata: %w", err)
	}

	active, err := r.store.ActiveModelVersion()
	if err != nil {
		return nil, fmt.Errorf("loading active version: %w", err)
	}
	nextVersion, err := bumpVersion(active.Version)
	if err != nil {
		return nil, err
	}
	registered, err := r.store.RegisterModelVersion(storage.ModelVersion{
		Name:         active.Name,
		Version:      nextVersion,
		ArtifactPath: artifactDir,
		Accuracy:     valAcc,
	})
	if err != nil {
		return nil, fmt.Errorf("registering model version: %w", err)
	}
	r.log(jobID, fmt.Sprintf("registered %s (val accuracy %.4f)", nextVersion, valAcc))
	r.logger.Info("retraining complete",
		"job_id", jobID, "version", nextVersion, "val_accuracy", valAcc, "samples", len(X))

	return &Result{
		Metadata:    meta,
		Warnings:    warnings,
		ArtifactDir: artifactDir,
		Version:     registered,
	}, nil
}

// log appends a line to the job's durable log trail, best-effort.
func (r *Retrainer) log(jobID, line string) {
	if err := r.store.AppendJobLog(jobID, line); err != nil {
		r.logger.Warn("appending job log", "job_id", jobID, "error", err)
	}
}

// bumpVersion increments the minor component: v1.2 -> v1.3.
func bumpVersion(version string) (string, error) {
	var major, minor int
	if _, err := fmt.Sscanf(version, "v%d.%d", &major, &minor); err != nil {
		return "", fmt.Errorf("parsing model version %q: %w", version, err)
	}
	return fmt.Sprintf("v%d.%d", major, minor+1), nil
}
