package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrBatchTerminal is returned when a status change is attempted on a
// batch that already completed or failed. Terminal batches are immutable.
var ErrBatchTerminal = errors.New("batch already in a terminal state")

// Batch lifecycle statuses.
const (
	BatchQueued     = "queued"
	BatchProcessing = "processing"
	BatchCompleted  = "completed"
	BatchFailed     = "failed"
)

// Batch is one analysis request: an ordered set of reviews plus the
// aggregate verdict derived from their mean reliability score.
type Batch struct {
	ID           string
	Status       string
	Verdict      string // "safe", "suspicious" or "malicious" once completed
	Confidence   float64
	AverageScore float64
	ReviewCount  int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Review is a single review within a batch. Scoring fields stay zero
// until the analysis worker enriches the row; AnalysisLabel doubles as
// the scored marker.
type Review struct {
	ID               string
	BatchID          string
	Position         int
	Content          string
	MetadataJSON     string // opaque caller fields, echoed back on read
	ReliabilityScore float64
	AnalysisLabel    string
	DisplayCategory  string
	ScoringWarning   string
}

// FeedbackRecord is one smart-labeled training example derived from a
// batch-level user verdict. At most one feedback set per batch is live;
// resubmission replaces the whole set.
type FeedbackRecord struct {
	ID              string
	BatchID         string
	ReviewText      string
	OriginalScore   float64
	Label           int
	LabelConfidence float64
	Strategy        string
	CreatedAt       time.Time
}

// FeedbackStats summarizes the stored feedback rows by label.
type FeedbackStats struct {
	Total   int
	Helpful int // label = 1
	Unfit   int // label = 0
}

// ModelVersion points at a persisted classifier artifact. At most one
// version is active at any time.
type ModelVersion struct {
	ID           int64
	Name         string
	Version      string
	ArtifactPath string
	Accuracy     float64
	Active       bool
	CreatedAt    time.Time
}

// Job types handled by the analysis worker.
const (
	JobAnalyzeBatch = "analyze_batch"
	JobRetrain      = "retrain"
)

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
	Logs        string
}
