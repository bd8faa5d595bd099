package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestIndexesExist verifies that the migration creates the expected indexes.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_batches_status", "idx_batches_created_at", "idx_reviews_batch", "idx_feedbacks_batch", "idx_jobs_status"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

// TestSaveAndGetBatch saves a batch and retrieves it by ID.
func TestSaveAndGetBatch(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	want := Batch{
		ID:          "b-001",
		ReviewCount: 3,
		CreatedAt:   now,
	}

	if err := s.SaveBatch(want); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}

	got, err := s.GetBatch("b-001")
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}

	if got.ID != want.ID {
		t.Errorf("ID = %q, want %q", got.ID, want.ID)
	}
	if got.Status != BatchQueued {
		t.Errorf("Status = %q, want %q", got.Status, BatchQueued)
	}
	if got.ReviewCount != 3 {
		t.Errorf("ReviewCount = %d, want 3", got.ReviewCount)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now)
	}
}

// TestGetBatchNotFound verifies that retrieving a non-existent ID returns ErrNotFound.
func TestGetBatchNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetBatch("does-not-exist")
	if err != ErrNotFound {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

// TestBatchLifecycle walks a batch through queued -> processing -> completed.
func TestBatchLifecycle(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveBatch(Batch{ID: "b-life", ReviewCount: 2}); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}

	if err := s.MarkBatchProcessing("b-life"); err != nil {
		t.Fatalf("MarkBatchProcessing: %v", err)
	}
	got, err := s.GetBatch("b-life")
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if got.Status != BatchProcessing {
		t.Errorf("Status = %q, want %q", got.Status, BatchProcessing)
	}

	if err := s.CompleteBatch("b-life", "suspicious", 0.5, 50.0); err != nil {
		t.Fatalf("CompleteBatch: %v", err)
	}
	got, err = s.GetBatch("b-life")
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if got.Status != BatchCompleted {
		t.Errorf("Status = %q, want %q", got.Status, BatchCompleted)
	}
	if got.Verdict != "suspicious" {
		t.Errorf("Verdict = %q, want %q", got.Verdict, "suspicious")
	}
	if got.AverageScore != 50.0 {
		t.Errorf("AverageScore = %v, want 50.0", got.AverageScore)
	}
}

// TestMarkBatchFailed records the failure reason.
func TestMarkBatchFailed(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveBatch(Batch{ID: "b-fail"}); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	if err := s.MarkBatchFailed("b-fail", "embedding backend unreachable"); err != nil {
		t.Fatalf("MarkBatchFailed: %v", err)
	}

	got, err := s.GetBatch("b-fail")
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if got.Status != BatchFailed {
		t.Errorf("Status = %q, want %q", got.Status, BatchFailed)
	}
	if got.ErrorMessage != "embedding backend unreachable" {
		t.Errorf("ErrorMessage = %q", got.ErrorMessage)
	}
}

// A batch that completed or failed is immutable: no status update may
// reopen it, including a stale job retry racing the first attempt.
func TestBatchTerminalStateImmutable(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveBatch(Batch{ID: "b-term"}); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	if err := s.MarkBatchFailed("b-term", "model artifact missing"); err != nil {
		t.Fatalf("MarkBatchFailed: %v", err)
	}

	if err := s.MarkBatchProcessing("b-term"); !errors.Is(err, ErrBatchTerminal) {
		t.Errorf("MarkBatchProcessing on failed batch: err = %v, want ErrBatchTerminal", err)
	}
	if err := s.CompleteBatch("b-term", "safe", 0.9, 88); !errors.Is(err, ErrBatchTerminal) {
		t.Errorf("CompleteBatch on failed batch: err = %v, want ErrBatchTerminal", err)
	}
	if err := s.MarkBatchFailed("b-term", "second failure"); !errors.Is(err, ErrBatchTerminal) {
		t.Errorf("MarkBatchFailed on failed batch: err = %v, want ErrBatchTerminal", err)
	}

	got, err := s.GetBatch("b-term")
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if got.Status != BatchFailed || got.ErrorMessage != "model artifact missing" {
		t.Errorf("batch = %q/%q, want original failed state", got.Status, got.ErrorMessage)
	}

	// Completed batches are just as frozen.
	if err := s.SaveBatch(Batch{ID: "b-done"}); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	if err := s.CompleteBatch("b-done", "safe", 0.8, 80); err != nil {
		t.Fatalf("CompleteBatch: %v", err)
	}
	if err := s.MarkBatchFailed("b-done", "late failure"); !errors.Is(err, ErrBatchTerminal) {
		t.Errorf("MarkBatchFailed on completed batch: err = %v, want ErrBatchTerminal", err)
	}

	// A missing batch still reports not-found, not terminal.
	if err := s.MarkBatchProcessing("b-missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkBatchProcessing on missing batch: err = %v, want ErrNotFound", err)
	}
}

// TestListBatches saves batches in two statuses and verifies filtering and order.
func TestListBatches(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for j := 0; j < 6; j++ {
		b := Batch{
			ID:        fmt.Sprintf("b-%02d", j),
			CreatedAt: base.Add(time.Duration(j) * time.Hour),
		}
		if err := s.SaveBatch(b); err != nil {
			t.Fatalf("SaveBatch %d: %v", j, err)
		}
	}
	if err := s.CompleteBatch("b-02", "safe", 0.9, 88.0); err != nil {
		t.Fatalf("CompleteBatch: %v", err)
	}

	got, err := s.ListBatches("", 4, 0)
	if err != nil {
		t.Fatalf("ListBatches: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d batches, want 4", len(got))
	}
	if got[0].ID != "b-05" {
		t.Errorf("first batch ID = %q, want %q", got[0].ID, "b-05")
	}

	completed, err := s.ListBatches(BatchCompleted, 10, 0)
	if err != nil {
		t.Fatalf("ListBatches(completed): %v", err)
	}
	if len(completed) != 1 || completed[0].ID != "b-02" {
		t.Errorf("completed filter = %+v, want just b-02", completed)
	}
}

// TestCountBatches counts totals and recent batches.
func TestCountBatches(t *testing.T) {
	s := openTestStore(t)

	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.SaveBatch(Batch{ID: "b-old", CreatedAt: old}); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	if err := s.SaveBatch(Batch{ID: "b-new"}); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}

	total, recent, err := s.CountBatches(time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountBatches: %v", err)
	}
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}
	if recent != 1 {
		t.Errorf("recent = %d, want 1", recent)
	}
}

// TestBatchesBetween returns only batches inside the window, oldest-first.
func TestBatchesBetween(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for j := 0; j < 4; j++ {
		b := Batch{ID: fmt.Sprintf("b-w%d", j), CreatedAt: base.AddDate(0, 0, j)}
		if err := s.SaveBatch(b); err != nil {
			t.Fatalf("SaveBatch %d: %v", j, err)
		}
	}

	got, err := s.BatchesBetween(base.AddDate(0, 0, 1), base.AddDate(0, 0, 3))
	if err != nil {
		t.Fatalf("BatchesBetween: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d batches, want 2", len(got))
	}
	if got[0].ID != "b-w1" || got[1].ID != "b-w2" {
		t.Errorf("window = [%s %s], want [b-w1 b-w2]", got[0].ID, got[1].ID)
	}
}

// TestSaveAndGetReviews round-trips reviews in submission order.
func TestSaveAndGetReviews(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveBatch(Batch{ID: "b-r", ReviewCount: 2}); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	reviews := []Review{
		{ID: "r-1", BatchID: "b-r", Position: 0, Content: "배송이 빨라요", MetadataJSON: `{"source":"web"}`},
		{ID: "r-2", BatchID: "b-r", Position: 1, Content: "제품 품질이 좋습니다"},
	}
	if err := s.SaveReviews(reviews); err != nil {
		t.Fatalf("SaveReviews: %v", err)
	}

	got, err := s.GetBatchReviews("b-r")
	if err != nil {
		t.Fatalf("GetBatchReviews: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d reviews, want 2", len(got))
	}
	if got[0].ID != "r-1" || got[1].ID != "r-2" {
		t.Errorf("order = [%s %s], want [r-1 r-2]", got[0].ID, got[1].ID)
	}
	if got[0].MetadataJSON != `{"source":"web"}` {
		t.Errorf("MetadataJSON = %q", got[0].MetadataJSON)
	}
	if got[0].AnalysisLabel != "" {
		t.Errorf("AnalysisLabel = %q, want empty before analysis", got[0].AnalysisLabel)
	}
}

// TestUpdateReviewAnalysis writes scoring results onto a review row.
func TestUpdateReviewAnalysis(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveBatch(Batch{ID: "b-u"}); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	if err := s.SaveReviews([]Review{{ID: "r-u", BatchID: "b-u", Position: 0, Content: "좋아요"}}); err != nil {
		t.Fatalf("SaveReviews: %v", err)
	}

	if err := s.UpdateReviewAnalysis("r-u", 81.5, "highly helpful", "status-green", ""); err != nil {
		t.Fatalf("UpdateReviewAnalysis: %v", err)
	}

	got, err := s.GetBatchReviews("b-u")
	if err != nil {
		t.Fatalf("GetBatchReviews: %v", err)
	}
	if got[0].ReliabilityScore != 81.5 {
		t.Errorf("ReliabilityScore = %v, want 81.5", got[0].ReliabilityScore)
	}
	if got[0].AnalysisLabel != "highly helpful" {
		t.Errorf("AnalysisLabel = %q", got[0].AnalysisLabel)
	}
	if got[0].DisplayCategory != "status-green" {
		t.Errorf("DisplayCategory = %q", got[0].DisplayCategory)
	}

	if err := s.UpdateReviewAnalysis("r-missing", 0, "", "", ""); err != ErrNotFound {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

// TestReplaceFeedback verifies resubmission replaces the prior set wholesale.
func TestReplaceFeedback(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveBatch(Batch{ID: "b-fb"}); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}

	first := []FeedbackRecord{
		{ID: "f-1", BatchID: "b-fb", ReviewText: "review one", OriginalScore: 90, Label: 1, LabelConfidence: 0.9, Strategy: "hybrid"},
		{ID: "f-2", BatchID: "b-fb", ReviewText: "review two", OriginalScore: 20, Label: 0, LabelConfidence: 0.8, Strategy: "hybrid"},
	}
	if err := s.ReplaceFeedback("b-fb", first); err != nil {
		t.Fatalf("ReplaceFeedback (first): %v", err)
	}

	second := []FeedbackRecord{
		{ID: "f-3", BatchID: "b-fb", ReviewText: "review one", OriginalScore: 90, Label: 0, LabelConfidence: 0.1, Strategy: "weak"},
	}
	if err := s.ReplaceFeedback("b-fb", second); err != nil {
		t.Fatalf("ReplaceFeedback (second): %v", err)
	}

	got, err := s.AllFeedback()
	if err != nil {
		t.Fatalf("AllFeedback: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d feedback rows, want 1 after replacement", len(got))
	}
	if got[0].ID != "f-3" {
		t.Errorf("ID = %q, want %q", got[0].ID, "f-3")
	}
	if got[0].Strategy != "weak" {
		t.Errorf("Strategy = %q, want %q", got[0].Strategy, "weak")
	}
}

// TestGetFeedbackStats counts rows per label.
func TestGetFeedbackStats(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveBatch(Batch{ID: "b-st"}); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	records := []FeedbackRecord{
		{ID: "f-a", BatchID: "b-st", ReviewText: "a", OriginalScore: 90, Label: 1, LabelConfidence: 0.9, Strategy: "hybrid"},
		{ID: "f-b", BatchID: "b-st", ReviewText: "b", OriginalScore: 85, Label: 1, LabelConfidence: 0.85, Strategy: "hybrid"},
		{ID: "f-c", BatchID: "b-st", ReviewText: "c", OriginalScore: 10, Label: 0, LabelConfidence: 0.9, Strategy: "hybrid"},
	}
	if err := s.ReplaceFeedback("b-st", records); err != nil {
		t.Fatalf("ReplaceFeedback: %v", err)
	}

	stats, err := s.GetFeedbackStats()
	if err != nil {
		t.Fatalf("GetFeedbackStats: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.Helpful != 2 {
		t.Errorf("Helpful = %d, want 2", stats.Helpful)
	}
	if stats.Unfit != 1 {
		t.Errorf("Unfit = %d, want 1", stats.Unfit)
	}
}

// TestRegisterModelVersion_DeactivatesPrior verifies at most one active version.
func TestRegisterModelVersion_DeactivatesPrior(t *testing.T) {
	s := openTestStore(t)

	v1, err := s.RegisterModelVersion(ModelVersion{Name: "review-rf", Version: "v1.0", ArtifactPath: "/models/base"})
	if err != nil {
		t.Fatalf("RegisterModelVersion v1: %v", err)
	}
	if !v1.Active {
		t.Error("v1 should be active")
	}

	v2, err := s.RegisterModelVersion(ModelVersion{Name: "review-rf", Version: "v1.1", ArtifactPath: "/models/m1", Accuracy: 0.84})
	if err != nil {
		t.Fatalf("RegisterModelVersion v2: %v", err)
	}

	active, err := s.ActiveModelVersion()
	if err != nil {
		t.Fatalf("ActiveModelVersion: %v", err)
	}
	if active.ID != v2.ID {
		t.Errorf("active ID = %d, want %d", active.ID, v2.ID)
	}
	if active.Version != "v1.1" {
		t.Errorf("active Version = %q, want v1.1", active.Version)
	}

	all, err := s.ListModelVersions()
	if err != nil {
		t.Fatalf("ListModelVersions: %v", err)
	}
	activeCount := 0
	for _, m := range all {
		if m.Active {
			activeCount++
		}
	}
	if activeCount != 1 {
		t.Errorf("active versions = %d, want 1", activeCount)
	}
}

// TestEnsureInitialModelVersion seeds v1.0 once and is a no-op afterwards.
func TestEnsureInitialModelVersion(t *testing.T) {
	s := openTestStore(t)

	first, err := s.EnsureInitialModelVersion("review-rf", "/models/base")
	if err != nil {
		t.Fatalf("EnsureInitialModelVersion (first): %v", err)
	}
	if first.Version != "v1.0" {
		t.Errorf("Version = %q, want v1.0", first.Version)
	}

	second, err := s.EnsureInitialModelVersion("review-rf", "/models/other")
	if err != nil {
		t.Fatalf("EnsureInitialModelVersion (second): %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second call registered a new version: %d != %d", second.ID, first.ID)
	}

	all, err := s.ListModelVersions()
	if err != nil {
		t.Fatalf("ListModelVersions: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("got %d versions, want 1", len(all))
	}
}

func TestEnqueueAndClaimJob(t *testing.T) {
	s := openTestStore(t)

	job := Job{
		ID:          "j-claim-1",
		Type:        JobAnalyzeBatch,
		PayloadJSON: `{"batch_id":"b1"}`,
	}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	got, err := s.ClaimNextJob([]string{JobAnalyzeBatch})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got == nil {
		t.Fatal("ClaimNextJob returned nil")
	}
	if got.ID != "j-claim-1" {
		t.Errorf("ID = %q, want %q", got.ID, "j-claim-1")
	}
	if got.Status != "running" {
		t.Errorf("Status = %q, want %q", got.Status, "running")
	}
	if got.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", got.MaxAttempts)
	}
}

func TestClaimNextJob_Empty(t *testing.T) {
	s := openTestStore(t)

	got, err := s.ClaimNextJob([]string{JobAnalyzeBatch})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestClaimNextJob_RespectRunAfter(t *testing.T) {
	s := openTestStore(t)

	job := Job{
		ID:          "j-future",
		Type:        JobRetrain,
		PayloadJSON: `{}`,
		RunAfter:    time.Now().UTC().Add(1 * time.Hour),
	}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	got, err := s.ClaimNextJob([]string{JobRetrain})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for future run_after, got %+v", got)
	}
}

func TestHasPendingOrRunningJob(t *testing.T) {
	s := openTestStore(t)

	busy, err := s.HasPendingOrRunningJob(JobRetrain)
	if err != nil {
		t.Fatalf("HasPendingOrRunningJob: %v", err)
	}
	if busy {
		t.Error("expected no retrain job yet")
	}

	if err := s.EnqueueJob(Job{ID: "j-rt", Type: JobRetrain, PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	busy, err = s.HasPendingOrRunningJob(JobRetrain)
	if err != nil {
		t.Fatalf("HasPendingOrRunningJob: %v", err)
	}
	if !busy {
		t.Error("expected pending retrain job to count")
	}

	if _, err := s.ClaimNextJob([]string{JobRetrain}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	busy, err = s.HasPendingOrRunningJob(JobRetrain)
	if err != nil {
		t.Fatalf("HasPendingOrRunningJob: %v", err)
	}
	if !busy {
		t.Error("expected running retrain job to count")
	}

	if err := s.CompleteJob("j-rt"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	busy, err = s.HasPendingOrRunningJob(JobRetrain)
	if err != nil {
		t.Fatalf("HasPendingOrRunningJob: %v", err)
	}
	if busy {
		t.Error("completed job should not count")
	}
}

func TestAppendJobLog(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-log", Type: JobRetrain, PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if err := s.AppendJobLog("j-log", "merging datasets"); err != nil {
		t.Fatalf("AppendJobLog: %v", err)
	}
	if err := s.AppendJobLog("j-log", "training forest"); err != nil {
		t.Fatalf("AppendJobLog: %v", err)
	}

	got, err := s.GetJob("j-log")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Logs != "merging datasets\ntraining forest\n" {
		t.Errorf("Logs = %q", got.Logs)
	}
}

func TestFailJob_IncrementsAttempts(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-fail-inc", Type: JobAnalyzeBatch, PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{JobAnalyzeBatch}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.FailJob("j-fail-inc", "something broke"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	got, err := s.GetJob("j-fail-inc")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", got.Attempts)
	}
	if got.Status != "pending" {
		t.Errorf("Status = %q, want %q", got.Status, "pending")
	}
	if got.LastError != "something broke" {
		t.Errorf("LastError = %q", got.LastError)
	}
}

func TestFailJob_MaxAttemptsReached(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-fail-max", Type: JobRetrain, PayloadJSON: `{}`, MaxAttempts: 1}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{JobRetrain}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.FailJob("j-fail-max", "insufficient data"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	got, err := s.GetJob("j-fail-max")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != "failed" {
		t.Errorf("Status = %q, want %q", got.Status, "failed")
	}
	if got.LastError != "insufficient data" {
		t.Errorf("LastError = %q", got.LastError)
	}
}
