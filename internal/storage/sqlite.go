package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for batches, reviews,
// feedback, model versions, and jobs.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "revd.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Batches ---

func (s *Store) SaveBatch(b Batch) error {
	status := b.Status
	if status == "" {
		status = BatchQueued
	}
	now := time.Now().UTC()
	createdAt := b.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err := s.db.Exec(`
		INSERT INTO batches (id, status, verdict, confidence, average_score, review_count, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, status, b.Verdict, b.Confidence, b.AverageScore, b.ReviewCount, b.ErrorMessage,
		createdAt.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetBatch(id string) (Batch, error) {
	var b Batch
	var createdAt, updatedAt string
	err := s.db.QueryRow(`
		SELECT id, status, verdict, confidence, average_score, review_count, error_message, created_at, updated_at
		FROM batches WHERE id = ?`, id,
	).Scan(&b.ID, &b.Status, &b.Verdict, &b.Confidence, &b.AverageScore, &b.ReviewCount, &b.ErrorMessage, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Batch{}, ErrNotFound
	}
	if err != nil {
		return Batch{}, err
	}
	if b.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Batch{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if b.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Batch{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return b, nil
}

// ListBatches returns batches newest-first, optionally filtered by status.
func (s *Store) ListBatches(status string, limit, offset int) ([]Batch, error) {
	query := `
		SELECT id, status, verdict, confidence, average_score, review_count, error_message, created_at, updated_at
		FROM batches`
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBatches(rows)
}

// BatchesBetween returns batches created within [start, end), oldest-first.
func (s *Store) BatchesBetween(start, end time.Time) ([]Batch, error) {
	rows, err := s.db.Query(`
		SELECT id, status, verdict, confidence, average_score, review_count, error_message, created_at, updated_at
		FROM batches
		WHERE created_at >= ? AND created_at < ?
		ORDER BY created_at ASC`,
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBatches(rows)
}

func scanBatches(rows *sql.Rows) ([]Batch, error) {
	var results []Batch
	for rows.Next() {
		var b Batch
		var createdAt, updatedAt string
		if err := rows.Scan(&b.ID, &b.Status, &b.Verdict, &b.Confidence, &b.AverageScore, &b.ReviewCount, &b.ErrorMessage, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		var err error
		if b.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if b.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		results = append(results, b)
	}
	return results, rows.Err()
}

// MarkBatchProcessing flips a batch to processing.
func (s *Store) MarkBatchProcessing(id string) error {
	return s.updateBatchStatus(id, BatchProcessing, "")
}

// MarkBatchFailed records a terminal failure with a reason.
func (s *Store) MarkBatchFailed(id, reason string) error {
	return s.updateBatchStatus(id, BatchFailed, reason)
}

func (s *Store) updateBatchStatus(id, status, errMsg string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`
		UPDATE batches SET status = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND status NOT IN (?, ?)`,
		status, errMsg, now, id, BatchCompleted, BatchFailed)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.batchUpdateRejection(id)
	}
	return nil
}

// CompleteBatch records the aggregate verdict and marks the batch completed.
func (s *Store) CompleteBatch(id, verdict string, confidence, averageScore float64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`
		UPDATE batches SET status = ?, verdict = ?, confidence = ?, average_score = ?, error_message = '', updated_at = ?
		WHERE id = ? AND status NOT IN (?, ?)`,
		BatchCompleted, verdict, confidence, averageScore, now, id, BatchCompleted, BatchFailed)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.batchUpdateRejection(id)
	}
	return nil
}

// batchUpdateRejection tells a missing batch apart from a terminal one
// after a guarded UPDATE matched no rows.
func (s *Store) batchUpdateRejection(id string) error {
	if _, err := s.GetBatch(id); err != nil {
		return err
	}
	return ErrBatchTerminal
}

// CountBatches returns the total number of batches and how many were
// created on or after the given instant.
func (s *Store) CountBatches(since time.Time) (total, recent int, err error) {
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM batches`).Scan(&total); err != nil {
		return 0, 0, err
	}
	err = s.db.QueryRow(`SELECT COUNT(*) FROM batches WHERE created_at >= ?`,
		since.UTC().Format(time.RFC3339)).Scan(&recent)
	return total, recent, err
}

// --- Reviews ---

// SaveReviews inserts the reviews of a batch in one transaction.
func (s *Store) SaveReviews(reviews []Review) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning review insert: %w", err)
	}
	defer tx.Rollback()

	for _, r := range reviews {
		if _, err := tx.Exec(`
			INSERT INTO reviews (id, batch_id, position, content, metadata_json, reliability_score, analysis_label, display_category, scoring_warning)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.BatchID, r.Position, r.Content, r.MetadataJSON,
			r.ReliabilityScore, r.AnalysisLabel, r.DisplayCategory, r.ScoringWarning,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetBatchReviews returns a batch's reviews in submission order.
func (s *Store) GetBatchReviews(batchID string) ([]Review, error) {
	rows, err := s.db.Query(`
		SELECT id, batch_id, position, content, metadata_json, reliability_score, analysis_label, display_category, scoring_warning
		FROM reviews WHERE batch_id = ? ORDER BY position ASC`, batchID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Review
	for rows.Next() {
		var r Review
		if err := rows.Scan(&r.ID, &r.BatchID, &r.Position, &r.Content, &r.MetadataJSON,
			&r.ReliabilityScore, &r.AnalysisLabel, &r.DisplayCategory, &r.ScoringWarning); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// UpdateReviewAnalysis writes the scoring outcome onto a review row.
func (s *Store) UpdateReviewAnalysis(id string, score float64, label, category, warning string) error {
	res, err := s.db.Exec(`
		UPDATE reviews SET reliability_score = ?, analysis_label = ?, display_category = ?, scoring_warning = ?
		WHERE id = ?`,
		score, label, category, warning, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Feedback ---

// ReplaceFeedback deletes any feedback rows previously stored for the
// batch and inserts the new set, all in one transaction. Resubmitting
// feedback for a batch replaces the old labels wholesale.
func (s *Store) ReplaceFeedback(batchID string, records []FeedbackRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning feedback transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM feedbacks WHERE batch_id = ?`, batchID); err != nil {
		return fmt.Errorf("deleting prior feedback: %w", err)
	}

	for _, r := range records {
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := tx.Exec(`
			INSERT INTO feedbacks (id, batch_id, review_text, original_score, label, label_confidence, strategy, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, batchID, r.ReviewText, r.OriginalScore, r.Label, r.LabelConfidence, r.Strategy,
			createdAt.Format(time.RFC3339),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AllFeedback returns every stored feedback row, oldest-first.
func (s *Store) AllFeedback() ([]FeedbackRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, batch_id, review_text, original_score, label, label_confidence, strategy, created_at
		FROM feedbacks ORDER BY created_at ASC, id ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FeedbackRecord
	for rows.Next() {
		var r FeedbackRecord
		var createdAt string
		if err := rows.Scan(&r.ID, &r.BatchID, &r.ReviewText, &r.OriginalScore, &r.Label, &r.LabelConfidence, &r.Strategy, &createdAt); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// GetFeedbackStats counts stored feedback rows per label.
func (s *Store) GetFeedbackStats() (FeedbackStats, error) {
	var stats FeedbackStats
	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN label = 1 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN label = 0 THEN 1 ELSE 0 END), 0)
		FROM feedbacks`,
	).Scan(&stats.Total, &stats.Helpful, &stats.Unfit)
	return stats, err
}

// --- Model versions ---

// ActiveModelVersion returns the currently active model version.
func (s *Store) ActiveModelVersion() (ModelVersion, error) {
	return scanModelVersion(s.db.QueryRow(`
		SELECT id, name, version, artifact_path, accuracy, active, created_at
		FROM model_versions WHERE active = 1 ORDER BY id DESC LIMIT 1`))
}

func scanModelVersion(row *sql.Row) (ModelVersion, error) {
	var m ModelVersion
	var active int
	var createdAt string
	err := row.Scan(&m.ID, &m.Name, &m.Version, &m.ArtifactPath, &m.Accuracy, &active, &createdAt)
	if err == sql.ErrNoRows {
		return ModelVersion{}, ErrNotFound
	}
	if err != nil {
		return ModelVersion{}, err
	}
	m.Active = active != 0
	if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return ModelVersion{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return m, nil
}

// ListModelVersions returns all versions, newest-first.
func (s *Store) ListModelVersions() ([]ModelVersion, error) {
	rows, err := s.db.Query(`
		SELECT id, name, version, artifact_path, accuracy, active, created_at
		FROM model_versions ORDER BY id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ModelVersion
	for rows.Next() {
		var m ModelVersion
		var active int
		var createdAt string
		if err := rows.Scan(&m.ID, &m.Name, &m.Version, &m.ArtifactPath, &m.Accuracy, &active, &createdAt); err != nil {
			return nil, err
		}
		m.Active = active != 0
		if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// RegisterModelVersion inserts the version and makes it the single
// active one, deactivating all others in the same transaction.
func (s *Store) RegisterModelVersion(m ModelVersion) (ModelVersion, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return ModelVersion{}, fmt.Errorf("beginning version transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE model_versions SET active = 0 WHERE active = 1`); err != nil {
		return ModelVersion{}, fmt.Errorf("deactivating prior versions: %w", err)
	}

	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	res, err := tx.Exec(`
		INSERT INTO model_versions (name, version, artifact_path, accuracy, active, created_at)
		VALUES (?, ?, ?, ?, 1, ?)`,
		m.Name, m.Version, m.ArtifactPath, m.Accuracy, createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return ModelVersion{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ModelVersion{}, err
	}
	if err := tx.Commit(); err != nil {
		return ModelVersion{}, err
	}

	m.ID = id
	m.Active = true
	m.CreatedAt = createdAt
	return m, nil
}

// EnsureInitialModelVersion registers a v1.0 row pointing at the base
// artifact if no version exists yet. Returns the active version.
func (s *Store) EnsureInitialModelVersion(name, artifactPath string) (ModelVersion, error) {
	active, err := s.ActiveModelVersion()
	if err == nil {
		return active, nil
	}
	if err != ErrNotFound {
		return ModelVersion{}, err
	}
	return s.RegisterModelVersion(ModelVersion{
		Name:         name,
		Version:      "v1.0",
		ArtifactPath: artifactPath,
	})
}

// --- Jobs ---

func (s *Store) EnqueueJob(job Job) error {
	now := time.Now().UTC().Format(time.RFC3339)
	runAfter := now
	if !job.RunAfter.IsZero() {
		runAfter = job.RunAfter.UTC().Format(time.RFC3339)
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.PayloadJSON, maxAttempts, runAfter, now, now,
	)
	return err
}

func (s *Store) GetJob(id string) (Job, error) {
	var j Job
	var runAfter, createdAt, updatedAt string
	var lastError, logs sql.NullString
	err := s.db.QueryRow(`
		SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error, logs
		FROM jobs WHERE id = ?`, id,
	).Scan(&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError, &logs)
	if err == sql.ErrNoRows {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, err
	}
	j.LastError = lastError.String
	j.Logs = logs.String
	if j.RunAfter, err = time.Parse(time.RFC3339, runAfter); err != nil {
		return Job{}, fmt.Errorf("parsing run_after: %w", err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Job{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Job{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return j, nil
}

// HasPendingOrRunningJob reports whether any job of the given type is
// waiting or in flight. Used to keep retraining a singleton.
func (s *Store) HasPendingOrRunningJob(jobType string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM jobs WHERE type = ? AND status IN ('pending', 'running')`, jobType).Scan(&count)
	return count > 0, err
}

// AppendJobLog appends a line to the job's log trail.
func (s *Store) AppendJobLog(id, line string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE jobs SET logs = logs || ? || char(10), updated_at = ? WHERE id = ?`, line, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ClaimNextJob(types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	placeholders := strings.Repeat(",?", len(types)-1)
	query := `SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM jobs
		WHERE status = 'pending' AND run_after <= ? AND type IN (?` + placeholders + `)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`

	args := make([]interface{}, 0, len(types)+1)
	args = append(args, now)
	for _, t := range types {
		args = append(args, t)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	var j Job
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	err = tx.QueryRow(query, args...).Scan(
		&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError,
	)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("selecting next job: %w", err)
	}

	res, err := tx.Exec(`UPDATE jobs SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'`, now, j.ID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("updating job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("checking updated job rows: %w", err)
	}
	if n != 1 {
		tx.Rollback()
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	j.Status = "running"
	j.LastError = lastError.String
	if j.RunAfter, err = time.Parse(time.RFC3339, runAfter); err != nil {
		return nil, fmt.Errorf("parsing run_after for job %s: %w", j.ID, err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, now); err != nil {
		return nil, fmt.Errorf("parsing updated_at for job %s: %w", j.ID, err)
	}
	return &j, nil
}

func (s *Store) CompleteJob(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE jobs SET status = 'completed', updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) FailJob(id string, errMsg string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRow(`SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	attempts++

	if attempts >= maxAttempts {
		_, err = tx.Exec(`UPDATE jobs SET status = 'failed', attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, now.Format(time.RFC3339), id)
	} else {
		backoff := time.Duration(math.Pow(2, float64(attempts))) * time.Second
		runAfter := now.Add(backoff)
		_, err = tx.Exec(`UPDATE jobs SET status = 'pending', attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, runAfter.Format(time.RFC3339), now.Format(time.RFC3339), id)
	}

	if err != nil {
		return err
	}

	return tx.Commit()
}
