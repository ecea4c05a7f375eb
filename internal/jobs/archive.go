package jobs

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current archive schema version. Bump this when the
// schema changes; operators delete the archive to adopt the new schema.
const schemaVersion = 1

// ErrSchemaMismatch indicates the archive schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Archive persists terminal jobs in SQLite.
type Archive struct {
	db   *sql.DB
	path string
}

// OpenArchive initializes or connects to the archive database at path.
func OpenArchive(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure archive dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	archive := &Archive{db: db, path: path}
	if err := archive.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return archive, nil
}

// Close closes the underlying database connection.
func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Path returns the archive database location.
func (a *Archive) Path() string { return a.path }

func (a *Archive) initSchema(ctx context.Context) error {
	var tableExists int
	err := a.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return a.createSchema(ctx)
	}

	var version int
	err = a.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to rebuild)",
			ErrSchemaMismatch, version, schemaVersion, a.path)
	}
	return nil
}

func (a *Archive) createSchema(ctx context.Context) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (a *Archive) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = a.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

const archiveColumns = "job_id, user_id, workspace, filename, upload_id, status, step, progress, message, error, doc_id, result, metadata, created_at, updated_at, started_at, completed_at"

// Record upserts a terminal job.
func (a *Archive) Record(ctx context.Context, job Job) error {
	resultCol, err := nullableJSON(job.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	metadataCol, err := nullableJSON(job.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = a.execWithRetry(
		ctx,
		`INSERT OR REPLACE INTO archived_jobs (`+archiveColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.UserID,
		nullableString(job.Workspace),
		nullableString(job.Filename),
		nullableString(job.UploadID),
		string(job.Status),
		nullableString(string(job.Step)),
		job.Progress,
		nullableString(job.Message),
		nullableString(job.Error),
		nullableString(job.DocID),
		resultCol,
		metadataCol,
		job.CreatedAt.UTC().Format(time.RFC3339Nano),
		job.UpdatedAt.UTC().Format(time.RFC3339Nano),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("record job: %w", err)
	}
	return nil
}

// Get fetches an archived job by ID. It returns nil when the job is not
// archived.
func (a *Archive) Get(ctx context.Context, id string) (*Job, error) {
	row := a.db.QueryRowContext(ctx, `SELECT `+archiveColumns+` FROM archived_jobs WHERE job_id = ?`, id)
	job, err := scanArchived(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get archived job: %w", err)
	}
	return job, nil
}

// ListForUser returns the user's archived jobs, newest first.
func (a *Archive) ListForUser(ctx context.Context, userID string, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT `+archiveColumns+` FROM archived_jobs WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list archived jobs: %w", err)
	}
	defer rows.Close()

	var listed []*Job
	for rows.Next() {
		job, err := scanArchived(rows)
		if err != nil {
			return nil, err
		}
		listed = append(listed, job)
	}
	return listed, rows.Err()
}

// Prune removes archived jobs created before the retention age and returns
// how many were removed.
func (a *Archive) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339Nano)
	res, err := a.execWithRetry(ctx, `DELETE FROM archived_jobs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune archive: %w", err)
	}
	return res.RowsAffected()
}

func scanArchived(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           string
		userID       string
		workspace    sql.NullString
		filename     sql.NullString
		uploadID     sql.NullString
		statusStr    string
		stepStr      sql.NullString
		progress     sql.NullFloat64
		message      sql.NullString
		errorMessage sql.NullString
		docID        sql.NullString
		resultRaw    sql.NullString
		metadataRaw  sql.NullString
		createdRaw   string
		updatedRaw   string
		startedRaw   sql.NullString
		completedRaw sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&userID,
		&workspace,
		&filename,
		&uploadID,
		&statusStr,
		&stepStr,
		&progress,
		&message,
		&errorMessage,
		&docID,
		&resultRaw,
		&metadataRaw,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:        id,
		UserID:    userID,
		Workspace: workspace.String,
		Filename:  filename.String,
		UploadID:  uploadID.String,
		Status:    Status(statusStr),
		Step:      Step(stepStr.String),
		Progress:  progress.Float64,
		Message:   message.String,
		Error:     errorMessage.String,
		DocID:     docID.String,
	}
	if resultRaw.Valid {
		_ = json.Unmarshal([]byte(resultRaw.String), &job.Result)
	}
	if metadataRaw.Valid {
		_ = json.Unmarshal([]byte(metadataRaw.String), &job.Metadata)
	}
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	if startedRaw.Valid {
		if started, err := time.Parse(time.RFC3339Nano, startedRaw.String); err == nil {
			job.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := time.Parse(time.RFC3339Nano, completedRaw.String); err == nil {
			job.CompletedAt = &completed
		}
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableJSON(value map[string]any) (any, error) {
	if len(value) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}
