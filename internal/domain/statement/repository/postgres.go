// Package repository provides data access for statement conversion jobs.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/FACorreiaa/bankstatement2csv/internal/domain/statement"
)

// DBTX is the subset of pgxpool.Pool used by the repository.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ statement.JobRepository = (*PostgresJobRepository)(nil)

// PostgresJobRepository implements statement.JobRepository using PostgreSQL
type PostgresJobRepository struct {
	db  DBTX
	now func() time.Time
}

// NewPostgresJobRepository creates a new PostgreSQL-backed job repository
func NewPostgresJobRepository(db DBTX) *PostgresJobRepository {
	return &PostgresJobRepository{db: db, now: time.Now}
}

// CreateJob inserts a job in the processing state
func (r *PostgresJobRepository) CreateJob(ctx context.Context, job statement.NewJob) (*statement.Job, error) {
	query := `
		INSERT INTO statement_jobs (user_id, original_filename, format, status, credits_estimated)
		VALUES ($1, $2, $3, 'processing', $4)
		RETURNING id, created_at, updated_at
	`

	out := &statement.Job{
		UserID:           job.UserID,
		OriginalFilename: job.OriginalFilename,
		Format:           job.Format,
		Status:           statement.StatusProcessing,
		CreditsEstimated: job.CreditsEstimated,
	}
	err := r.db.QueryRow(ctx, query,
		job.UserID, job.OriginalFilename, string(job.Format), job.CreditsEstimated,
	).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create statement job: %w", err)
	}
	return out, nil
}

// GetJob retrieves a job by ID
func (r *PostgresJobRepository) GetJob(ctx context.Context, id uuid.UUID) (*statement.Job, error) {
	query := `
		SELECT id, user_id, original_filename, format, status, error_message,
			credits_estimated, redacted_pdf_path, redacted_pdf_name, redacted_pdf_size,
			generated_file_id, created_at, updated_at
		FROM statement_jobs WHERE id = $1
	`

	var (
		job    statement.Job
		format string
		status string
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.UserID, &job.OriginalFilename, &format, &status, &job.ErrorMessage,
		&job.CreditsEstimated, &job.RedactedPDFPath, &job.RedactedPDFName, &job.RedactedPDFSize,
		&job.GeneratedFileID, &job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, statement.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get statement job: %w", err)
	}
	job.Format = statement.Format(format)
	job.Status = statement.JobStatus(status)
	return &job, nil
}

// SetRedacted records the stored redacted PDF of a job
func (r *PostgresJobRepository) SetRedacted(ctx context.Context, id uuid.UUID, artifact statement.RedactedArtifact) error {
	query := `
		UPDATE statement_jobs
		SET redacted_pdf_path = $2, redacted_pdf_name = $3, redacted_pdf_size = $4, updated_at = now()
		WHERE id = $1
	`
	return r.execOne(ctx, "set redacted pdf", query, id, artifact.Path, artifact.Name, artifact.Size)
}

// InsertGeneratedFile stores a conversion output and returns its ID
func (r *PostgresJobRepository) InsertGeneratedFile(ctx context.Context, f statement.GeneratedFile) (uuid.UUID, error) {
	query := `
		INSERT INTO generated_files (
			user_id, filename, size, content, credits_used,
			source_pdf_path, source_pdf_filename, source_pdf_size
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	var id uuid.UUID
	err := r.db.QueryRow(ctx, query,
		f.UserID, f.Filename, f.Size, f.Content, f.CreditsUsed,
		f.SourcePDFPath, f.SourcePDFFilename, f.SourcePDFSize,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert generated file: %w", err)
	}
	return id, nil
}

// MarkReady links the generated file and moves the job to ready
func (r *PostgresJobRepository) MarkReady(ctx context.Context, id uuid.UUID, fileID uuid.UUID) error {
	query := `
		UPDATE statement_jobs
		SET status = 'ready', generated_file_id = $2, error_message = NULL, updated_at = now()
		WHERE id = $1
	`
	return r.execOne(ctx, "mark job ready", query, id, fileID)
}

// MarkErrored moves the job to error with a user facing message
func (r *PostgresJobRepository) MarkErrored(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE statement_jobs
		SET status = 'error', error_message = $2, updated_at = now()
		WHERE id = $1
	`
	return r.execOne(ctx, "mark job errored", query, id, message)
}

// MarkStale errors every job stuck in processing for longer than olderThan
func (r *PostgresJobRepository) MarkStale(ctx context.Context, olderThan time.Duration, message string) (int64, error) {
	query := `
		UPDATE statement_jobs
		SET status = 'error', error_message = $1, updated_at = now()
		WHERE status = 'processing' AND updated_at < $2
	`

	cutoff := r.now().Add(-olderThan)
	tag, err := r.db.Exec(ctx, query, message, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresJobRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return statement.ErrJobNotFound
	}
	return nil
}
