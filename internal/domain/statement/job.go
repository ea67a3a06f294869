// Package statement holds the conversion job model shared by the job
// repository and the processing service.
package statement

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a conversion job.
type JobStatus string

const (
	StatusProcessing JobStatus = "processing"
	StatusReady      JobStatus = "ready"
	StatusError      JobStatus = "error"
)

// Format is the requested output format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ErrUnknownFormat is returned by ParseFormat.
var ErrUnknownFormat = errors.New("unknown output format")

// ErrJobNotFound is returned when a job id does not exist.
var ErrJobNotFound = errors.New("statement job not found")

// ParseFormat accepts "csv" and "xlsx" in any case. Empty means csv.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", ErrUnknownFormat
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// Job is a single uploaded statement being converted.
type Job struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	OriginalFilename string
	Format           Format
	Status           JobStatus
	ErrorMessage     *string
	CreditsEstimated int
	RedactedPDFPath  *string
	RedactedPDFName  *string
	RedactedPDFSize  *int64
	GeneratedFileID  *uuid.UUID
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// GeneratedFile is a finished conversion output.
type GeneratedFile struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	Filename          string
	Size              int64
	Content           []byte
	CreditsUsed       int
	SourcePDFPath     string
	SourcePDFFilename string
	SourcePDFSize     int64
	CreatedAt         time.Time
}

// NewJob describes a job to create.
type NewJob struct {
	UserID           uuid.UUID
	OriginalFilename string
	Format           Format
	CreditsEstimated int
}

// RedactedArtifact records where the redacted PDF of a job was stored.
type RedactedArtifact struct {
	Path string
	Name string
	Size int64
}

// JobRepository persists jobs and their outputs.
type JobRepository interface {
	CreateJob(ctx context.Context, job NewJob) (*Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	SetRedacted(ctx context.Context, id uuid.UUID, artifact RedactedArtifact) error
	InsertGeneratedFile(ctx context.Context, file GeneratedFile) (uuid.UUID, error)
	MarkReady(ctx context.Context, id uuid.UUID, fileID uuid.UUID) error
	MarkErrored(ctx context.Context, id uuid.UUID, message string) error
	MarkStale(ctx context.Context, olderThan time.Duration, message string) (int64, error)
}
