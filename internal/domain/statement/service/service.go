package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/bankstatement2csv/internal/domain/extraction"
	"github.com/FACorreiaa/bankstatement2csv/internal/domain/statement"
	"github.com/FACorreiaa/bankstatement2csv/internal/domain/transaction"
	"github.com/FACorreiaa/bankstatement2csv/pkg/storage"
)

// ErrNoUploads is returned for an empty batch.
var ErrNoUploads = errors.New("no files in request")

// PageCounter counts the pages of a PDF.
type PageCounter interface {
	PageCount(data []byte) (int, error)
}

// Owner is the user a batch belongs to.
type Owner struct {
	UserID uuid.UUID
	Email  string
}

// Upload is one statement submitted for conversion.
type Upload struct {
	Filename string
	Data     []byte
	Format   statement.Format
}

// Outcome is the result of one document of a batch.
type Outcome struct {
	Job          *statement.Job
	FileID       uuid.UUID
	Filename     string
	Transactions int
	Duplicates   int
	Err          error
}

// BatchResult collects the outcomes of a batch in submission order.
type BatchResult struct {
	Outcomes []Outcome
}

// Succeeded counts documents that reached the ready state.
func (b BatchResult) Succeeded() int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}

// Failed counts documents that ended in error.
func (b BatchResult) Failed() int {
	return len(b.Outcomes) - b.Succeeded()
}

// StatementService tracks conversion jobs around the pipeline
type StatementService struct {
	repo     statement.JobRepository
	store    storage.Storage
	pipeline *Pipeline
	pages    PageCounter
	notifier Notifier
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewStatementService creates a new statement service
func NewStatementService(repo statement.JobRepository, store storage.Storage, pipeline *Pipeline, pages PageCounter, logger *slog.Logger) *StatementService {
	return &StatementService{
		repo:     repo,
		store:    store,
		pipeline: pipeline,
		pages:    pages,
		logger:   logger,
		tracer:   otel.Tracer("statement"),
		now:      time.Now,
	}
}

// WithNotifier sets the notifier told about finished batches.
func (s *StatementService) WithNotifier(n Notifier) *StatementService {
	s.notifier = n
	return s
}

// Credits estimates the cost of a document as its page count. An
// unreadable document or one reporting no pages costs 1.
func (s *StatementService) Credits(data []byte) int {
	n, err := s.pages.PageCount(data)
	if err != nil || n <= 0 {
		return 1
	}
	return n
}

// Enqueue creates one processing job per upload.
func (s *StatementService) Enqueue(ctx context.Context, owner Owner, uploads []Upload) ([]*statement.Job, error) {
	if len(uploads) == 0 {
		return nil, ErrNoUploads
	}
	jobs := make([]*statement.Job, 0, len(uploads))
	for _, u := range uploads {
		format := u.Format
		if format == "" {
			format = statement.FormatCSV
		}
		job, err := s.repo.CreateJob(ctx, statement.NewJob{
			UserID:           owner.UserID,
			OriginalFilename: u.Filename,
			Format:           format,
			CreditsEstimated: s.Credits(u.Data),
		})
		if err != nil {
			return jobs, fmt.Errorf("failed to create job for %s: %w", u.Filename, err)
		}
		s.logger.Info("statement job created",
			slog.String("job_id", job.ID.String()),
			slog.String("filename", u.Filename),
			slog.Int("credits", job.CreditsEstimated),
		)
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Submit enqueues and processes a batch.
func (s *StatementService) Submit(ctx context.Context, owner Owner, uploads []Upload) (BatchResult, error) {
	jobs, err := s.Enqueue(ctx, owner, uploads)
	if err != nil {
		for _, job := range jobs {
			s.markErrored(ctx, job.ID, "Batch could not be queued")
		}
		return BatchResult{}, err
	}
	return s.ProcessBatch(ctx, owner, uploads, jobs), nil
}

// ProcessBatch converts each upload in order. A failed document marks only
// its own job errored. After a batch with at least one success the owner
// is notified.
func (s *StatementService) ProcessBatch(ctx context.Context, owner Owner, uploads []Upload, jobs []*statement.Job) BatchResult {
	var result BatchResult
	var ready []ReadyFile
	for i, u := range uploads {
		if i >= len(jobs) {
			break
		}
		outcome := s.process(ctx, owner, u, jobs[i])
		result.Outcomes = append(result.Outcomes, outcome)
		if outcome.Err == nil {
			ready = append(ready, ReadyFile{Name: outcome.Filename, FileID: outcome.FileID})
		}
	}

	s.logger.Info("statement batch finished",
		slog.String("user_id", owner.UserID.String()),
		slog.Int("succeeded", result.Succeeded()),
		slog.Int("failed", result.Failed()),
	)

	if len(ready) > 0 && s.notifier != nil {
		if err := s.notifier.NotifyReady(ctx, owner.Email, ready); err != nil {
			s.logger.Error("failed to send processing email",
				slog.String("user_id", owner.UserID.String()),
				slog.Any("error", err),
			)
		}
	}
	return result
}

func (s *StatementService) process(ctx context.Context, owner Owner, u Upload, job *statement.Job) Outcome {
	ctx, span := s.tracer.Start(ctx, "statement.Process",
		trace.WithAttributes(
			attribute.String("job.id", job.ID.String()),
			attribute.String("document.name", u.Filename),
		))
	defer span.End()

	outcome := Outcome{Job: job}
	err := s.run(ctx, owner, u, job, &outcome)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		outcome.Err = err
		s.logger.Error("statement processing failed",
			slog.String("job_id", job.ID.String()),
			slog.String("filename", u.Filename),
			slog.Any("error", err),
		)
		s.markErrored(ctx, job.ID, errorMessage(err))
		job.Status = statement.StatusError
		return outcome
	}
	job.Status = statement.StatusReady
	return outcome
}

func (s *StatementService) run(ctx context.Context, owner Owner, u Upload, job *statement.Job, outcome *Outcome) error {
	s.logger.Info("processing statement",
		slog.String("job_id", job.ID.String()),
		slog.String("filename", u.Filename),
	)

	redacted, err := s.pipeline.Redact(ctx, u.Filename, u.Data)
	if err != nil {
		return err
	}

	key := transaction.RedactedKey(path.Join(owner.UserID.String(), job.ID.String()), u.Filename)
	stored, err := s.store.Put(ctx, key, "application/pdf", bytes.NewReader(redacted.Data))
	if err != nil {
		return stageError(StageStore, err)
	}
	s.logger.Info("stored redacted pdf",
		slog.String("job_id", job.ID.String()),
		slog.String("path", stored.Key),
		slog.Int64("size", stored.Size),
		slog.Bool("rasterized", redacted.Rasterized),
	)
	artifact := statement.RedactedArtifact{Path: stored.Key, Name: stored.Name, Size: stored.Size}
	if err := s.repo.SetRedacted(ctx, job.ID, artifact); err != nil {
		s.logger.Warn("failed to update job with redacted metadata",
			slog.String("job_id", job.ID.String()),
			slog.Any("error", err),
		)
	}

	doc := extraction.Document{ID: job.ID.String(), Name: u.Filename}
	conv, err := s.pipeline.Convert(ctx, doc, redacted.Data, job.Format, s.now())
	if err != nil {
		return err
	}
	outcome.Transactions = len(conv.Transactions)
	outcome.Duplicates = conv.Duplicates

	fileID, err := s.repo.InsertGeneratedFile(ctx, statement.GeneratedFile{
		UserID:            owner.UserID,
		Filename:          conv.Filename,
		Size:              int64(len(conv.Output)),
		Content:           conv.Output,
		CreditsUsed:       job.CreditsEstimated,
		SourcePDFPath:     stored.Key,
		SourcePDFFilename: stored.Name,
		SourcePDFSize:     stored.Size,
	})
	if err != nil {
		return stageError(StagePersist, err)
	}
	if err := s.repo.MarkReady(ctx, job.ID, fileID); err != nil {
		return stageError(StagePersist, err)
	}

	outcome.FileID = fileID
	outcome.Filename = conv.Filename
	job.GeneratedFileID = &fileID
	s.logger.Info("statement ready",
		slog.String("job_id", job.ID.String()),
		slog.String("file_id", fileID.String()),
		slog.String("filename", conv.Filename),
		slog.Int("rows", outcome.Transactions),
	)
	return nil
}

// markErrored is best effort; a failure is only logged.
func (s *StatementService) markErrored(ctx context.Context, id uuid.UUID, message string) {
	if err := s.repo.MarkErrored(context.WithoutCancel(ctx), id, message); err != nil {
		s.logger.Error("failed to mark job errored",
			slog.String("job_id", id.String()),
			slog.Any("error", err),
		)
	}
}

// ReapStale errors jobs that have been processing for longer than
// olderThan, for workers that died mid document.
func (s *StatementService) ReapStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := s.repo.MarkStale(ctx, olderThan, "Processing timed out")
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Warn("stale statement jobs marked errored",
			slog.Int64("count", n),
			slog.Duration("older_than", olderThan),
		)
	}
	return n, nil
}

// FileRef points at an uploaded statement held in storage.
type FileRef struct {
	Key      string `json:"key"`
	Filename string `json:"filename"`
	Format   string `json:"format"`
}

// Request is a queued batch: the owner plus the stored uploads.
type Request struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Files  []FileRef `json:"files"`
}

// HandleRequest loads a queued batch from storage and submits it.
func (s *StatementService) HandleRequest(ctx context.Context, req Request) (BatchResult, error) {
	if len(req.Files) == 0 {
		return BatchResult{}, ErrNoUploads
	}
	uploads := make([]Upload, 0, len(req.Files))
	for _, f := range req.Files {
		format, err := statement.ParseFormat(f.Format)
		if err != nil {
			return BatchResult{}, fmt.Errorf("%s: %w", f.Filename, err)
		}
		data, err := s.load(ctx, f.Key)
		if err != nil {
			return BatchResult{}, fmt.Errorf("failed to load %s: %w", f.Key, err)
		}
		name := f.Filename
		if name == "" {
			name = path.Base(f.Key)
		}
		uploads = append(uploads, Upload{Filename: name, Data: data, Format: format})
	}
	return s.Submit(ctx, Owner{UserID: req.UserID, Email: req.Email}, uploads)
}

func (s *StatementService) load(ctx context.Context, key string) ([]byte, error) {
	rc, _, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
