// Package service runs statement documents through redaction, extraction and
// encoding, and tracks the conversion jobs.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/bankstatement2csv/internal/domain/extraction"
	"github.com/FACorreiaa/bankstatement2csv/internal/domain/extraction/chunker"
	"github.com/FACorreiaa/bankstatement2csv/internal/domain/redaction"
	"github.com/FACorreiaa/bankstatement2csv/internal/domain/statement"
	"github.com/FACorreiaa/bankstatement2csv/internal/domain/transaction"
	"github.com/FACorreiaa/bankstatement2csv/pkg/money"
)

// Redactor covers detected PII in a PDF.
type Redactor interface {
	Redact(ctx context.Context, data []byte) ([]byte, redaction.Report, error)
}

// Flattener rebuilds a PDF as page images.
type Flattener interface {
	Flatten(ctx context.Context, data []byte) ([]byte, error)
}

// Splitter cuts a PDF into page-range chunks.
type Splitter interface {
	Split(ctx context.Context, data []byte) ([]chunker.Chunk, error)
}

// Extractor turns chunks into raw transaction records.
type Extractor interface {
	Extract(ctx context.Context, doc extraction.Document, chunks []chunker.Chunk) (extraction.Result, error)
}

// ErrNoExtractor is returned by Convert on a redaction-only pipeline.
var ErrNoExtractor = errors.New("pipeline has no extractor")

// Redacted is the de-identified form of an uploaded statement.
type Redacted struct {
	Data       []byte
	Report     redaction.Report
	Rasterized bool
}

// Conversion is the output of the extraction half of the pipeline.
type Conversion struct {
	Transactions []transaction.Transaction
	Duplicates   int
	Chunks       []extraction.ChunkStats
	Filename     string
	Output       []byte
	Summary      transaction.Summary
}

// Pipeline wires the per-document steps together. It has no persistence.
type Pipeline struct {
	redactor  Redactor
	flattener Flattener
	splitter  Splitter
	extractor Extractor
	currency  string
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewPipeline creates a pipeline. A nil flattener keeps the vector PDF.
func NewPipeline(redactor Redactor, flattener Flattener, splitter Splitter, extractor Extractor, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		redactor:  redactor,
		flattener: flattener,
		splitter:  splitter,
		extractor: extractor,
		currency:  money.EUR,
		logger:    logger,
		tracer:    otel.Tracer("statement"),
	}
}

// WithCurrency sets the currency used for the logged totals.
func (p *Pipeline) WithCurrency(code string) *Pipeline {
	if code != "" {
		p.currency = code
	}
	return p
}

// Redact covers PII and, when a flattener is set, rasterizes the result so
// no text remains under the boxes. A rasterization failure keeps the
// vector PDF.
func (p *Pipeline) Redact(ctx context.Context, name string, data []byte) (*Redacted, error) {
	ctx, span := p.tracer.Start(ctx, "statement.Redact",
		trace.WithAttributes(attribute.String("document.name", name)))
	defer span.End()

	out, report, err := p.redactor.Redact(ctx, data)
	if err != nil {
		return nil, stageError(StageRedact, err)
	}
	res := &Redacted{Data: out, Report: report}

	if p.flattener == nil {
		return res, nil
	}
	flat, err := p.flattener.Flatten(ctx, out)
	if err != nil {
		if ctx.Err() != nil {
			return nil, stageError(StageRedact, ctx.Err())
		}
		p.logger.Warn("rasterization failed, keeping vector pdf",
			slog.String("document", name),
			slog.Any("error", err),
		)
		return res, nil
	}
	res.Data = flat
	res.Rasterized = true
	span.SetAttributes(attribute.Bool("document.rasterized", true))
	return res, nil
}

// Convert chunks the redacted PDF, extracts and normalizes its
// transactions and encodes them in the requested format.
func (p *Pipeline) Convert(ctx context.Context, doc extraction.Document, redacted []byte, format statement.Format, now time.Time) (*Conversion, error) {
	ctx, span := p.tracer.Start(ctx, "statement.Convert",
		trace.WithAttributes(
			attribute.String("document.id", doc.ID),
			attribute.String("document.format", string(format)),
		))
	defer span.End()

	if p.extractor == nil {
		return nil, stageError(StageExtract, ErrNoExtractor)
	}
	chunks, err := p.splitter.Split(ctx, redacted)
	if err != nil {
		return nil, stageError(StageChunk, err)
	}

	start := time.Now()
	result, err := p.extractor.Extract(ctx, doc, chunks)
	if err != nil {
		return nil, stageError(StageExtract, err)
	}
	txs := transaction.Normalize(result.Transactions)
	p.logger.Info("extraction finished",
		slog.String("document", doc.Name),
		slog.Int("chunks", len(chunks)),
		slog.Int("rows", len(txs)),
		slog.Int("duplicates", result.Duplicates),
		slog.Duration("elapsed", time.Since(start)),
	)

	conv := &Conversion{
		Transactions: txs,
		Duplicates:   result.Duplicates,
		Chunks:       result.Chunks,
	}
	switch format {
	case statement.FormatXLSX:
		conv.Filename = transaction.XLSXName(doc.Name, now)
		conv.Output, err = transaction.EncodeXLSX(txs)
	default:
		conv.Filename = transaction.CSVName(doc.Name, now)
		conv.Output, err = transaction.EncodeCSV(txs)
	}
	if err != nil {
		return nil, stageError(StageEncode, err)
	}

	summary, err := transaction.Summarize(txs, p.currency)
	if err != nil {
		p.logger.Warn("failed to summarize transactions", slog.Any("error", err))
	} else {
		conv.Summary = summary
		p.logger.Info("statement totals",
			slog.String("document", doc.Name),
			slog.Int("count", summary.Count),
			slog.String("debit", summary.TotalDebit.Display()),
			slog.String("credit", summary.TotalCredit.Display()),
			slog.String("first_date", summary.FirstDate),
			slog.String("last_date", summary.LastDate),
		)
	}
	span.SetAttributes(attribute.Int("document.transactions", len(txs)))
	return conv, nil
}
