package extraction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/FACorreiaa/bankstatement2csv/internal/domain/extraction/chunker"
	"github.com/FACorreiaa/bankstatement2csv/internal/domain/transaction"
)

const (
	DefaultPrimaryModel   = "gemini-2.5-flash"
	DefaultFallbackModel  = "gemini-2.0-flash"
	DefaultPollInterval   = 2 * time.Second
	DefaultPollAttempts   = 60
	DefaultTurnTimeout    = 59*time.Minute + 59*time.Second
	DefaultRetryDelay     = 5 * time.Second
	DefaultCleanupTimeout = 30 * time.Second

	pdfMIME = "application/pdf"
)

// Config tunes the orchestrator. Zero fields take the defaults above; an
// empty FallbackModel disables the fallback.
type Config struct {
	PrimaryModel  string
	FallbackModel string
	BatchLimit    int
	Policy        Policy
	PollInterval  time.Duration
	PollAttempts  int
	TurnTimeout   time.Duration
	RetryDelay    time.Duration
	// RequestsPerMinute limits Generate calls; <= 0 disables the limit.
	RequestsPerMinute float64
	CleanupTimeout    time.Duration
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		PrimaryModel:   DefaultPrimaryModel,
		FallbackModel:  DefaultFallbackModel,
		BatchLimit:     DefaultBatchLimit,
		Policy:         DefaultPolicy(),
		PollInterval:   DefaultPollInterval,
		PollAttempts:   DefaultPollAttempts,
		TurnTimeout:    DefaultTurnTimeout,
		RetryDelay:     DefaultRetryDelay,
		CleanupTimeout: DefaultCleanupTimeout,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PrimaryModel == "" {
		c.PrimaryModel = d.PrimaryModel
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = d.BatchLimit
	}
	if c.Policy == (Policy{}) {
		c.Policy = d.Policy
	}
	c.Policy = c.Policy.withDefaults()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.PollAttempts <= 0 {
		c.PollAttempts = d.PollAttempts
	}
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = d.TurnTimeout
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.CleanupTimeout <= 0 {
		c.CleanupTimeout = d.CleanupTimeout
	}
	return c
}

// Document identifies the statement being extracted.
type Document struct {
	ID   string
	Name string
}

// ChunkStats describes how a chunk conversation ended.
type ChunkStats struct {
	Index            int
	Pages            string
	Model            string
	Turns            int
	Accepted         int
	Duplicates       int
	SchemaViolations int
	Reason           StopReason
	FellBack         bool
}

// Result is the outcome of a document extraction.
type Result struct {
	Transactions []transaction.Raw
	// Duplicates counts records dropped within and across chunks.
	Duplicates int
	Chunks     []ChunkStats
}

// Orchestrator runs chunk conversations against a Model.
type Orchestrator struct {
	model    Model
	cfg      Config
	limiter  *rate.Limiter
	observer Observer
	checker  *SchemaChecker
	tracer   trace.Tracer
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates an orchestrator. A nil observer discards events.
func New(model Model, cfg Config, observer Observer, logger *slog.Logger) *Orchestrator {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = MultiObserver{}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60), 1)
	}

	checker, err := NewSchemaChecker()
	if err != nil {
		logger.Warn("record schema unavailable", "error", err)
	}

	return &Orchestrator{
		model:    model,
		cfg:      cfg,
		limiter:  limiter,
		observer: observer,
		checker:  checker,
		tracer:   otel.Tracer("github.com/FACorreiaa/bankstatement2csv/extraction"),
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// Extract uploads every chunk, waits for them to be ready and then converses
// chunk by chunk. Uploaded files are deleted before returning, whatever the
// outcome.
func (o *Orchestrator) Extract(ctx context.Context, doc Document, chunks []chunker.Chunk) (Result, error) {
	ctx, span := o.tracer.Start(ctx, "extraction.Document", trace.WithAttributes(
		attribute.String("document.id", doc.ID),
		attribute.Int("chunks", len(chunks)),
	))
	defer span.End()

	files := make([]File, 0, len(chunks))
	defer func() { o.cleanup(ctx, doc, files) }()

	o.transition(ctx, doc, StateUploading)
	for i, c := range chunks {
		f, err := o.model.Upload(ctx, c.Data, pdfMIME, displayName(doc, c))
		if err != nil {
			return Result{}, spanError(span, fmt.Errorf("%w: chunk %s: %w", ErrUploadFailed, c.Label(), err))
		}
		if f.Name == "" {
			return Result{}, spanError(span, fmt.Errorf("%w: chunk %s: missing file name", ErrUploadFailed, c.Label()))
		}
		files = append(files, f)
		o.observe(ctx, doc, Event{Kind: EventChunkUploaded, Chunk: i + 1, Pages: c.Label(), File: f.Name})
	}

	o.transition(ctx, doc, StateWaitingReady)
	for i, f := range files {
		started := time.Now()
		if err := o.waitReady(ctx, f); err != nil {
			return Result{}, spanError(span, err)
		}
		o.observe(ctx, doc, Event{Kind: EventFileReady, Chunk: i + 1, Pages: chunks[i].Label(), File: f.Name, Duration: time.Since(started)})
	}

	var res Result
	docSeen := NewDedupSet()
	for i, c := range chunks {
		stats, records, err := o.extractChunk(ctx, doc, i+1, c, files[i])
		if err != nil {
			o.transition(ctx, doc, StateFailed)
			return Result{}, spanError(span, err)
		}

		kept, dropped := docSeen.Filter(records)
		if dropped > 0 {
			o.observe(ctx, doc, Event{Kind: EventDuplicatesDropped, Chunk: i + 1, Pages: c.Label(), Count: dropped, Reason: "document"})
		}
		res.Transactions = append(res.Transactions, kept...)
		res.Duplicates += stats.Duplicates + dropped
		res.Chunks = append(res.Chunks, stats)
	}

	o.transition(ctx, doc, StateDone)
	span.SetAttributes(attribute.Int("transactions", len(res.Transactions)))
	return res, nil
}

type chunkRun struct {
	stats   ChunkStats
	records []transaction.Raw
}

func (o *Orchestrator) extractChunk(ctx context.Context, doc Document, idx int, c chunker.Chunk, f File) (ChunkStats, []transaction.Raw, error) {
	ctx, span := o.tracer.Start(ctx, "extraction.Chunk", trace.WithAttributes(
		attribute.Int("chunk", idx),
		attribute.String("pages", c.Label()),
	))
	defer span.End()
	started := time.Now()

	run, err := o.converse(ctx, doc, idx, c, f, o.cfg.PrimaryModel)
	if err != nil && o.canFallBack(ctx) {
		o.observe(ctx, doc, Event{
			Kind:   EventFallbackTriggered,
			Chunk:  idx,
			Pages:  c.Label(),
			Model:  o.cfg.FallbackModel,
			Reason: o.cfg.PrimaryModel + " failed",
			Err:    err,
		})
		primaryErr := err
		run, err = o.converse(ctx, doc, idx, c, f, o.cfg.FallbackModel)
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrModelFailed, errors.Join(primaryErr, err))
		}
		run.stats.FellBack = true
	}
	if err != nil {
		return run.stats, nil, spanError(span, fmt.Errorf("chunk %s: %w", c.Label(), err))
	}

	run.stats.Accepted = len(run.records)
	o.observe(ctx, doc, Event{
		Kind:     EventChunkCompleted,
		Chunk:    idx,
		Pages:    c.Label(),
		Model:    run.stats.Model,
		Turn:     run.stats.Turns,
		Accepted: run.stats.Accepted,
		Reason:   string(run.stats.Reason),
		Duration: time.Since(started),
	})
	return run.stats, run.records, nil
}

func (o *Orchestrator) canFallBack(ctx context.Context) bool {
	return ctx.Err() == nil && o.cfg.FallbackModel != "" && o.cfg.FallbackModel != o.cfg.PrimaryModel
}

// converse runs one conversation from scratch against model.
func (o *Orchestrator) converse(ctx context.Context, doc Document, idx int, c chunker.Chunk, f File, model string) (chunkRun, error) {
	run := chunkRun{stats: ChunkStats{Index: idx, Pages: c.Label(), Model: model}}

	file := f
	conv := NewConversation(Turn{Role: RoleRequester, Text: InitialPrompt(o.cfg.BatchLimit), File: &file})
	seen := NewDedupSet()

	var (
		cursor transaction.Raw
		state  LoopState
	)
	o.transition(ctx, doc, StateRequesting)
	for {
		turn := state.Turns + 1
		started := time.Now()

		text, err := o.generate(ctx, model, conv, turn)
		if err != nil {
			run.stats.Turns = state.Turns
			return run, fmt.Errorf("%s turn %d: %w", model, turn, err)
		}

		var (
			out      Outcome
			repeated bool
		)
		if strings.TrimSpace(text) == "" {
			out.Blank = true
		} else {
			out.Parsed = ParseResponse(text)
			kept, dropped := seen.Filter(out.Parsed.Transactions)
			out.Accepted = len(kept)
			run.records = append(run.records, kept...)
			run.stats.Duplicates += dropped
			if len(kept) > 0 {
				cursor = kept[len(kept)-1]
			}
			if dropped > 0 {
				repeated = len(kept) == 0
				o.observe(ctx, doc, Event{Kind: EventDuplicatesDropped, Chunk: idx, Pages: c.Label(), Model: model, Turn: turn, Count: dropped, Reason: "chunk"})
			}
			run.stats.SchemaViolations += o.checkSchema(ctx, kept)
		}

		var decision Decision
		decision, state = o.cfg.Policy.Decide(state, out)
		o.observe(ctx, doc, Event{
			Kind:     EventTurnCompleted,
			Chunk:    idx,
			Pages:    c.Label(),
			Model:    model,
			Turn:     turn,
			Count:    len(out.Parsed.Transactions),
			Accepted: out.Accepted,
			Action:   decision.Action.String(),
			Reason:   string(decision.Reason),
			Duration: time.Since(started),
		})

		if !out.Blank {
			conv = conv.Append(Turn{Role: RoleResponder, Text: text})
		}
		if decision.Action == ActionStop {
			run.stats.Turns = state.Turns
			run.stats.Reason = decision.Reason
			return run, nil
		}

		o.transition(ctx, doc, StateContinue)
		// a blank reply is retried with the unchanged conversation
		if out.Blank {
			continue
		}
		prompt := ContinuationPrompt(cursor)
		if repeated {
			prompt = RepeatedPrompt(cursor, run.records)
		}
		conv = conv.Append(Turn{Role: RoleRequester, Text: prompt})
	}
}

// generate performs one model call, retrying a transient failure once.
func (o *Orchestrator) generate(ctx context.Context, model string, conv Conversation, turn int) (string, error) {
	ctx, span := o.tracer.Start(ctx, "extraction.Turn", trace.WithAttributes(
		attribute.String("model", model),
		attribute.Int("turn", turn),
		attribute.Int("history", conv.Len()),
	))
	defer span.End()

	for attempt := 1; ; attempt++ {
		if err := o.limiter.Wait(ctx); err != nil {
			return "", spanError(span, err)
		}

		tctx, cancel := context.WithTimeout(ctx, o.cfg.TurnTimeout)
		text, err := o.model.Generate(tctx, model, conv.Turns())
		cancel()
		if err == nil {
			return text, nil
		}

		if attempt == 1 && ctx.Err() == nil && IsTransient(err) {
			o.logger.WarnContext(ctx, "transient model error, retrying",
				"model", model,
				"turn", turn,
				"retry_in", o.cfg.RetryDelay,
				"error", err,
			)
			if err := o.sleep(ctx, o.cfg.RetryDelay); err != nil {
				return "", spanError(span, err)
			}
			continue
		}
		return "", spanError(span, err)
	}
}

func (o *Orchestrator) waitReady(ctx context.Context, f File) error {
	state := f.State
	for attempt := 0; state == FileProcessing && attempt < o.cfg.PollAttempts; attempt++ {
		if err := o.sleep(ctx, o.cfg.PollInterval); err != nil {
			return err
		}
		s, err := o.model.Status(ctx, f.Name)
		if err != nil {
			return fmt.Errorf("file %s status: %w", f.Name, err)
		}
		state = s
	}

	switch state {
	case FileActive:
		return nil
	case FileFailed:
		return fmt.Errorf("%w: %s", ErrFileProcessingFailed, f.Name)
	default:
		return fmt.Errorf("%w: %s after %d polls", ErrFileNotReady, f.Name, o.cfg.PollAttempts)
	}
}

// cleanup deletes every uploaded file once. It runs detached from ctx so a
// cancelled document does not leave files behind.
func (o *Orchestrator) cleanup(ctx context.Context, doc Document, files []File) {
	if len(files) == 0 {
		return
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.CleanupTimeout)
	defer cancel()

	for i, f := range files {
		err := o.model.Delete(dctx, f.Name)
		if err != nil {
			o.logger.WarnContext(ctx, "failed to delete uploaded file", "file", f.Name, "error", err)
		}
		o.observe(ctx, doc, Event{Kind: EventFileDeleted, Chunk: i + 1, File: f.Name, Err: err})
	}
}

func (o *Orchestrator) checkSchema(ctx context.Context, records []transaction.Raw) int {
	if o.checker == nil || len(records) == 0 {
		return 0
	}
	bad, first := o.checker.Check(records)
	if bad > 0 {
		o.logger.DebugContext(ctx, "records deviate from expected shape", "count", bad, "error", first)
	}
	return bad
}

func (o *Orchestrator) observe(ctx context.Context, doc Document, e Event) {
	e.DocumentID = doc.ID
	e.At = time.Now()
	o.observer.Observe(ctx, e)
}

func (o *Orchestrator) transition(ctx context.Context, doc Document, s State) {
	o.logger.DebugContext(ctx, "extraction state", "document_id", doc.ID, "state", s.String())
}

// IsTransient reports whether err looks like a network hiccup worth one retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "fetch failed")
}

func displayName(doc Document, c chunker.Chunk) string {
	name := doc.Name
	if name == "" {
		name = "statement.pdf"
	}
	return fmt.Sprintf("%s [pages %s]", name, c.Label())
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
