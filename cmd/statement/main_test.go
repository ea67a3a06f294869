package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/bankstatement2csv/internal/domain/extraction"
	"github.com/FACorreiaa/bankstatement2csv/internal/domain/extraction/chunker"
	"github.com/FACorreiaa/bankstatement2csv/internal/domain/redaction"
	"github.com/FACorreiaa/bankstatement2csv/internal/domain/statement"
	"github.com/FACorreiaa/bankstatement2csv/internal/domain/statement/service"
	"github.com/FACorreiaa/bankstatement2csv/internal/domain/transaction"
	"github.com/FACorreiaa/bankstatement2csv/pkg/config"
	"github.com/FACorreiaa/bankstatement2csv/pkg/storage"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestSetupLogging(t *testing.T) {
	tests := []struct {
		level string
		debug bool
		warn  bool
	}{
		{"debug", true, true},
		{"INFO", false, true},
		{"warn", false, true},
		{"error", false, false},
		{"", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := setupLogging(io.Discard, tt.level, false)
			ctx := context.Background()
			assert.Equal(t, tt.debug, logger.Enabled(ctx, slog.LevelDebug))
			assert.Equal(t, tt.warn, logger.Enabled(ctx, slog.LevelWarn))
		})
	}

	var buf bytes.Buffer
	setupLogging(&buf, "info", true).Info("hello", "k", "v")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "v", line["k"])
}

func TestExtractionConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Gemini.FallbackModel = ""
	cfg.Extraction.RequestsPerMinute = 30
	cfg.Extraction.MaxTurns = 12

	got := extractionConfig(cfg)
	assert.Equal(t, cfg.Gemini.PrimaryModel, got.PrimaryModel)
	assert.Empty(t, got.FallbackModel)
	assert.Equal(t, 200, got.BatchLimit)
	assert.Equal(t, 12, got.Policy.MaxTurns)
	assert.Equal(t, 2, got.Policy.MaxEmptyTurns)
	assert.True(t, got.Policy.ContinueOnProgress)
	assert.InDelta(t, 30.0, got.RequestsPerMinute, 1e-9)
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"redact", "chunk", "convert", "worker"}, names)
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestInitDependencies_JobsNeedDatabase(t *testing.T) {
	cfg := config.Defaults()
	cfg.Database.Enabled = false

	_, err := InitDependencies(context.Background(), cfg, discard, Needs{Jobs: true})
	assert.ErrorIs(t, err, errJobsDisabled)
}

func TestInitDependencies_RedactionOnly(t *testing.T) {
	cfg := config.Defaults()
	cfg.Storage.LocalPath = t.TempDir()

	deps, err := InitDependencies(context.Background(), cfg, discard, Needs{})
	require.NoError(t, err)
	defer deps.Cleanup()

	assert.NotNil(t, deps.Pipeline)
	assert.NotNil(t, deps.Flattener)
	assert.Nil(t, deps.Orchestrator)
	assert.Nil(t, deps.FileStorage)
	assert.Nil(t, deps.StatementService)

	_, err = deps.Pipeline.Convert(context.Background(), extraction.Document{}, nil, statement.FormatCSV, time.Now())
	assert.ErrorIs(t, err, service.ErrNoExtractor)
}

func TestInitDependencies_FlattenerLogsWithAppLogger(t *testing.T) {
	cfg := config.Defaults()
	cfg.Storage.LocalPath = t.TempDir()
	cfg.Redaction.Rasterize = true
	cfg.Redaction.PdftoppmBin = "pdftoppm-missing-" + uuid.NewString()

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	deps, err := InitDependencies(context.Background(), cfg, logger, Needs{})
	require.NoError(t, err)
	defer deps.Cleanup()
	require.NotNil(t, deps.Flattener)

	_, err = deps.Flattener.Flatten(context.Background(), []byte("%PDF"))
	require.Error(t, err)

	assert.Contains(t, logs.String(), `"msg":"exec failed"`)
	assert.Contains(t, logs.String(), cfg.Redaction.PdftoppmBin)
}

func TestInitDependencies_ExtractionNeedsKey(t *testing.T) {
	cfg := config.Defaults()
	cfg.Gemini.APIKey = ""

	_, err := InitDependencies(context.Background(), cfg, discard, Needs{Extraction: true})
	assert.Error(t, err)
}

type stubRedactor struct{}

func (stubRedactor) Redact(_ context.Context, data []byte) ([]byte, redaction.Report, error) {
	return append([]byte("redacted:"), data...), redaction.Report{Pages: 1, Boxes: 3}, nil
}

type stubSplitter struct{}

func (stubSplitter) Split(_ context.Context, data []byte) ([]chunker.Chunk, error) {
	return []chunker.Chunk{{Data: data, StartPage: 1, EndPage: 1, PageCount: 1}}, nil
}

type stubExtractor struct{}

func (stubExtractor) Extract(_ context.Context, _ extraction.Document, _ []chunker.Chunk) (extraction.Result, error) {
	return extraction.Result{
		Transactions: []transaction.Raw{
			{"date": "2024-06-01", "title": "Rent", "debit": 900.0, "category": "Bills"},
			{"date": "2024-06-02", "title": "Salary", "amount": "-2500,00", "category": "Income"},
		},
		Duplicates: 1,
	}, nil
}

func TestConvertFile(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	p := service.NewPipeline(stubRedactor{}, nil, stubSplitter{}, stubExtractor{}, discard)
	now := time.Date(2024, time.June, 30, 9, 15, 0, 0, time.UTC)

	res, err := convertFile(context.Background(), p, store, "june.pdf", []byte("%PDF"), statement.FormatCSV, now)
	require.NoError(t, err)

	assert.Equal(t, transaction.CSVName("june.pdf", now), res.Output.Key)
	assert.True(t, strings.HasSuffix(res.RedactedKey, "/june_redacted.pdf"))
	assert.Equal(t, 2, res.Conversion.Summary.Count)
	assert.Equal(t, 1, res.Conversion.Duplicates)

	rc, _, err := store.Get(context.Background(), res.Output.Key)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "date,title,debit,credit,category,note\n"+
		"2024-06-01,Rent,900,0,Bills,\n"+
		"2024-06-02,Salary,0,2500,Income,", string(body))

	rc2, _, err := store.Get(context.Background(), res.RedactedKey)
	require.NoError(t, err)
	defer rc2.Close()
	redacted, err := io.ReadAll(rc2)
	require.NoError(t, err)
	assert.Equal(t, "redacted:%PDF", string(redacted))

	var out bytes.Buffer
	printConversion(&out, "june.pdf", res)
	assert.Contains(t, out.String(), "rows=2 duplicates=1")
	assert.Contains(t, out.String(), "period=2024-06-01..2024-06-02")

	out.Reset()
	require.NoError(t, printConversionJSON(&out, "june.pdf", res))
	var report struct {
		Input      string `json:"input"`
		Output     string `json:"output"`
		Duplicates int    `json:"duplicates"`
		Summary    struct {
			Count      int `json:"count"`
			TotalDebit struct {
				Amount   int64  `json:"amount"`
				Currency string `json:"currency"`
			} `json:"total_debit"`
			Net struct {
				Amount int64 `json:"amount"`
			} `json:"net"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, "june.pdf", report.Input)
	assert.Equal(t, res.Output.Key, report.Output)
	assert.Equal(t, 1, report.Duplicates)
	assert.Equal(t, 2, report.Summary.Count)
	assert.Equal(t, int64(90000), report.Summary.TotalDebit.Amount)
	assert.Equal(t, "EUR", report.Summary.TotalDebit.Currency)
	assert.Equal(t, int64(160000), report.Summary.Net.Amount)
}

type fakeBatches struct {
	reqs   []service.Request
	result service.BatchResult
	err    error
}

func (f *fakeBatches) HandleRequest(_ context.Context, req service.Request) (service.BatchResult, error) {
	f.reqs = append(f.reqs, req)
	return f.result, f.err
}

type fakeRecorder struct{ succeeded, failed int }

func (f *fakeRecorder) JobsFinished(succeeded, failed int) {
	f.succeeded += succeeded
	f.failed += failed
}

type fakePublisher struct {
	subjects []string
	payloads []any
}

func (f *fakePublisher) Publish(subject string, data any) error {
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func TestWorkerHandler(t *testing.T) {
	now := time.Date(2024, time.July, 1, 12, 0, 0, 0, time.UTC)
	batches := &fakeBatches{result: service.BatchResult{Outcomes: []service.Outcome{{}, {Err: errors.New("boom")}, {}}}}
	rec := &fakeRecorder{}
	pub := &fakePublisher{}
	w := &worker{
		batches:      batches,
		metrics:      rec,
		pub:          pub,
		eventSubject: "statements.events",
		logger:       discard,
		now:          func() time.Time { return now },
	}
	handle := w.handler(context.Background())

	handle("statements.process", []byte("{not json"))
	assert.Empty(t, batches.reqs)

	userID := uuid.New()
	payload, err := json.Marshal(service.Request{
		UserID: userID,
		Email:  "a@b.c",
		Files:  []service.FileRef{{Key: "uploads/june.pdf", Format: "csv"}},
	})
	require.NoError(t, err)
	handle("statements.process", payload)

	require.Len(t, batches.reqs, 1)
	assert.Equal(t, userID, batches.reqs[0].UserID)
	assert.Equal(t, "uploads/june.pdf", batches.reqs[0].Files[0].Key)
	assert.Equal(t, 2, rec.succeeded)
	assert.Equal(t, 1, rec.failed)

	require.Equal(t, []string{"statements.events.batch"}, pub.subjects)
	assert.Equal(t, BatchEvent{UserID: userID, Succeeded: 2, Failed: 1, At: now}, pub.payloads[0])
}

func TestWorkerHandler_RequestError(t *testing.T) {
	batches := &fakeBatches{err: service.ErrNoUploads}
	rec := &fakeRecorder{}
	pub := &fakePublisher{}
	w := &worker{batches: batches, metrics: rec, pub: pub, eventSubject: "events", logger: discard}

	w.handler(context.Background())("s", []byte(`{"files":[]}`))

	require.Len(t, pub.payloads, 1)
	event := pub.payloads[0].(BatchEvent)
	assert.Equal(t, service.ErrNoUploads.Error(), event.Error)
	assert.Zero(t, rec.succeeded+rec.failed)
}
