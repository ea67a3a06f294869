// Package redaction paints opaque boxes over personally identifiable
// information found in the text layer of a statement PDF.
package redaction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/FACorreiaa/bankstatement2csv/internal/domain/redaction/layout"
	"github.com/FACorreiaa/bankstatement2csv/internal/domain/redaction/pii"
	"github.com/FACorreiaa/bankstatement2csv/pkg/pdf"
)

// TextSource returns the text runs of every page, in page order.
type TextSource interface {
	Runs(ctx context.Context, data []byte) ([][]pdf.Run, error)
}

// Canvas fills rectangles on the pages of a document and re-serializes it.
// Keys of rects are 1-indexed page numbers.
type Canvas interface {
	Paint(data []byte, rects map[int][]pdf.Rect, fill pdf.Fill) ([]byte, error)
}

// Options configure a Redactor.
type Options struct {
	// Debug paints translucent red boxes instead of opaque black ones.
	Debug bool
	// Concurrency bounds the pages analysed at once. Zero means 4.
	Concurrency int
}

// Report summarises one redaction pass.
type Report struct {
	Pages   int
	Lines   int
	Matches int
	Boxes   int
	ByKind  map[string]int
	Elapsed time.Duration
}

// PagePlan is the set of boxes for a single page.
type PagePlan struct {
	Lines   int
	Matches int
	ByKind  map[string]int
	Boxes   []pdf.Rect
}

// Redactor runs detection over each page and paints the resulting boxes.
type Redactor struct {
	source   TextSource
	canvas   Canvas
	detector *pii.Detector
	opts     Options
	logger   *slog.Logger
}

// NewRedactor creates a redactor.
func NewRedactor(source TextSource, canvas Canvas, detector *pii.Detector, opts Options, logger *slog.Logger) *Redactor {
	if detector == nil {
		detector = pii.NewDetector(nil, nil)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Redactor{
		source:   source,
		canvas:   canvas,
		detector: detector,
		opts:     opts,
		logger:   logger,
	}
}

// Redact returns a copy of data with every detected span covered.
// Pages are analysed concurrently and painted in page order.
func (r *Redactor) Redact(ctx context.Context, data []byte) ([]byte, Report, error) {
	start := time.Now()
	report := Report{ByKind: make(map[string]int)}

	pages, err := r.source.Runs(ctx, data)
	if err != nil {
		return nil, report, fmt.Errorf("read text layer: %w", err)
	}
	report.Pages = len(pages)

	plans := make([]PagePlan, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i := range pages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			plans[i] = r.PlanPage(pages[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, report, err
	}

	rects := make(map[int][]pdf.Rect)
	for i, p := range plans {
		report.Lines += p.Lines
		report.Matches += p.Matches
		report.Boxes += len(p.Boxes)
		for k, v := range p.ByKind {
			report.ByKind[k] += v
		}
		if len(p.Boxes) > 0 {
			rects[i+1] = p.Boxes
		}
	}

	fill := OpaqueFill
	if r.opts.Debug {
		fill = DebugFill
	}

	out, err := r.canvas.Paint(data, rects, fill)
	if err != nil {
		return nil, report, fmt.Errorf("paint redactions: %w", err)
	}
	report.Elapsed = time.Since(start)

	r.logger.Info("redaction completed",
		slog.Int("pages", report.Pages),
		slog.Int("lines", report.Lines),
		slog.Int("matches", report.Matches),
		slog.Int("boxes", report.Boxes),
		slog.Bool("debug", r.opts.Debug),
		slog.Duration("elapsed", report.Elapsed),
	)
	return out, report, nil
}

// PlanPage computes the padded boxes for one page without touching the document.
func (r *Redactor) PlanPage(runs []pdf.Run) PagePlan {
	plan := PagePlan{ByKind: make(map[string]int)}
	if len(runs) == 0 {
		return plan
	}

	items := make([]layout.TextItem, len(runs))
	for i, run := range runs {
		items[i] = layout.TextItem{
			Str:       run.Text,
			Transform: [6]float64{run.FontSize, 0, 0, run.FontSize, run.X, run.Y},
			Width:     run.Width,
			Height:    run.FontSize,
		}
	}

	for _, line := range layout.Reconstruct(items) {
		if strings.TrimSpace(line.Text) == "" {
			continue
		}
		plan.Lines++

		matches := r.detector.Detect(line.Text)
		if len(matches) == 0 {
			continue
		}
		plan.Matches += len(matches)
		for _, m := range matches {
			plan.ByKind[m.Kind.String()]++
		}

		plan.Boxes = append(plan.Boxes, LineBoxes(line, matches, r.detector.Denylist())...)
	}
	return plan
}

// LineBoxes merges, filters and splits the matches of a line and returns the
// padded rectangles to paint. Spans outside the mapping are skipped.
func LineBoxes(line layout.Line, matches []pii.Match, denylist *pii.Denylist) []pdf.Rect {
	text := []rune(line.Text)
	var boxes []pdf.Rect
	for _, span := range Merge(text, matches) {
		if denylist.Denied(span.Text) {
			continue
		}
		for _, sub := range Split(text, span) {
			box, ok := BoundingBox(sub.Start, sub.End, line.Mapping)
			if !ok {
				continue
			}
			boxes = append(boxes, Pad(box))
		}
	}
	return boxes
}
