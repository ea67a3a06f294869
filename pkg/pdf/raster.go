package pdf

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultDPI is the rasterization resolution of redacted statements.
const DefaultDPI = 200

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Logger *slog.Logger
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	dur := time.Since(start)

	if r.Logger != nil {
		if err != nil {
			r.Logger.Error("exec failed",
				"cmd", name,
				"duration_ms", dur.Milliseconds(),
				"error", err,
				"stderr", truncate(errb.String(), 8<<10),
			)
		} else {
			r.Logger.Debug("exec ok",
				"cmd", name,
				"args", strings.Join(args, " "),
				"duration_ms", dur.Milliseconds(),
			)
		}
	}
	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// Rasterizer renders pages to PNG with pdftoppm.
type Rasterizer struct {
	runner Runner
	bin    string
	dpi    int
}

// NewRasterizer creates a rasterizer. Empty bin means "pdftoppm", dpi <= 0 means DefaultDPI.
func NewRasterizer(runner Runner, bin string, dpi int) *Rasterizer {
	if bin == "" {
		bin = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &Rasterizer{runner: runner, bin: bin, dpi: dpi}
}

// Rasterize returns one PNG per page, in page order.
func (r *Rasterizer) Rasterize(ctx context.Context, data []byte) ([][]byte, error) {
	tmpDir, err := os.MkdirTemp("", "statement-raster-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	in := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, err
	}

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -png -r 200 <in.pdf> <tmp/page>
	_, errb, err := r.runner.Run(ctx, r.bin, "-png", "-r", strconv.Itoa(r.dpi), in, prefix)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", r.bin, err, truncate(string(errb), 512))
	}

	// pdftoppm zero-pads page numbers, so lexical order is page order
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%s produced no images", r.bin)
	}

	images := make([][]byte, 0, len(matches))
	for _, m := range matches {
		img, err := os.ReadFile(m)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

// Flatten rasterizes data and rebuilds it as an image-only document.
func (r *Rasterizer) Flatten(ctx context.Context, data []byte) ([]byte, error) {
	images, err := r.Rasterize(ctx, data)
	if err != nil {
		return nil, err
	}
	return ImagesToPDF(images)
}
