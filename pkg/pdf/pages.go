package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// ErrNoImages is returned when an image document is requested without pages.
var ErrNoImages = errors.New("pdf: no page images")

// Slicer counts and extracts page ranges with pdfcpu.
type Slicer struct {
	conf *model.Configuration
}

// NewSlicer creates a slicer.
func NewSlicer() *Slicer {
	return &Slicer{conf: newConfig()}
}

// PageCount returns the number of pages of data.
func (s *Slicer) PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), s.conf)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return n, nil
}

// Extract returns a standalone document holding pages from..to (1-indexed, inclusive).
func (s *Slicer) Extract(data []byte, from, to int) ([]byte, error) {
	if from < 1 || to < from {
		return nil, fmt.Errorf("pdf: invalid page range %d-%d", from, to)
	}
	var buf bytes.Buffer
	sel := []string{fmt.Sprintf("%d-%d", from, to)}
	if err := api.Trim(bytes.NewReader(data), &buf, sel, s.conf); err != nil {
		return nil, fmt.Errorf("extract pages %d-%d: %w", from, to, err)
	}
	return buf.Bytes(), nil
}

// ImagesToPDF builds a document with one full-page image per entry.
func ImagesToPDF(images [][]byte) ([]byte, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}

	readers := make([]io.Reader, len(images))
	for i, img := range images {
		readers[i] = bytes.NewReader(img)
	}

	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Full

	var buf bytes.Buffer
	if err := api.ImportImages(nil, &buf, readers, imp, newConfig()); err != nil {
		return nil, fmt.Errorf("import images: %w", err)
	}
	return buf.Bytes(), nil
}
