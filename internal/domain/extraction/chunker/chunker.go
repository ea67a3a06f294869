// Package chunker splits a statement into bounded page-range documents sized
// for reliable ingestion by the extraction model.
package chunker

import (
	"context"
	"fmt"
)

// DefaultPagesPerChunk is the page budget of a chunk.
const DefaultPagesPerChunk = 5

// Chunk is a standalone document holding pages StartPage..EndPage of the source.
type Chunk struct {
	Data      []byte
	StartPage int
	EndPage   int
	PageCount int
}

// Label renders the 1-indexed page range, e.g. "6-10".
func (c Chunk) Label() string {
	return fmt.Sprintf("%d-%d", c.StartPage, c.EndPage)
}

// PageSlicer counts pages and extracts page ranges.
type PageSlicer interface {
	PageCount(data []byte) (int, error)
	Extract(data []byte, from, to int) ([]byte, error)
}

// Chunker splits documents along page boundaries.
type Chunker struct {
	slicer        PageSlicer
	pagesPerChunk int
}

// New creates a chunker. pagesPerChunk <= 0 uses DefaultPagesPerChunk.
func New(slicer PageSlicer, pagesPerChunk int) *Chunker {
	if pagesPerChunk <= 0 {
		pagesPerChunk = DefaultPagesPerChunk
	}
	return &Chunker{slicer: slicer, pagesPerChunk: pagesPerChunk}
}

// Ranges partitions total pages into contiguous inclusive ranges of size perChunk.
// The last range may be shorter.
func Ranges(total, perChunk int) [][2]int {
	if perChunk <= 0 {
		perChunk = DefaultPagesPerChunk
	}
	var out [][2]int
	for start := 1; start <= total; start += perChunk {
		out = append(out, [2]int{start, min(start+perChunk-1, total)})
	}
	return out
}

// Split returns the ordered chunks of data.
func (c *Chunker) Split(ctx context.Context, data []byte) ([]Chunk, error) {
	total, err := c.slicer.PageCount(data)
	if err != nil {
		return nil, fmt.Errorf("count pages: %w", err)
	}

	ranges := Ranges(total, c.pagesPerChunk)
	chunks := make([]Chunk, 0, len(ranges))
	for _, r := range ranges {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		part, err := c.slicer.Extract(data, r[0], r[1])
		if err != nil {
			return nil, fmt.Errorf("slice pages %d-%d: %w", r[0], r[1], err)
		}
		chunks = append(chunks, Chunk{
			Data:      part,
			StartPage: r[0],
			EndPage:   r[1],
			PageCount: r[1] - r[0] + 1,
		})
	}
	return chunks, nil
}
