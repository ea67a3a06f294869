package chunker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSlicer struct {
	pages      int
	countErr   error
	extractErr error
}

func (f *fakeSlicer) PageCount(data []byte) (int, error) {
	return f.pages, f.countErr
}

func (f *fakeSlicer) Extract(data []byte, from, to int) ([]byte, error) {
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return []byte(fmt.Sprintf("pages %d-%d", from, to)), nil
}

func TestRanges(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		perChunk int
		want     [][2]int
	}{
		{"twelve pages by five", 12, 5, [][2]int{{1, 5}, {6, 10}, {11, 12}}},
		{"exact multiple", 10, 5, [][2]int{{1, 5}, {6, 10}}},
		{"single page", 1, 5, [][2]int{{1, 1}}},
		{"no pages", 0, 5, nil},
		{"default size", 7, 0, [][2]int{{1, 5}, {6, 7}}},
		{"one page per chunk", 3, 1, [][2]int{{1, 1}, {2, 2}, {3, 3}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Ranges(tt.total, tt.perChunk))
		})
	}
}

func TestChunker_Split_TwelvePages(t *testing.T) {
	c := New(&fakeSlicer{pages: 12}, 5)

	chunks, err := c.Split(context.Background(), []byte("%PDF"))
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, "1-5", chunks[0].Label())
	assert.Equal(t, "6-10", chunks[1].Label())
	assert.Equal(t, "11-12", chunks[2].Label())

	assert.Equal(t, 5, chunks[0].PageCount)
	assert.Equal(t, 2, chunks[2].PageCount)
	assert.Equal(t, []byte("pages 6-10"), chunks[1].Data)
}

func TestChunker_Split_Errors(t *testing.T) {
	malformed := errors.New("malformed xref")

	_, err := New(&fakeSlicer{countErr: malformed}, 5).Split(context.Background(), nil)
	assert.ErrorIs(t, err, malformed)

	_, err = New(&fakeSlicer{pages: 3, extractErr: malformed}, 5).Split(context.Background(), nil)
	assert.ErrorIs(t, err, malformed)
}

func TestChunker_Split_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(&fakeSlicer{pages: 3}, 5).Split(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
