package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_PutGet(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	info, err := s.Put(ctx, "job-1/june_redacted.pdf", "application/pdf", bytes.NewReader([]byte("%PDF-1.7")))
	require.NoError(t, err)
	assert.Equal(t, "job-1/june_redacted.pdf", info.Key)
	assert.Equal(t, "june_redacted.pdf", info.Name)
	assert.Equal(t, int64(8), info.Size)

	rc, got, err := s.Get(ctx, "job-1/june_redacted.pdf")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))
	assert.Equal(t, info.ID, got.ID)
	assert.Equal(t, "application/pdf", got.ContentType)
}

func TestLocalStorage_PutReplaces(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = s.Put(ctx, "a.csv", "text/csv", bytes.NewReader([]byte("one")))
	require.NoError(t, err)
	_, err = s.Put(ctx, "a.csv", "text/csv", bytes.NewReader([]byte("second")))
	require.NoError(t, err)

	info, err := s.Stat(ctx, "a.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(6), info.Size)
}

func TestLocalStorage_DeleteAndList(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"job-2/b.csv", "job-1/a.csv", "job-1/a_redacted.pdf"} {
		_, err := s.Put(ctx, key, "", bytes.NewReader([]byte(key)))
		require.NoError(t, err)
	}

	files, err := s.List(ctx, "job-1/")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "job-1/a.csv", files[0].Key)
	assert.Equal(t, "job-1/a_redacted.pdf", files[1].Key)

	require.NoError(t, s.Delete(ctx, "job-1/a.csv"))
	require.NoError(t, s.Delete(ctx, "job-1/a.csv"))

	_, err = s.Stat(ctx, "job-1/a.csv")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLocalStorage_GetAdoptsExternalFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewLocalStorage(dir)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "inbox"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inbox", "june.pdf"), []byte("%PDF-1.4"), 0o644))

	rc, info, err := s.Get(ctx, "inbox/june.pdf")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
	assert.Equal(t, "inbox/june.pdf", info.Key)
	assert.Equal(t, "june.pdf", info.Name)
	assert.Equal(t, int64(8), info.Size)
	assert.Equal(t, "application/pdf", info.ContentType)
	assert.False(t, info.CreatedAt.IsZero())

	again, err := s.Stat(ctx, "inbox/june.pdf")
	require.NoError(t, err)
	assert.Equal(t, info.ID, again.ID)

	files, err := s.List(ctx, "inbox/")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "inbox/june.pdf", files[0].Key)

	_, err = s.Stat(ctx, "inbox")
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = s.Get(ctx, "inbox/missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCleanKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"job/a.pdf", "job/a.pdf", false},
		{"/job//a.pdf", "job/a.pdf", false},
		{`job\a.pdf`, "job/a.pdf", false},
		{"../etc/passwd", "", true},
		{"job/../../x", "", true},
		{"", "", true},
		{"/", "", true},
		{".meta/x.json", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := cleanKey(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	s, err := New(&Config{LocalPath: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, s)

	_, err = New(&Config{Type: "gcs"})
	assert.Error(t, err)
}
