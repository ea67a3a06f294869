package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const metaDir = ".meta"

// LocalStorage implements Storage using the local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local filesystem storage
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if basePath == "" {
		basePath = "./artifacts"
	}
	if err := os.MkdirAll(filepath.Join(basePath, metaDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Put stores r under key, replacing any previous artifact
func (s *LocalStorage) Put(ctx context.Context, key, contentType string, r io.Reader) (*FileInfo, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}

	filePath := s.filePath(key)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	// write to a sibling temp file so readers never see a partial artifact
	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".put-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	size, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to move file into place: %w", err)
	}

	info := &FileInfo{
		ID:          uuid.New(),
		Key:         key,
		Name:        path.Base(key),
		Size:        size,
		ContentType: contentType,
		CreatedAt:   time.Now(),
	}
	if err := s.saveMetadata(info); err != nil {
		os.Remove(filePath)
		return nil, err
	}
	return info, nil
}

// Get opens the artifact stored under key
func (s *LocalStorage) Get(ctx context.Context, key string) (io.ReadCloser, *FileInfo, error) {
	info, err := s.Stat(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(s.filePath(info.Key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, info, nil
}

// Stat returns metadata without opening the artifact. Files placed under the
// storage root by other producers have no metadata yet; they are adopted on
// first access.
func (s *LocalStorage) Stat(ctx context.Context, key string) (*FileInfo, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.metaPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return s.adopt(key)
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var info FileInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &info, nil
}

// Delete removes the artifact; deleting a missing key is not an error
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(s.filePath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if err := os.Remove(s.metaPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}
	return nil
}

// List returns the artifacts whose key starts with prefix, ordered by key
func (s *LocalStorage) List(ctx context.Context, prefix string) ([]*FileInfo, error) {
	entries, err := os.ReadDir(filepath.Join(s.basePath, metaDir))
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}

	files := make([]*FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.basePath, metaDir, entry.Name()))
		if err != nil {
			continue
		}
		var info FileInfo
		if err := json.Unmarshal(data, &info); err != nil {
			continue
		}
		if strings.HasPrefix(info.Key, prefix) {
			files = append(files, &info)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Key < files[j].Key })
	return files, nil
}

// adopt builds metadata for a file written without Put and records it.
func (s *LocalStorage) adopt(key string) (*FileInfo, error) {
	st, err := os.Stat(s.filePath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if !st.Mode().IsRegular() {
		return nil, ErrNotFound
	}

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	info := &FileInfo{
		ID:          uuid.NewSHA1(uuid.NameSpaceURL, []byte("file:"+key)),
		Key:         key,
		Name:        path.Base(key),
		Size:        st.Size(),
		ContentType: contentType,
		CreatedAt:   st.ModTime(),
	}
	if err := s.saveMetadata(info); err != nil {
		return nil, err
	}
	return info, nil
}

func (s *LocalStorage) filePath(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(key))
}

// metaPath maps a key to a flat metadata file name.
func (s *LocalStorage) metaPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.basePath, metaDir, hex.EncodeToString(sum[:16])+".json")
}

func (s *LocalStorage) saveMetadata(info *FileInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(s.metaPath(info.Key), data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// cleanKey normalizes a slash separated key and rejects keys that would
// escape the storage root or collide with the metadata directory.
func cleanKey(key string) (string, error) {
	key = strings.ReplaceAll(strings.TrimSpace(key), "\\", "/")
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return "", ErrInvalidKey
		}
	}
	cleaned := path.Clean(strings.TrimLeft(key, "/"))
	if cleaned == "." || cleaned == "" {
		return "", ErrInvalidKey
	}
	if cleaned == metaDir || strings.HasPrefix(cleaned, metaDir+"/") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
