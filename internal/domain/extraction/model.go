// Package extraction drives the multi-turn model conversation that turns
// statement chunks into raw transaction records.
package extraction

import (
	"context"
	"errors"
)

var (
	ErrUploadFailed         = errors.New("extraction: upload failed")
	ErrFileProcessingFailed = errors.New("extraction: uploaded file failed processing")
	ErrFileNotReady         = errors.New("extraction: uploaded file not ready in time")
	ErrModelFailed          = errors.New("extraction: primary and fallback model failed")
)

// FileState is the processing state of an uploaded file.
type FileState int

const (
	FileProcessing FileState = iota
	FileActive
	FileFailed
)

func (s FileState) String() string {
	switch s {
	case FileProcessing:
		return "processing"
	case FileActive:
		return "active"
	case FileFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// File is a document held by the model provider.
type File struct {
	Name     string
	URI      string
	MIMEType string
	State    FileState
}

// Model is the remote extraction model. Implementations must be safe for
// sequential use from a single orchestrator.
type Model interface {
	Upload(ctx context.Context, data []byte, mimeType, displayName string) (File, error)
	Status(ctx context.Context, name string) (FileState, error)
	Generate(ctx context.Context, model string, turns []Turn) (string, error)
	Delete(ctx context.Context, name string) error
}
