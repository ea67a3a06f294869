// Package gemini adapts the Gemini Files and GenerateContent APIs to the
// extraction.Model interface.
package gemini

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/FACorreiaa/bankstatement2csv/internal/domain/extraction"
)

var ErrMissingAPIKey = errors.New("gemini: api key is required")

var _ extraction.Model = (*Client)(nil)

// Client talks to the Gemini Developer API.
type Client struct {
	client *genai.Client
	logger *slog.Logger
}

// New creates a client for the Gemini Developer API.
func New(ctx context.Context, apiKey string, logger *slog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{client: client, logger: logger}, nil
}

func (c *Client) Upload(ctx context.Context, data []byte, mimeType, displayName string) (extraction.File, error) {
	c.logger.InfoContext(ctx, "uploading file",
		"display_name", displayName,
		"size_mb", fmt.Sprintf("%.2f", float64(len(data))/1024/1024),
	)
	f, err := c.client.Files.Upload(ctx, bytes.NewReader(data), &genai.UploadFileConfig{
		MIMEType:    mimeType,
		DisplayName: displayName,
	})
	if err != nil {
		return extraction.File{}, err
	}
	if f.Name == "" || f.URI == "" {
		return extraction.File{}, fmt.Errorf("upload of %q returned no file reference", displayName)
	}
	return extraction.File{
		Name:     f.Name,
		URI:      f.URI,
		MIMEType: mimeType,
		State:    fileState(f.State),
	}, nil
}

func (c *Client) Status(ctx context.Context, name string) (extraction.FileState, error) {
	f, err := c.client.Files.Get(ctx, name, nil)
	if err != nil {
		return extraction.FileProcessing, err
	}
	return fileState(f.State), nil
}

func (c *Client) Generate(ctx context.Context, model string, turns []extraction.Turn) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, model, contents(turns), nil)
	if err != nil {
		return "", err
	}
	text := resp.Text()
	c.logger.DebugContext(ctx, "model reply", "model", model, "preview", preview(text))
	return text, nil
}

func (c *Client) Delete(ctx context.Context, name string) error {
	_, err := c.client.Files.Delete(ctx, name, nil)
	return err
}

// fileState maps the provider state. An unspecified state counts as active.
func fileState(s genai.FileState) extraction.FileState {
	switch s {
	case genai.FileStateProcessing:
		return extraction.FileProcessing
	case genai.FileStateFailed:
		return extraction.FileFailed
	default:
		return extraction.FileActive
	}
}

func contents(turns []extraction.Turn) []*genai.Content {
	out := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		parts := []*genai.Part{genai.NewPartFromText(t.Text)}
		if t.File != nil {
			parts = append(parts, genai.NewPartFromURI(t.File.URI, t.File.MIMEType))
		}
		role := genai.RoleUser
		if t.Role == extraction.RoleResponder {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromParts(parts, role))
	}
	return out
}

// preview keeps the head and tail of long replies for logging.
func preview(s string) string {
	r := []rune(s)
	if len(r) <= 400 {
		return s
	}
	return string(r[:200]) + " ... " + string(r[len(r)-200:])
}
