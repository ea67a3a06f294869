package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/resend/resend-go/v2"
)

// ReadyFile is a finished conversion announced to the owner.
type ReadyFile struct {
	Name   string
	FileID uuid.UUID
}

// Notifier tells a user that conversions are ready.
type Notifier interface {
	NotifyReady(ctx context.Context, email string, files []ReadyFile) error
}

// EmailSender is the part of the Resend client used to send mail.
type EmailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// EmailNotifier sends the "conversions ready" email through Resend.
type EmailNotifier struct {
	sender      EmailSender
	fromEmail   string
	downloadURL string
	logger      *slog.Logger
}

// NewEmailNotifier creates a notifier. An empty API key yields a notifier
// that only logs.
func NewEmailNotifier(apiKey, fromEmail, downloadURL string, logger *slog.Logger) *EmailNotifier {
	n := &EmailNotifier{
		fromEmail:   fromEmail,
		downloadURL: strings.TrimRight(downloadURL, "/"),
		logger:      logger,
	}
	if apiKey != "" {
		n.sender = resend.NewClient(apiKey).Emails
	}
	if n.fromEmail == "" {
		n.fromEmail = "BankStatement2CSV <no-reply@bankstatement2csv.com>"
	}
	return n
}

// WithSender replaces the Resend client.
func (n *EmailNotifier) WithSender(sender EmailSender) *EmailNotifier {
	n.sender = sender
	return n
}

// NotifyReady sends one email listing the download links.
func (n *EmailNotifier) NotifyReady(ctx context.Context, email string, files []ReadyFile) error {
	if len(files) == 0 {
		return nil
	}
	if n.sender == nil {
		n.logger.Info("conversions ready, resend not configured",
			slog.String("email", email),
			slog.Int("files", len(files)),
		)
		return nil
	}
	if email == "" {
		return errors.New("recipient email is required")
	}

	html, err := n.render(email, files)
	if err != nil {
		return fmt.Errorf("render email: %w", err)
	}
	_, err = n.sender.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    n.fromEmail,
		To:      []string{email},
		Subject: "Your BankStatement2CSV conversions are ready",
		Html:    html,
	})
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	n.logger.Info("conversions ready email sent",
		slog.String("email", email),
		slog.Int("files", len(files)),
	)
	return nil
}

type downloadLink struct {
	Name string
	URL  string
}

var readyTemplate = template.Must(template.New("ready").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; color: #1f2937;">
  <p>Hi {{.User}},</p>
  <p>Your statements have been converted. The links below stay valid while the files are in your account.</p>
  <ul>
  {{- range .Links}}
    <li><a href="{{.URL}}">{{.Name}}</a></li>
  {{- end}}
  </ul>
  <p>BankStatement2CSV</p>
</body>
</html>
`))

func (n *EmailNotifier) render(email string, files []ReadyFile) (string, error) {
	links := make([]downloadLink, 0, len(files))
	for _, f := range files {
		links = append(links, downloadLink{Name: f.Name, URL: n.link(f.FileID)})
	}
	var buf bytes.Buffer
	err := readyTemplate.Execute(&buf, struct {
		User  string
		Links []downloadLink
	}{User: email, Links: links})
	return buf.String(), err
}

func (n *EmailNotifier) link(id uuid.UUID) string {
	return n.downloadURL + "/api/generated-files/" + id.String()
}
