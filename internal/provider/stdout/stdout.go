// Package stdout implements a Provider that prints messages instead of
// delivering them. It is the dry-run transport.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samber/lo"

	"github.com/shineum/mailpipe/internal/email"
	"github.com/shineum/mailpipe/internal/parser"
	"github.com/shineum/mailpipe/internal/provider"
)

const separator = "========================================\n"

// Provider prints messages in a human-readable format.
type Provider struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
}

// New creates a new stdout Provider that writes summaries to os.Stdout.
func New() *Provider {
	return &Provider{writer: os.Stdout}
}

// NewWithWriter creates a new stdout Provider that writes summaries to the
// given writer.
func NewWithWriter(w io.Writer) *Provider {
	return &Provider{writer: w}
}

// Send prints a summary of the message. Nothing is delivered, so the
// returned capture is always empty and successful.
func (p *Provider) Send(_ context.Context, raw []byte) (*provider.Capture, error) {
	msg, err := parser.Parse(raw)
	if err != nil {
		return nil, err
	}

	if _, err := io.WriteString(p.writer, Summary(msg)); err != nil {
		return nil, fmt.Errorf("failed to write summary: %w", err)
	}
	return &provider.Capture{}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "stdout"
}

// Summary renders a parsed message between separator lines.
func Summary(msg *email.Email) string {
	var b strings.Builder

	b.WriteString(separator)
	fmt.Fprintf(&b, "From: %s\n", msg.From)
	fmt.Fprintf(&b, "To: %s\n", strings.Join(msg.To, ", "))

	if len(msg.Cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\n", strings.Join(msg.Cc, ", "))
	}

	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	b.WriteString("Body:\n")

	body := msg.TextBody
	if body == "" {
		body = msg.HtmlBody
	}
	b.WriteString(strings.TrimRight(body, "\r\n") + "\n")

	if len(msg.Attachments) > 0 {
		b.WriteString("Attachments:\n")
		lines := lo.Map(msg.Attachments, func(att email.Attachment, _ int) string {
			label := att.Filename
			if att.Name != "" {
				label = att.Name + ": " + att.Filename
			}
			return fmt.Sprintf("  %s (%s)\n", label, formatSize(len(att.Content)))
		})
		b.WriteString(strings.Join(lines, ""))
	}

	b.WriteString(separator)
	return b.String()
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
