// Package stdout implements a Provider that prints mail to standard output
// instead of delivering it.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shineum/simplemail/internal/email"
	"github.com/shineum/simplemail/internal/header"
	"github.com/shineum/simplemail/internal/provider"
)

const separator = "========================================\n"

// Provider prints mail records in a human-readable format.
type Provider struct {
	writer io.Writer
	now    func() time.Time
}

// New creates a stdout Provider that prints to w.
func New(w io.Writer) *Provider {
	return &Provider{writer: w, now: time.Now}
}

// Send prints the header block, the body and a one-line summary of the
// attachment. The attachment is opened and measured, so an unreadable
// file fails the same way it would for a real transport.
func (p *Provider) Send(_ context.Context, m *email.Mail) error {
	var b strings.Builder

	b.WriteString(separator)
	b.WriteString(header.Build(m, p.now()).String())
	b.WriteString("\n")
	b.WriteString(m.Body)
	b.WriteString("\n")

	if m.HasAttachment() {
		size, err := attachmentSize(m.Attachment)
		if err != nil {
			return provider.Fail(p.Name(), err)
		}
		fmt.Fprintf(&b, "Attachment: %s (%s)\n", filepath.Base(m.Attachment), formatSize(size))
	}

	b.WriteString(separator)

	if _, err := io.WriteString(p.writer, b.String()); err != nil {
		return provider.Fail(p.Name(), fmt.Errorf("failed to write mail: %w", err))
	}
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "stdout"
}

func attachmentSize(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open attachment: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(io.Discard, f)
	if err != nil {
		return 0, fmt.Errorf("failed to read attachment %s: %w", path, err)
	}
	return n, nil
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int64) string {
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
