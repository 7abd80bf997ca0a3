// Package header builds the message header block for a mail record.
package header

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shineum/simplemail/internal/email"
)

// DateLayout is the RFC 2822 date format used for the Date field.
const DateLayout = "Mon, 02 Jan 2006 15:04:05 -0700"

// Header holds the discrete header fields of a message. String renders
// them as the six-line text block.
type Header struct {
	Date    time.Time
	To      string
	From    string
	Name    string
	Cc      string
	Bcc     string
	Subject string
}

// Build assembles the header for m, dated at now.
func Build(m *email.Mail, now time.Time) Header {
	h := Header{
		Date:    now,
		To:      m.To,
		From:    m.From,
		Name:    m.Name,
		Cc:      m.Cc,
		Bcc:     m.Bcc,
		Subject: m.Subject,
	}
	slog.Debug("GENERATING HEADER", "header", h.String())
	return h
}

// FormatDate renders t in DateLayout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// String renders the header block. Every line, including Subject, ends in
// a newline and no blank separator line follows.
func (h Header) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\n", FormatDate(h.Date))
	fmt.Fprintf(&b, "To: %s\n", h.To)
	fmt.Fprintf(&b, "From: %s (%s)\n", h.From, h.Name)
	fmt.Fprintf(&b, "Cc: %s\n", h.Cc)
	fmt.Fprintf(&b, "Bcc: %s\n", h.Bcc)
	fmt.Fprintf(&b, "Subject: %s\n", h.Subject)
	return b.String()
}
