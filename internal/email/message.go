// Package email defines the mail record passed from the CLI to the
// delivery providers.
package email

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidMail is returned by Validate when a required field is empty.
var ErrInvalidMail = errors.New("invalid mail record")

// Mail is the single record built once per invocation and consumed by a
// provider. Addresses are stored in angle-bracket form.
type Mail struct {
	// Identity and credentials, from the rc file.
	Name     string
	Username string
	Password string
	SMTP     string
	From     string

	// Addressing and content, from the command line.
	To         string
	Cc         string
	Bcc        string
	Subject    string
	Body       string
	Attachment string
}

// Validate checks the fields that must be present before any transport is
// attempted.
func (m *Mail) Validate() error {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"name", m.Name},
		{"username", m.Username},
		{"password", m.Password},
		{"from", m.From},
		{"smtp", m.SMTP},
		{"to", m.To},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidMail, strings.Join(missing, ", "))
	}
	return nil
}

// Recipients returns the envelope recipients in RCPT TO order: To, then Cc
// and Bcc when set.
func (m *Mail) Recipients() []string {
	rcpts := []string{m.To}
	if m.Cc != "" {
		rcpts = append(rcpts, m.Cc)
	}
	if m.Bcc != "" {
		rcpts = append(rcpts, m.Bcc)
	}
	return rcpts
}

// HasAttachment reports whether a file should be attached.
func (m *Mail) HasAttachment() bool {
	return m.Attachment != ""
}
