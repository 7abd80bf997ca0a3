// Package provider defines the interface for mail delivery backends.
package provider

import (
	"context"
	"fmt"

	"github.com/shineum/simplemail/internal/email"
)

// Provider is the interface that mail delivery backends must implement.
// Each provider handles the actual sending of the composed mail record
// to the target service (e.g., an SMTP server, AWS SES, Microsoft Graph).
type Provider interface {
	// Send delivers m through this provider exactly once.
	// Any failure is returned as a *TransportError.
	Send(ctx context.Context, m *email.Mail) error

	// Name returns the human-readable name of this provider.
	Name() string
}

// TransportError reports a failed delivery attempt: authentication,
// connection, TLS, attachment or send failure.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("error sending the mail via %s: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Fail wraps err as a TransportError for the named provider. A nil err
// yields nil.
func Fail(name string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Provider: name, Err: err}
}
