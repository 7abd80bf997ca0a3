// Package message composes a mail record into a MIME message.
package message

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"os"
	"path/filepath"

	"github.com/wneessen/go-mail"

	"github.com/shineum/simplemail/internal/address"
	"github.com/shineum/simplemail/internal/email"
	"github.com/shineum/simplemail/internal/header"
)

// UserAgent is set as the User-Agent and X-Mailer of composed messages.
const UserAgent = "simplemail"

// Compose builds the MIME message for m using the fields of h. The body is
// a multipart/alternative group holding a single inline text/plain part.
// When m has an attachment the file is read in full and added beside that
// group under multipart/mixed. The attachment file is closed before
// Compose returns.
func Compose(m *email.Mail, h header.Header) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if err := msg.FromFormat(h.Name, address.Bare(h.From)); err != nil {
		return nil, fmt.Errorf("invalid sender %s: %w", h.From, err)
	}
	if err := msg.To(address.Bare(h.To)); err != nil {
		return nil, fmt.Errorf("invalid recipient %s: %w", h.To, err)
	}
	if h.Cc != "" {
		if err := msg.Cc(address.Bare(h.Cc)); err != nil {
			return nil, fmt.Errorf("invalid carbon copy %s: %w", h.Cc, err)
		}
	}
	if h.Bcc != "" {
		if err := msg.Bcc(address.Bare(h.Bcc)); err != nil {
			return nil, fmt.Errorf("invalid blind carbon copy %s: %w", h.Bcc, err)
		}
	}

	msg.Subject(h.Subject)
	msg.SetDateWithValue(h.Date)
	msg.SetMessageID()
	msg.SetUserAgent(UserAgent)
	ct, body := alternativeBody(m.Body)
	msg.SetBodyWriter(ct, body, mail.WithPartEncoding(mail.NoEncoding))

	if m.HasAttachment() {
		if err := attach(msg, m.Attachment); err != nil {
			return nil, err
		}
	}

	return msg, nil
}

// alternativeBody returns the content type and writer for a
// multipart/alternative group whose only member is text as an inline,
// quoted-printable text/plain part. go-mail itself only opens an
// alternative group for two or more bodies.
func alternativeBody(text string) (mail.ContentType, func(io.Writer) (int64, error)) {
	boundary := multipart.NewWriter(io.Discard).Boundary()
	ct := mail.ContentType(fmt.Sprintf("multipart/alternative; boundary=%q", boundary))

	return ct, func(w io.Writer) (int64, error) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		if err := mw.SetBoundary(boundary); err != nil {
			return 0, err
		}
		pw, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {"text/plain; charset=UTF-8"},
			"Content-Transfer-Encoding": {"quoted-printable"},
			"Content-Disposition":       {"inline"},
		})
		if err != nil {
			return 0, err
		}
		qw := quotedprintable.NewWriter(pw)
		if _, err := io.WriteString(qw, text); err != nil {
			return 0, err
		}
		if err := qw.Close(); err != nil {
			return 0, err
		}
		if err := mw.Close(); err != nil {
			return 0, err
		}
		return buf.WriteTo(w)
	}
}

func attach(msg *mail.Msg, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open attachment: %w", err)
	}
	defer f.Close()

	if err := msg.AttachReader(filepath.Base(path), f); err != nil {
		return fmt.Errorf("failed to read attachment %s: %w", path, err)
	}
	return nil
}

// Raw renders msg in RFC 5322 wire format.
func Raw(msg *mail.Msg) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}
	return buf.Bytes(), nil
}
