package message

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shineum/simplemail/internal/email"
	"github.com/shineum/simplemail/internal/header"
	"github.com/shineum/simplemail/internal/parser"
)

func testMail() *email.Mail {
	return &email.Mail{
		Name:     "Alice",
		Username: "alice",
		Password: "secret",
		SMTP:     "smtp.example.com:587",
		From:     "<alice@example.com>",
		To:       "<bob@example.com>",
		Subject:  "Hi",
		Body:     "Hello Bob",
	}
}

func rawMessage(t *testing.T, m *email.Mail) []byte {
	t.Helper()
	date := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	msg, err := Compose(m, header.Build(m, date))
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	raw, err := Raw(msg)
	if err != nil {
		t.Fatalf("Raw: %v", err)
	}
	return raw
}

func render(t *testing.T, m *email.Mail) *parser.Message {
	t.Helper()
	raw := rawMessage(t, m)
	parsed, err := parser.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v\n%s", err, raw)
	}
	return parsed
}

func TestCompose_PlainBody(t *testing.T) {
	parsed := render(t, testMail())

	if parsed.From != "alice@example.com" {
		t.Errorf("From: got %q", parsed.From)
	}
	if len(parsed.To) != 1 || parsed.To[0] != "bob@example.com" {
		t.Errorf("To: got %v", parsed.To)
	}
	if len(parsed.Cc) != 0 {
		t.Errorf("Cc: got %v, want none", parsed.Cc)
	}
	if parsed.Subject != "Hi" {
		t.Errorf("Subject: got %q", parsed.Subject)
	}
	if parsed.MediaType != "multipart/alternative" {
		t.Errorf("MediaType: got %q, want multipart/alternative", parsed.MediaType)
	}
	if got := strings.TrimRight(parsed.TextBody, "\r\n"); got != "Hello Bob" {
		t.Errorf("TextBody: got %q", got)
	}
	if len(parsed.Attachments) != 0 {
		t.Errorf("Attachments: got %d, want 0", len(parsed.Attachments))
	}
	if !strings.Contains(parsed.Header.Get("From"), "Alice") {
		t.Errorf("From header lacks display name: %q", parsed.Header.Get("From"))
	}
	if parsed.Header.Get("Date") == "" {
		t.Error("Date header missing")
	}
	if parsed.MessageID == "" {
		t.Error("Message-ID header missing")
	}
}

func TestCompose_CarbonCopies(t *testing.T) {
	m := testMail()
	m.Cc = "<carol@example.com>"
	m.Bcc = "<dave@example.com>"

	parsed := render(t, m)

	if len(parsed.Cc) != 1 || parsed.Cc[0] != "carol@example.com" {
		t.Errorf("Cc: got %v", parsed.Cc)
	}
	if len(parsed.Bcc) != 0 {
		t.Errorf("Bcc must not appear in the headers: got %v", parsed.Bcc)
	}
}

func TestCompose_Attachment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("line one\nline two\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := testMail()
	m.Attachment = path

	parsed := render(t, m)

	if parsed.MediaType != "multipart/mixed" {
		t.Errorf("MediaType: got %q, want multipart/mixed", parsed.MediaType)
	}
	if got := strings.TrimRight(parsed.TextBody, "\r\n"); got != "Hello Bob" {
		t.Errorf("TextBody: got %q", got)
	}
	if len(parsed.Attachments) != 1 {
		t.Fatalf("Attachments: got %d, want 1", len(parsed.Attachments))
	}
	att := parsed.Attachments[0]
	if att.Filename != "notes.txt" {
		t.Errorf("Filename: got %q", att.Filename)
	}
	if string(att.Content) != "line one\nline two\n" {
		t.Errorf("Content: got %q", att.Content)
	}
}

func TestCompose_MissingAttachment(t *testing.T) {
	m := testMail()
	m.Attachment = filepath.Join(t.TempDir(), "missing.pdf")

	_, err := Compose(m, header.Build(m, time.Now()))
	if err == nil {
		t.Fatal("expected error for missing attachment")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestCompose_InvalidRecipient(t *testing.T) {
	m := testMail()
	m.To = "<not an address>"

	if _, err := Compose(m, header.Build(m, time.Now())); err == nil {
		t.Fatal("expected error for invalid recipient")
	}
}

// outline lists every MIME entity of raw, depth first, as
// "depth:media-type" with ":disposition" appended when one is set.
func outline(t *testing.T, raw []byte) []string {
	t.Helper()
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}

	var out []string
	var walk func(h textproto.MIMEHeader, body io.Reader, depth int)
	walk = func(h textproto.MIMEHeader, body io.Reader, depth int) {
		mediaType, params, err := mime.ParseMediaType(h.Get("Content-Type"))
		if err != nil {
			t.Fatalf("Content-Type %q: %v", h.Get("Content-Type"), err)
		}
		entry := strconv.Itoa(depth) + ":" + mediaType
		if d, _, err := mime.ParseMediaType(h.Get("Content-Disposition")); err == nil {
			entry += ":" + d
		}
		out = append(out, entry)

		if !strings.HasPrefix(mediaType, "multipart/") {
			return
		}
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, err := mr.NextRawPart()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				t.Fatalf("next part: %v", err)
			}
			walk(part.Header, part, depth+1)
		}
	}
	walk(textproto.MIMEHeader(msg.Header), msg.Body, 0)
	return out
}

func TestCompose_Structure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		attachment string
		want       []string
	}{
		{
			name: "body only",
			want: []string{
				"0:multipart/alternative",
				"1:text/plain:inline",
			},
		},
		{
			name:       "attachment beside the alternative group",
			attachment: path,
			want: []string{
				"0:multipart/mixed",
				"1:multipart/alternative",
				"2:text/plain:inline",
				"1:application/pdf:attachment",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testMail()
			m.Attachment = tt.attachment

			if got := outline(t, rawMessage(t, m)); !slices.Equal(got, tt.want) {
				t.Errorf("structure:\n got %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestCompose_BodyIsQuotedPrintable(t *testing.T) {
	m := testMail()
	m.Body = "Grüße, Bob. " + strings.Repeat("long line ", 12)

	parsed := render(t, m)
	if got := strings.TrimRight(parsed.TextBody, "\r\n"); got != m.Body {
		t.Errorf("TextBody: got %q, want %q", got, m.Body)
	}
	if raw := rawMessage(t, m); !bytes.Contains(raw, []byte("Gr=C3=BC=C3=9Fe")) {
		t.Errorf("body not quoted-printable encoded:\n%s", raw)
	}
}
