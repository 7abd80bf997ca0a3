// Package parser decodes RFC 5322 messages with MIME multipart bodies back
// into their parts. It is used to inspect what a provider put on the wire.
package parser

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
)

// Message is a decoded message.
type Message struct {
	Header      mail.Header
	From        string
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	MessageID   string
	MediaType   string
	TextBody    string
	Attachments []Attachment
}

// Attachment is a decoded attachment part.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Parse decodes raw into a Message. The first text/plain leaf becomes
// TextBody; any leaf with a file name or an attachment disposition becomes
// an Attachment. Other leaves are skipped.
func Parse(raw []byte) (*Message, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}
	h := msg.Header

	m := &Message{
		Header:    h,
		From:      first(addresses(h, "From")),
		To:        addresses(h, "To"),
		Cc:        addresses(h, "Cc"),
		Bcc:       addresses(h, "Bcc"),
		Subject:   decodeWords(h.Get("Subject")),
		MessageID: h.Get("Message-Id"),
	}

	mediaType, err := m.walk(textproto.MIMEHeader(h), msg.Body)
	if err != nil {
		return nil, err
	}
	m.MediaType = mediaType
	return m, nil
}

// walk visits one MIME entity, recursing into multipart containers, and
// returns the entity's media type.
func (m *Message) walk(h textproto.MIMEHeader, body io.Reader) (string, error) {
	ct := h.Get("Content-Type")
	if ct == "" {
		ct = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return "", fmt.Errorf("content type %q: %w", ct, err)
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		if params["boundary"] == "" {
			return "", errors.New("multipart entity without boundary")
		}
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, err := mr.NextRawPart()
			if errors.Is(err, io.EOF) {
				return mediaType, nil
			}
			if err != nil {
				return "", fmt.Errorf("next part: %w", err)
			}
			if _, err := m.walk(part.Header, part); err != nil {
				return "", err
			}
		}
	}

	content, err := io.ReadAll(transferDecoder(body, h.Get("Content-Transfer-Encoding")))
	if err != nil {
		return "", fmt.Errorf("decode %s body: %w", mediaType, err)
	}

	filename := params["name"]
	disposition, dparams, _ := mime.ParseMediaType(h.Get("Content-Disposition"))
	if fn := dparams["filename"]; fn != "" {
		filename = decodeWords(fn)
	}

	switch {
	case disposition == "attachment" || filename != "":
		m.Attachments = append(m.Attachments, Attachment{
			Filename:    filename,
			ContentType: mediaType,
			Content:     content,
		})
	case mediaType == "text/plain" && m.TextBody == "":
		m.TextBody = string(content)
	default:
		slog.Debug("skipping MIME part", "content_type", mediaType, "disposition", disposition)
	}
	return mediaType, nil
}

// transferDecoder undoes a Content-Transfer-Encoding. Unknown encodings
// pass through unchanged.
func transferDecoder(r io.Reader, cte string) io.Reader {
	switch strings.ToLower(strings.TrimSpace(cte)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, &lineStripper{r: r})
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	}
	return r
}

// lineStripper drops CR and LF so wrapped base64 decodes as one run.
type lineStripper struct{ r io.Reader }

func (s *lineStripper) Read(p []byte) (int, error) {
	for {
		n, err := s.r.Read(p)
		out := p[:0]
		for _, b := range p[:n] {
			if b != '\r' && b != '\n' {
				out = append(out, b)
			}
		}
		if len(out) > 0 || err != nil {
			return len(out), err
		}
	}
}

func decodeWords(s string) string {
	dec := new(mime.WordDecoder)
	if out, err := dec.DecodeHeader(s); err == nil {
		return out
	}
	return s
}

// addresses returns the bare addresses in header key. Lists that do not
// parse are split on commas.
func addresses(h mail.Header, key string) []string {
	if h.Get(key) == "" {
		return nil
	}
	var out []string
	list, err := h.AddressList(key)
	if err != nil {
		for _, p := range strings.Split(h.Get(key), ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	for _, a := range list {
		out = append(out, a.Address)
	}
	return out
}

func first(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[0]
}
