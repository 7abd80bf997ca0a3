package graph

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/shineum/simplemail/internal/address"
	"github.com/shineum/simplemail/internal/email"
)

// sendMailRequest is the top-level request body for the Graph API sendMail endpoint.
type sendMailRequest struct {
	Message         sendMailMessage `json:"message"`
	SaveToSentItems bool            `json:"saveToSentItems"`
}

// sendMailMessage represents the message portion of a sendMail request.
type sendMailMessage struct {
	Subject       string            `json:"subject"`
	Body          messageBody       `json:"body"`
	From          *recipient        `json:"from,omitempty"`
	ToRecipients  []recipient       `json:"toRecipients"`
	CcRecipients  []recipient       `json:"ccRecipients,omitempty"`
	BccRecipients []recipient       `json:"bccRecipients,omitempty"`
	Attachments   []graphAttachment `json:"attachments,omitempty"`
}

// messageBody represents the body of an email message.
type messageBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// recipient represents an email recipient.
type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

// emailAddress represents an email address in a Graph API request.
type emailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// graphAttachment represents a file attachment in a Graph API request.
type graphAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

// graphErrorResponse represents an error response from the Graph API.
type graphErrorResponse struct {
	Error graphError `json:"error"`
}

// graphError represents the error detail in a Graph API error response.
type graphError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// buildSendMailRequest converts a mail record into a Graph API sendMail
// request body. The attachment, if any, is read in full and base64 encoded.
func buildSendMailRequest(m *email.Mail) (*sendMailRequest, error) {
	msg := sendMailMessage{
		Subject: m.Subject,
		Body: messageBody{
			ContentType: "text",
			Content:     m.Body,
		},
		From:         &recipient{EmailAddress: emailAddress{Name: m.Name, Address: address.Bare(m.From)}},
		ToRecipients: recipients(m.To),
	}
	if m.Cc != "" {
		msg.CcRecipients = recipients(m.Cc)
	}
	if m.Bcc != "" {
		msg.BccRecipients = recipients(m.Bcc)
	}

	if m.HasAttachment() {
		att, err := readAttachment(m.Attachment)
		if err != nil {
			return nil, err
		}
		msg.Attachments = []graphAttachment{att}
	}

	return &sendMailRequest{Message: msg, SaveToSentItems: true}, nil
}

func recipients(addr string) []recipient {
	return []recipient{{EmailAddress: emailAddress{Address: address.Bare(addr)}}}
}

// readAttachment loads path as a fileAttachment, typing it by extension.
func readAttachment(path string) (graphAttachment, error) {
	f, err := os.Open(path)
	if err != nil {
		return graphAttachment{}, fmt.Errorf("failed to open attachment: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return graphAttachment{}, fmt.Errorf("failed to read attachment %s: %w", path, err)
	}

	name := filepath.Base(path)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return graphAttachment{
		ODataType:    "#microsoft.graph.fileAttachment",
		Name:         name,
		ContentType:  contentType,
		ContentBytes: base64.StdEncoding.EncodeToString(content),
	}, nil
}
