// Package graph implements a Provider that sends mail via the Microsoft Graph API.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/shineum/simplemail/internal/address"
	"github.com/shineum/simplemail/internal/email"
	"github.com/shineum/simplemail/internal/provider"
)

const (
	loginBaseURL = "https://login.microsoftonline.com"
	graphBaseURL = "https://graph.microsoft.com/v1.0"
)

// GraphProviderConfig holds the configuration for creating a GraphProvider.
type GraphProviderConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// GraphProvider sends mail via the Microsoft Graph API using OAuth2
// client credentials authentication. The mailbox that sends is the bare
// From address of each mail record.
type GraphProvider struct {
	graphBaseURL string
	httpClient   *http.Client
}

// New creates a new GraphProvider with the given configuration. Tokens are
// fetched lazily, under ctx, on the first Send.
func New(ctx context.Context, cfg GraphProviderConfig) *GraphProvider {
	tokenURL := fmt.Sprintf("%s/%s/oauth2/v2.0/token", loginBaseURL, url.PathEscape(cfg.TenantID))
	return newWithOverrides(ctx, cfg, graphBaseURL, tokenURL, &http.Client{Timeout: 30 * time.Second})
}

// newWithOverrides creates a GraphProvider with custom URLs and HTTP client,
// used for testing.
func newWithOverrides(ctx context.Context, cfg GraphProviderConfig, graphURL, tokenURL string, base *http.Client) *GraphProvider {
	return &GraphProvider{
		graphBaseURL: graphURL,
		httpClient:   authorizedClient(newTokenSource(ctx, cfg, tokenURL, base), base),
	}
}

// Send delivers m with a single sendMail request.
func (g *GraphProvider) Send(ctx context.Context, m *email.Mail) error {
	reqBody, err := buildSendMailRequest(m)
	if err != nil {
		return provider.Fail(g.Name(), err)
	}

	bodyJSON, err := json.Marshal(reqBody)
	if err != nil {
		return provider.Fail(g.Name(), fmt.Errorf("failed to marshal request body: %w", err))
	}

	return provider.Fail(g.Name(), g.doSendRequest(ctx, g.sendMailURL(m.From), bodyJSON))
}

// Name returns the provider name.
func (g *GraphProvider) Name() string {
	return "graph"
}

func (g *GraphProvider) sendMailURL(from string) string {
	return fmt.Sprintf("%s/users/%s/sendMail", g.graphBaseURL, url.PathEscape(address.Bare(from)))
}

// doSendRequest performs a single HTTP request to the Graph API sendMail endpoint.
func (g *GraphProvider) doSendRequest(ctx context.Context, endpoint string, bodyJSON []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	slog.Debug("SENDING MAIL", "endpoint", endpoint, "bytes", len(bodyJSON))

	resp, err := g.httpClient.Do(req)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return fmt.Errorf("failed to get access token: %w", re)
		}
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	// HTTP 202 Accepted is success for sendMail
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := io.ReadAll(resp.Body)

	var graphErrResp graphErrorResponse
	if jsonErr := json.Unmarshal(body, &graphErrResp); jsonErr == nil && graphErrResp.Error.Message != "" {
		return &sendError{statusCode: resp.StatusCode, code: graphErrResp.Error.Code, message: graphErrResp.Error.Message}
	}

	return &sendError{statusCode: resp.StatusCode, message: string(body)}
}

// sendError is a non-success response from the sendMail endpoint.
type sendError struct {
	statusCode int
	code       string
	message    string
}

func (e *sendError) Error() string {
	if e.code != "" {
		return fmt.Sprintf("Graph API error (HTTP %d, %s): %s", e.statusCode, e.code, e.message)
	}
	return fmt.Sprintf("Graph API error (HTTP %d): %s", e.statusCode, e.message)
}
