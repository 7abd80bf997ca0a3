package graph

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	graphScope = "https://graph.microsoft.com/.default"

	// expiryMargin is subtracted from the advertised lifetime so a token
	// is never presented right as it lapses.
	expiryMargin = 5 * time.Minute
)

// newTokenSource returns the client-credentials token source for the Graph
// scope. Tokens are reused until expiryMargin before they lapse, and token
// requests are made with base.
func newTokenSource(ctx context.Context, cfg GraphProviderConfig, tokenURL string, base *http.Client) oauth2.TokenSource {
	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{graphScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	return oauth2.ReuseTokenSourceWithExpiry(nil, creds.TokenSource(ctx), expiryMargin)
}

// authorizedClient wraps base so every request carries a bearer token from
// src. base's timeout is kept.
func authorizedClient(src oauth2.TokenSource, base *http.Client) *http.Client {
	return &http.Client{
		Timeout:   base.Timeout,
		Transport: &oauth2.Transport{Source: src, Base: base.Transport},
	}
}
