package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/shineum/simplemail/internal/config"
	"github.com/shineum/simplemail/internal/provider"
	"github.com/shineum/simplemail/internal/provider/graph"
	"github.com/shineum/simplemail/internal/provider/ses"
	"github.com/shineum/simplemail/internal/provider/smtp"
	"github.com/shineum/simplemail/internal/provider/stdout"
)

// ProviderFactory builds the transport for one run. out is where the
// stdout provider prints and where the SMTP trace goes when verbose.
type ProviderFactory func(ctx context.Context, d *config.Delivery, out io.Writer, verbose bool) (provider.Provider, error)

// selectProvider chooses the delivery backend named by d.Provider.
func selectProvider(ctx context.Context, d *config.Delivery, out io.Writer, verbose bool) (provider.Provider, error) {
	switch d.Provider {
	case config.ProviderSES:
		slog.Debug("using AWS SES provider", "region", d.SES.Region)
		p, err := ses.New(ctx, ses.SESProviderConfig{
			Region:          d.SES.Region,
			AccessKeyID:     d.SES.AccessKeyID,
			SecretAccessKey: d.SES.SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SES provider: %w", err)
		}
		return p, nil

	case config.ProviderGraph:
		slog.Debug("using Microsoft Graph provider", "tenant", d.Graph.TenantID)
		return graph.New(ctx, graph.GraphProviderConfig{
			TenantID:     d.Graph.TenantID,
			ClientID:     d.Graph.ClientID,
			ClientSecret: d.Graph.ClientSecret,
		}), nil

	case config.ProviderStdout:
		slog.Debug("using stdout provider")
		return stdout.New(out), nil

	case config.ProviderSMTP, "":
		slog.Debug("using SMTP provider", "auth", d.SMTP.Auth, "skip_verify", d.TLS.SkipVerify)
		opts := smtp.Options{
			Auth:       d.SMTP.Auth,
			CAFile:     d.TLS.CAFile,
			SkipVerify: d.TLS.SkipVerify,
		}
		if verbose {
			opts.Trace = out
		}
		return smtp.New(opts), nil

	default:
		return nil, fmt.Errorf("unknown provider %q", d.Provider)
	}
}
