// Package ses implements a Provider that sends mail via AWS SES v2.
package ses

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/shineum/simplemail/internal/address"
	"github.com/shineum/simplemail/internal/email"
	"github.com/shineum/simplemail/internal/header"
	"github.com/shineum/simplemail/internal/message"
	"github.com/shineum/simplemail/internal/provider"
)

// SESProviderConfig holds the configuration for creating a SESProvider.
type SESProviderConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// SESProvider sends mail via the AWS SES v2 API. The message is always
// submitted raw, exactly as composed for the SMTP provider.
type SESProvider struct {
	client SendEmailAPI
	now    func() time.Time
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// New creates a new SESProvider with the given configuration. Static
// credentials are used when both keys are set; otherwise the default AWS
// credential chain applies.
func New(ctx context.Context, cfg SESProviderConfig) (*SESProvider, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewWithClient(sesv2.NewFromConfig(awsCfg)), nil
}

// NewWithClient creates a SESProvider with a custom client, used for testing.
func NewWithClient(client SendEmailAPI) *SESProvider {
	return &SESProvider{
		client: client,
		now:    time.Now,
	}
}

// Send submits m as a single SendEmail call.
func (s *SESProvider) Send(ctx context.Context, m *email.Mail) error {
	input, err := s.buildInput(m)
	if err != nil {
		return provider.Fail(s.Name(), err)
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return provider.Fail(s.Name(), fmt.Errorf("SES API request failed: %w", err))
	}

	slog.Debug("SES ACCEPTED", "message_id", aws.ToString(out.MessageId))
	return nil
}

// Name returns the provider name.
func (s *SESProvider) Name() string {
	return "ses"
}

// buildInput creates the SendEmailInput carrying the raw MIME message.
// Destinations list every envelope recipient, so Bcc is delivered without
// appearing in the message headers.
func (s *SESProvider) buildInput(m *email.Mail) (*sesv2.SendEmailInput, error) {
	msg, err := message.Compose(m, header.Build(m, s.now()))
	if err != nil {
		return nil, err
	}
	raw, err := message.Raw(msg)
	if err != nil {
		return nil, err
	}

	dest := &types.Destination{
		ToAddresses: []string{address.Bare(m.To)},
	}
	if m.Cc != "" {
		dest.CcAddresses = []string{address.Bare(m.Cc)}
	}
	if m.Bcc != "" {
		dest.BccAddresses = []string{address.Bare(m.Bcc)}
	}

	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(address.Bare(m.From)),
		Destination:      dest,
		Content: &types.EmailContent{
			Raw: &types.RawMessage{
				Data: raw,
			},
		},
	}, nil
}
