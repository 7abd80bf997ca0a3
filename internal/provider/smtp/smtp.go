// Package smtp implements a Provider that submits mail to an SMTP server
// over an authenticated, encrypted connection.
package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
	maillog "github.com/wneessen/go-mail/log"

	"github.com/shineum/simplemail/internal/email"
	"github.com/shineum/simplemail/internal/header"
	"github.com/shineum/simplemail/internal/message"
	"github.com/shineum/simplemail/internal/provider"
	smtptls "github.com/shineum/simplemail/internal/tls"
)

const (
	// submissionPort is used when the endpoint names no port.
	submissionPort = 587

	// implicitTLSPort is the SMTPS port where TLS starts before the greeting.
	implicitTLSPort = 465
)

// Options tunes the SMTP provider.
type Options struct {
	// Auth is the SMTP AUTH mechanism: plain (default), login or cram-md5.
	Auth string

	// CAFile and SkipVerify control server certificate verification.
	CAFile     string
	SkipVerify bool

	// TLSConfig, when set, replaces the configuration derived from CAFile
	// and SkipVerify.
	TLSConfig *tls.Config

	// Trace, when set, receives the SMTP protocol exchange.
	Trace io.Writer

	// Now dates the message header. Defaults to time.Now.
	Now func() time.Time
}

// Endpoint is a parsed SMTP server address.
type Endpoint struct {
	Host string
	Port int
	// ImplicitTLS selects SMTPS; otherwise STARTTLS is mandatory.
	ImplicitTLS bool
}

// Provider sends mail through the SMTP server named in the mail record,
// authenticating with the record's credentials.
type Provider struct {
	opts Options
}

// New creates an SMTP Provider.
func New(opts Options) *Provider {
	if opts.Auth == "" {
		opts.Auth = "plain"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Provider{opts: opts}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "smtp"
}

// Send opens one connection to m.SMTP, authenticates, declares the sender
// and each recipient in order, transmits the message and closes the
// connection.
func (p *Provider) Send(ctx context.Context, m *email.Mail) error {
	ep, err := ParseEndpoint(m.SMTP)
	if err != nil {
		return provider.Fail(p.Name(), err)
	}

	msg, err := message.Compose(m, header.Build(m, p.opts.Now()))
	if err != nil {
		return provider.Fail(p.Name(), err)
	}

	client, err := p.newClient(ep, m.Username, m.Password)
	if err != nil {
		return provider.Fail(p.Name(), err)
	}

	slog.Debug("SENDING MAIL",
		"host", ep.Host,
		"port", ep.Port,
		"implicit_tls", ep.ImplicitTLS,
		"recipients", len(m.Recipients()),
	)

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return provider.Fail(p.Name(), err)
	}
	return nil
}

func (p *Provider) newClient(ep Endpoint, username, password string) (*mail.Client, error) {
	authType, err := authType(p.opts.Auth)
	if err != nil {
		return nil, err
	}

	tlsConfig := p.opts.TLSConfig
	if tlsConfig == nil {
		tlsConfig, err = smtptls.ClientConfig(ep.Host, p.opts.CAFile, p.opts.SkipVerify)
		if err != nil {
			return nil, err
		}
	}

	opts := []mail.Option{
		mail.WithPort(ep.Port),
		mail.WithTLSConfig(tlsConfig),
		mail.WithSMTPAuth(authType),
		mail.WithUsername(username),
		mail.WithPassword(password),
	}
	if ep.ImplicitTLS {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	if p.opts.Trace != nil {
		opts = append(opts,
			mail.WithDebugLog(),
			mail.WithLogger(maillog.New(p.opts.Trace, maillog.LevelDebug)),
		)
	}

	client, err := mail.NewClient(ep.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}
	return client, nil
}

func authType(name string) (mail.SMTPAuthType, error) {
	switch strings.ToLower(name) {
	case "plain":
		return mail.SMTPAuthPlain, nil
	case "login":
		return mail.SMTPAuthLogin, nil
	case "cram-md5":
		return mail.SMTPAuthCramMD5, nil
	default:
		return "", fmt.Errorf("unsupported SMTP AUTH mechanism %q", name)
	}
}

// ParseEndpoint parses an SMTP server address of the form host:port,
// optionally prefixed by smtp:// or smtps://. smtps:// and port 465 select
// implicit TLS.
func ParseEndpoint(raw string) (Endpoint, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Endpoint{}, fmt.Errorf("empty SMTP endpoint")
	}

	scheme := ""
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return Endpoint{}, fmt.Errorf("invalid SMTP endpoint %q: %w", raw, err)
		}
		scheme = strings.ToLower(u.Scheme)
		if scheme != "smtp" && scheme != "smtps" {
			return Endpoint{}, fmt.Errorf("unsupported SMTP endpoint scheme %q", u.Scheme)
		}
		s = u.Host
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		// No port given
		host = s
		portStr = ""
	}
	if host == "" {
		return Endpoint{}, fmt.Errorf("invalid SMTP endpoint %q: missing host", raw)
	}

	ep := Endpoint{Host: host, ImplicitTLS: scheme == "smtps"}

	switch {
	case portStr != "":
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return Endpoint{}, fmt.Errorf("invalid SMTP port %q", portStr)
		}
		ep.Port = port
	case ep.ImplicitTLS:
		ep.Port = implicitTLSPort
	default:
		ep.Port = submissionPort
	}

	if ep.Port == implicitTLSPort {
		ep.ImplicitTLS = true
	}
	return ep, nil
}
