// Package cli implements the simplemail command: it parses the command
// line, loads or creates the rc file, builds the mail record and hands it
// to the configured provider.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"dario.cat/mergo"

	"github.com/shineum/simplemail/internal/address"
	"github.com/shineum/simplemail/internal/config"
	"github.com/shineum/simplemail/internal/email"
)

// Env is the process environment a run operates in.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string

	// NewProvider overrides provider selection. Defaults to the provider
	// named in the delivery settings.
	NewProvider ProviderFactory
}

// OSEnv returns the Env of the current process.
func OSEnv() Env {
	return Env{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Getenv: os.Getenv,
	}
}

func (e Env) withDefaults() Env {
	if e.Stdin == nil {
		e.Stdin = os.Stdin
	}
	if e.Stdout == nil {
		e.Stdout = io.Discard
	}
	if e.Stderr == nil {
		e.Stderr = io.Discard
	}
	if e.Getenv == nil {
		e.Getenv = os.Getenv
	}
	if e.NewProvider == nil {
		e.NewProvider = selectProvider
	}
	return e
}

// Run executes one invocation with args, which exclude the program name,
// and returns the process exit status.
func Run(ctx context.Context, args []string, env Env) int {
	env = env.withDefaults()

	opts, set, err := parseFlags(args)
	if err != nil {
		fmt.Fprintf(env.Stderr, "%s: %v\n", programName, err)
		printUsage(env.Stderr, set)
		return 1
	}
	if opts.help {
		printHelp(env.Stdout, set)
		return 0
	}

	prev := slog.Default()
	defer slog.SetDefault(prev)

	if err := run(ctx, opts, env); err != nil {
		fmt.Fprintf(env.Stderr, "%s: %v\n", programName, err)
		var usageErr *UsageError
		if errors.As(err, &usageErr) {
			printUsage(env.Stderr, set)
		}
		return 1
	}
	return 0
}

func run(ctx context.Context, opts *options, env Env) error {
	if opts.verbose {
		slog.SetDefault(newLogger(env.Stdout, "debug"))
	} else {
		slog.SetDefault(newLogger(env.Stderr, "warn"))
	}

	rcPath, err := config.Path(env.Getenv)
	if err != nil {
		return err
	}
	rc, err := config.LoadOrCreate(rcPath, opts.reload, config.NewPrompter(env.Stdin, env.Stdout))
	if err != nil {
		return err
	}

	delivery, err := config.LoadDelivery(config.DeliveryPath(env.Getenv), env.Getenv)
	if err != nil {
		return err
	}
	if !opts.verbose {
		slog.SetDefault(newLogger(env.Stderr, delivery.Logging.Level))
	}

	if len(opts.args) != 3 {
		return &UsageError{Msg: fmt.Sprintf("expected %s, got %d arguments", parameters, len(opts.args))}
	}

	m, err := buildRecord(opts, rc)
	if err != nil {
		return err
	}

	p, err := env.NewProvider(ctx, delivery, env.Stdout, opts.verbose)
	if err != nil {
		return err
	}

	slog.Debug("SENDING MAIL", "provider", p.Name(), "to", m.To)
	if err := p.Send(ctx, m); err != nil {
		return err
	}

	fmt.Fprintf(env.Stdout, "Mail sent to %s\n", m.To)
	return nil
}

// buildRecord merges the command line over the rc identity and validates
// the result.
func buildRecord(opts *options, rc *config.RC) (*email.Mail, error) {
	m := &email.Mail{
		To:         address.Normalize(opts.args[0]),
		Subject:    opts.args[1],
		Body:       opts.args[2],
		Attachment: opts.attachment,
	}
	if opts.cc != "" {
		m.Cc = address.Normalize(opts.cc)
	}
	if opts.bcc != "" {
		m.Bcc = address.Normalize(opts.bcc)
	}

	identity := email.Mail{
		Name:     rc.Name,
		Username: rc.Username,
		Password: rc.Password,
		SMTP:     rc.SMTP,
		From:     rc.Mail,
	}
	if err := mergo.Merge(m, identity); err != nil {
		return nil, fmt.Errorf("failed to build mail record: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
