// Package smtptest provides an in-process SMTP server that records every
// transaction it accepts, for end-to-end tests of SMTP clients.
package smtptest

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"sync"

	smtptls "github.com/shineum/simplemail/internal/tls"
)

// Config holds the configuration for a test server.
type Config struct {
	// Hostname is the server hostname used in EHLO responses.
	Hostname string

	// AuthUsername and AuthPassword configure SMTP AUTH.
	// If both are empty, authentication is not required.
	AuthUsername string
	AuthPassword string

	// ImplicitTLS wraps the listener in TLS (SMTPS). Otherwise STARTTLS is
	// advertised unless DisableTLS is set.
	ImplicitTLS bool
	DisableTLS  bool
}

// Transaction is one accepted message.
type Transaction struct {
	// AuthUser is the identity that authenticated, if any.
	AuthUser string
	// TLS reports whether the message was received over TLS.
	TLS      bool
	MailFrom string
	RcptTo   []string
	Data     []byte
}

// Server is an SMTP server bound to a loopback port.
type Server struct {
	config    Config
	auth      *Authenticator
	listener  net.Listener
	tlsConfig *tls.Config
	roots     *x509.CertPool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	transactions []Transaction
}

// Start creates a server listening on 127.0.0.1 on a random port and
// begins accepting connections.
func Start(cfg Config) (*Server, error) {
	if cfg.Hostname == "" {
		cfg.Hostname = "localhost"
	}

	s := &Server{
		config: cfg,
		auth:   NewAuthenticator(cfg.AuthUsername, cfg.AuthPassword),
	}

	if !cfg.DisableTLS || cfg.ImplicitTLS {
		tlsConfig, roots, err := smtptls.ServerConfig()
		if err != nil {
			return nil, err
		}
		s.tlsConfig = tlsConfig
		s.roots = roots
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	if cfg.ImplicitTLS {
		ln = tls.NewListener(ln, s.tlsConfig)
	}
	s.listener = ln

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.serve(ctx)

	return s, nil
}

func (s *Server) serve(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				slog.Debug("accept error", "error", err)
				return
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			session := newSession(conn, s)
			session.handle(ctx)
		}()
	}
}

// Close stops accepting connections and waits for in-flight sessions.
func (s *Server) Close() error {
	s.cancel()
	err := s.listener.Close()
	s.wg.Wait()
	return err
}

// host returns the listener IP address.
func (s *Server) host() string {
	return s.listener.Addr().(*net.TCPAddr).IP.String()
}

// Addr returns the listener address as host:port.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// ClientTLSConfig returns a client configuration trusting the server's
// self-signed certificate.
func (s *Server) ClientTLSConfig() *tls.Config {
	return &tls.Config{
		RootCAs:    s.roots,
		ServerName: s.host(),
		MinVersion: tls.VersionTLS12,
	}
}

// Transactions returns a copy of the transactions recorded so far.
func (s *Server) Transactions() []Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Transaction(nil), s.transactions...)
}

func (s *Server) record(tx Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = append(s.transactions, tx)
}
