package smtptest

import (
	"crypto/tls"
	"net/textproto"
	"strings"
	"testing"
)

// dial connects a textproto client and consumes the greeting.
func dial(t *testing.T, s *Server) *textproto.Conn {
	t.Helper()
	c, err := textproto.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	expect(t, c, 220)
	return c
}

func expect(t *testing.T, c *textproto.Conn, code int) string {
	t.Helper()
	_, msg, err := c.ReadResponse(code)
	if err != nil {
		t.Fatalf("expected %d: %v", code, err)
	}
	return msg
}

func cmd(t *testing.T, c *textproto.Conn, code int, format string, args ...any) string {
	t.Helper()
	if err := c.PrintfLine(format, args...); err != nil {
		t.Fatalf("write: %v", err)
	}
	return expect(t, c, code)
}

func TestServer_RecordsTransaction(t *testing.T) {
	t.Parallel()

	s, err := Start(Config{DisableTLS: true})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Close()

	c := dial(t, s)
	ehlo := cmd(t, c, 250, "EHLO client.example.com")
	if strings.Contains(ehlo, "STARTTLS") {
		t.Errorf("STARTTLS advertised with TLS disabled: %q", ehlo)
	}
	if strings.Contains(ehlo, "AUTH") {
		t.Errorf("AUTH advertised without credentials: %q", ehlo)
	}

	cmd(t, c, 250, "MAIL FROM:<alice@example.com> SIZE=42")
	cmd(t, c, 250, "RCPT TO:<bob@example.com>")
	cmd(t, c, 250, "RCPT TO:<carol@example.com>")
	cmd(t, c, 354, "DATA")

	w := c.DotWriter()
	w.Write([]byte("Subject: hi\r\n\r\n.leading dot\r\nbody\r\n"))
	w.Close()
	expect(t, c, 250)
	cmd(t, c, 221, "QUIT")

	txs := s.Transactions()
	if len(txs) != 1 {
		t.Fatalf("transactions: got %d, want 1", len(txs))
	}
	tx := txs[0]
	if tx.MailFrom != "alice@example.com" {
		t.Errorf("MailFrom: got %q", tx.MailFrom)
	}
	if len(tx.RcptTo) != 2 || tx.RcptTo[0] != "bob@example.com" || tx.RcptTo[1] != "carol@example.com" {
		t.Errorf("RcptTo: got %v", tx.RcptTo)
	}
	if tx.TLS {
		t.Error("TLS: got true, want false")
	}
	if got := string(tx.Data); got != "Subject: hi\r\n\r\n.leading dot\r\nbody\r\n" {
		t.Errorf("Data: got %q", got)
	}
}

func TestServer_RequiresAuthentication(t *testing.T) {
	t.Parallel()

	s, err := Start(Config{DisableTLS: true, AuthUsername: "u", AuthPassword: "p"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Close()

	c := dial(t, s)
	ehlo := cmd(t, c, 250, "EHLO client")
	if !strings.Contains(ehlo, "AUTH PLAIN LOGIN") {
		t.Errorf("AUTH not advertised: %q", ehlo)
	}

	cmd(t, c, 530, "MAIL FROM:<a@example.com>")
	cmd(t, c, 535, "AUTH PLAIN %s", b64("\x00u\x00wrong"))
	cmd(t, c, 235, "AUTH PLAIN %s", b64("\x00u\x00p"))
	cmd(t, c, 250, "MAIL FROM:<a@example.com>")
}

func TestServer_AuthLogin(t *testing.T) {
	t.Parallel()

	s, err := Start(Config{DisableTLS: true, AuthUsername: "u", AuthPassword: "p"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Close()

	c := dial(t, s)
	cmd(t, c, 250, "EHLO client")
	cmd(t, c, 334, "AUTH LOGIN")
	cmd(t, c, 334, "%s", b64("u"))
	cmd(t, c, 235, "%s", b64("p"))
}

func TestServer_CommandOrdering(t *testing.T) {
	t.Parallel()

	s, err := Start(Config{DisableTLS: true})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Close()

	c := dial(t, s)
	cmd(t, c, 503, "MAIL FROM:<a@example.com>")
	cmd(t, c, 501, "EHLO")
	cmd(t, c, 250, "HELO client")
	cmd(t, c, 503, "RCPT TO:<b@example.com>")
	cmd(t, c, 503, "DATA")
	cmd(t, c, 500, "BOGUS")
	cmd(t, c, 250, "NOOP")
	cmd(t, c, 250, "RSET")
}

func TestServer_STARTTLS(t *testing.T) {
	t.Parallel()

	s, err := Start(Config{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Close()

	c := dial(t, s)
	ehlo := cmd(t, c, 250, "EHLO client")
	if !strings.Contains(ehlo, "STARTTLS") {
		t.Fatalf("STARTTLS not advertised: %q", ehlo)
	}
	if err := c.PrintfLine("STARTTLS"); err != nil {
		t.Fatalf("write: %v", err)
	}
	expect(t, c, 220)
	c.Close()
}

func TestServer_ClientTLSConfig(t *testing.T) {
	t.Parallel()

	s, err := Start(Config{ImplicitTLS: true})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Close()

	conn, err := tls.Dial("tcp", s.Addr(), s.ClientTLSConfig())
	if err != nil {
		t.Fatalf("tls dial: %v", err)
	}
	c := textproto.NewConn(conn)
	defer c.Close()

	expect(t, c, 220)
	ehlo := cmd(t, c, 250, "EHLO client")
	if strings.Contains(ehlo, "STARTTLS") {
		t.Errorf("STARTTLS advertised on implicit TLS connection: %q", ehlo)
	}
	cmd(t, c, 221, "QUIT")
}

func TestExtractAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"<a@example.com>", "a@example.com"},
		{" <a@example.com> BODY=8BITMIME", "a@example.com"},
		{"a@example.com", "a@example.com"},
		{"a@example.com SIZE=10", "a@example.com"},
		{"<unterminated", ""},
		{"<>", ""},
	}
	for _, tt := range tests {
		if got := extractAddress(tt.in); got != tt.want {
			t.Errorf("extractAddress(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}
