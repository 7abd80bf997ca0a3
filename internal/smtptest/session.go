package smtptest

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

const (
	idleTimeout    = 10 * time.Second
	maxMessageSize = 10 << 20
)

// envelope is the in-progress mail transaction.
type envelope struct {
	open bool
	from string
	to   []string
}

type session struct {
	srv  *Server
	conn net.Conn
	tp   *textproto.Conn

	greeted bool
	secure  bool
	user    string
	env     envelope
}

type verbHandler func(s *session, arg string) (quit bool)

var verbs = map[string]verbHandler{
	"EHLO":     (*session).hello,
	"HELO":     (*session).helo,
	"STARTTLS": (*session).startTLS,
	"AUTH":     (*session).auth,
	"MAIL":     (*session).mail,
	"RCPT":     (*session).rcpt,
	"DATA":     (*session).data,
	"RSET": func(s *session, _ string) bool {
		s.env = envelope{}
		s.reply(250, "OK")
		return false
	},
	"NOOP": func(s *session, _ string) bool {
		s.reply(250, "OK")
		return false
	},
	"QUIT": func(s *session, _ string) bool {
		s.reply(221, "Bye")
		return true
	},
}

func newSession(conn net.Conn, srv *Server) *session {
	_, secure := conn.(*tls.Conn)
	s := &session{srv: srv, secure: secure}
	s.attach(conn)
	return s
}

func (s *session) attach(conn net.Conn) {
	s.conn = conn
	s.tp = textproto.NewConn(conn)
}

// handle serves commands until QUIT, a read failure, idle timeout or ctx
// cancellation.
func (s *session) handle(ctx context.Context) {
	raw := s.conn
	stop := context.AfterFunc(ctx, func() { raw.Close() })
	defer stop()
	defer func() { s.conn.Close() }()

	s.reply(220, s.srv.config.Hostname+" ESMTP smtptest")

	for {
		if err := s.conn.SetDeadline(time.Now().Add(idleTimeout)); err != nil {
			return
		}
		line, err := s.tp.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("smtptest read failed", "error", err)
			}
			return
		}
		if line == "" {
			continue
		}

		verb, arg, _ := strings.Cut(line, " ")
		h, ok := verbs[strings.ToUpper(verb)]
		if !ok {
			s.reply(500, "Unrecognized command")
			continue
		}
		if h(s, arg) {
			return
		}
	}
}

func (s *session) reply(code int, text string) {
	_ = s.tp.PrintfLine("%d %s", code, text)
}

func (s *session) replyMulti(code int, lines ...string) {
	for i, l := range lines {
		sep := "-"
		if i == len(lines)-1 {
			sep = " "
		}
		_ = s.tp.PrintfLine("%d%s%s", code, sep, l)
	}
}

func (s *session) hello(arg string) bool {
	if arg == "" {
		s.reply(501, "Syntax: EHLO hostname")
		return false
	}
	s.greeted = true
	s.env = envelope{}

	ext := []string{s.srv.config.Hostname + " Hello " + arg}
	if s.srv.tlsConfig != nil && !s.secure {
		ext = append(ext, "STARTTLS")
	}
	if s.srv.auth.Enabled() {
		ext = append(ext, "AUTH PLAIN LOGIN")
	}
	ext = append(ext, "SIZE "+strconv.Itoa(maxMessageSize), "OK")
	s.replyMulti(250, ext...)
	return false
}

func (s *session) helo(arg string) bool {
	if arg == "" {
		s.reply(501, "Syntax: HELO hostname")
		return false
	}
	s.greeted = true
	s.env = envelope{}
	s.reply(250, s.srv.config.Hostname+" Hello "+arg)
	return false
}

func (s *session) startTLS(string) bool {
	if s.srv.tlsConfig == nil || s.secure {
		s.reply(454, "TLS not available")
		return false
	}
	s.reply(220, "Ready to start TLS")

	conn := tls.Server(s.conn, s.srv.tlsConfig)
	if err := conn.Handshake(); err != nil {
		slog.Debug("smtptest handshake failed", "error", err)
		return true
	}
	s.attach(conn)
	s.secure = true
	s.greeted = false
	s.env = envelope{}
	return false
}

func (s *session) auth(arg string) bool {
	switch {
	case !s.greeted:
		s.reply(503, "Send EHLO/HELO first")
		return false
	case !s.srv.auth.Enabled():
		s.reply(503, "AUTH not available")
		return false
	case s.user != "":
		s.reply(503, "Already authenticated")
		return false
	}

	mech, initial, _ := strings.Cut(arg, " ")
	var (
		user string
		err  error
	)
	switch strings.ToUpper(mech) {
	case "PLAIN":
		if initial == "" {
			if initial, err = s.challenge(""); err != nil {
				return true
			}
		}
		user, err = s.srv.auth.VerifyPlain(initial)
	case "LOGIN":
		var name, pass string
		if name, err = s.challenge("VXNlcm5hbWU6"); err != nil {
			return true
		}
		if pass, err = s.challenge("UGFzc3dvcmQ6"); err != nil {
			return true
		}
		user, err = s.srv.auth.VerifyLogin(name, pass)
	default:
		s.reply(504, "Unrecognized authentication type")
		return false
	}

	if err != nil {
		s.reply(535, "Authentication failed")
		return false
	}
	s.user = user
	s.reply(235, "Authentication successful")
	return false
}

// challenge sends a 334 prompt and returns the client's answer.
func (s *session) challenge(prompt string) (string, error) {
	s.reply(334, prompt)
	return s.tp.ReadLine()
}

func (s *session) mail(arg string) bool {
	switch {
	case !s.greeted:
		s.reply(503, "Send EHLO/HELO first")
	case s.srv.auth.Enabled() && s.user == "":
		s.reply(530, "Authentication required")
	case !hasPrefixFold(arg, "FROM:"):
		s.reply(501, "Syntax: MAIL FROM:<address>")
	default:
		s.env = envelope{open: true, from: extractAddress(arg[len("FROM:"):])}
		s.reply(250, "OK")
	}
	return false
}

func (s *session) rcpt(arg string) bool {
	if !s.env.open {
		s.reply(503, "Send MAIL FROM first")
		return false
	}
	var addr string
	if hasPrefixFold(arg, "TO:") {
		addr = extractAddress(arg[len("TO:"):])
	}
	if addr == "" {
		s.reply(501, "Syntax: RCPT TO:<address>")
		return false
	}
	s.env.to = append(s.env.to, addr)
	s.reply(250, "OK")
	return false
}

func (s *session) data(string) bool {
	if len(s.env.to) == 0 {
		s.reply(503, "Send RCPT TO first")
		return false
	}
	s.reply(354, "Start mail input; end with <CRLF>.<CRLF>")

	body, err := s.readBody()
	if err != nil {
		slog.Debug("smtptest DATA aborted", "error", err)
		return true
	}

	s.srv.record(Transaction{
		AuthUser: s.user,
		TLS:      s.secure,
		MailFrom: s.env.from,
		RcptTo:   s.env.to,
		Data:     body,
	})
	s.env = envelope{}
	s.reply(250, "OK message accepted")
	return false
}

// readBody reads dot-terminated message content, undoing dot-stuffing
// and keeping CRLF line endings.
func (s *session) readBody() ([]byte, error) {
	var b strings.Builder
	for {
		line, err := s.tp.ReadLine()
		if err != nil {
			return nil, err
		}
		if line == "." {
			return []byte(b.String()), nil
		}
		line = strings.TrimPrefix(line, ".")
		b.WriteString(line)
		b.WriteString("\r\n")
	}
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// extractAddress returns the mailbox from a MAIL/RCPT parameter. It
// accepts angle-bracket and bare forms and ignores trailing ESMTP
// parameters.
func extractAddress(s string) string {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "<"); ok {
		addr, _, found := strings.Cut(rest, ">")
		if !found {
			return ""
		}
		return addr
	}
	addr, _, _ := strings.Cut(s, " ")
	return addr
}
