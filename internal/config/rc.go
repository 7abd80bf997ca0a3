package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/shineum/simplemail/internal/address"
)

// RCFileName is the per-user rc file created in the home directory.
const RCFileName = ".simplemailrc"

// Errors reported by the rc store.
var (
	ErrConfigIO         = errors.New("config file error")
	ErrConfigValidation = errors.New("error parsing config file")
)

// RC key names.
const (
	keyName     = "NAME"
	keyUsername = "USERNAME"
	keyPassword = "PASSWORD"
	keyMail     = "MAIL"
	keySMTP     = "SMTP"
)

// RC holds the identity and credentials persisted in the rc file.
type RC struct {
	Name     string
	Username string
	Password string
	// Mail is the sender address, normalized to angle-bracket form on read.
	Mail string
	// SMTP is the server endpoint, "host:port".
	SMTP string
}

// Path returns the rc file location under the directory named by HOME.
func Path(getenv func(string) string) (string, error) {
	home := getenv("HOME")
	if home == "" {
		return "", fmt.Errorf("%w: HOME is not set", ErrConfigIO)
	}
	return filepath.Join(home, RCFileName), nil
}

// LoadOrCreate parses the rc file at path, first running the interactive
// creation flow if the file is missing or forceReload is set.
func LoadOrCreate(path string, forceReload bool, p *Prompter) (*RC, error) {
	_, err := os.Stat(path)
	missing := errors.Is(err, fs.ErrNotExist)

	if forceReload || missing {
		slog.Debug("creating config file", "path", path, "reload", forceReload)
		if err := Create(path, p); err != nil {
			return nil, err
		}
	}

	return Parse(path)
}

// Parse reads the rc file at path. Lines whose first non-space character
// is '#' are comments. Other lines are split on the first '='; spaces
// around the key and value are dropped while interior spacing is kept.
// Unknown keys and lines without '=' are ignored. A '#' inside a value is
// kept deliberately, unlike rc readers that cut every line at '#', so
// passwords may contain it.
func Parse(path string) (*RC, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigIO, err)
	}
	defer f.Close()

	rc, err := parse(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigIO, path, err)
	}

	if missing := rc.missing(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s\nTry 'simplemail -r' for reloading the config file",
			ErrConfigValidation, strings.Join(missing, ", "))
	}
	return rc, nil
}

func parse(r io.Reader) (*RC, error) {
	rc := &RC{}
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")

		trimmed := strings.TrimLeft(line, " ")
		if strings.HasPrefix(trimmed, "#") {
			continue
		}

		key, value, ok := strings.Cut(trimmed, "=")
		if !ok {
			continue
		}
		key = strings.Trim(key, " ")
		value = strings.Trim(value, " ")

		switch key {
		case keyName:
			rc.Name = value
		case keyUsername:
			rc.Username = value
		case keyPassword:
			rc.Password = value
		case keyMail:
			rc.Mail = address.Normalize(value)
		case keySMTP:
			rc.SMTP = value
		default:
			slog.Debug("ignoring unknown config key", "key", key)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rc, nil
}

// missing lists the keys whose values are empty.
func (rc *RC) missing() []string {
	var keys []string
	if rc.Name == "" {
		keys = append(keys, keyName)
	}
	if rc.Username == "" {
		keys = append(keys, keyUsername)
	}
	if rc.Password == "" {
		keys = append(keys, keyPassword)
	}
	if rc.Mail == "" || rc.Mail == "<>" {
		keys = append(keys, keyMail)
	}
	if rc.SMTP == "" {
		keys = append(keys, keySMTP)
	}
	return keys
}

// Write serializes rc to path with owner-only permissions.
func Write(path string, rc *RC) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigIO, err)
	}

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "%s=%s\n", keyName, rc.Name)
	fmt.Fprintf(w, "%s=%s\n", keyUsername, rc.Username)
	fmt.Fprintf(w, "%s=%s\n", keyPassword, rc.Password)
	fmt.Fprintf(w, "%s=%s\n", keyMail, rc.Mail)
	fmt.Fprintf(w, "%s=%s\n", keySMTP, rc.SMTP)

	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("%w: %w", ErrConfigIO, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigIO, err)
	}
	return nil
}

// Create prompts for each rc field and writes the result to path. The SMTP
// entry is stored as "host:port".
func Create(path string, p *Prompter) error {
	p.printf("***** No config file detected, creating one *****\n")

	rc := &RC{}
	var host, port string
	for _, q := range []struct {
		label  string
		dst    *string
		secret bool
	}{
		{"name", &rc.Name, false},
		{"username", &rc.Username, false},
		{"password", &rc.Password, true},
		{"mail", &rc.Mail, false},
		{"smtp server", &host, false},
		{"port", &port, false},
	} {
		v, err := p.ask(fmt.Sprintf("Please enter your %s: ", q.label), q.secret)
		if err != nil {
			return fmt.Errorf("%w: reading %s: %w", ErrConfigIO, q.label, err)
		}
		*q.dst = v
	}
	rc.SMTP = host + ":" + port

	if err := Write(path, rc); err != nil {
		return err
	}

	p.printf("The config file has been successfully created, feel free to edit it at %s\n", path)
	return nil
}

// Prompter reads answers to the interactive rc questions.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer

	// readSecret reads a line without echo. Nil means secrets are read
	// like any other line.
	readSecret func() (string, error)
}

// NewPrompter creates a Prompter reading from in and writing prompts to
// out. When in is a terminal, secrets are read without echo.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	p := &Prompter{in: bufio.NewReader(in), out: out}

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		p.readSecret = func() (string, error) {
			b, err := term.ReadPassword(fd)
			fmt.Fprintln(out)
			return string(b), err
		}
	}
	return p
}

func (p *Prompter) printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

func (p *Prompter) ask(prompt string, secret bool) (string, error) {
	p.printf("%s", prompt)

	if secret && p.readSecret != nil {
		return p.readSecret()
	}

	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
