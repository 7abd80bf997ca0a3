package smtptest

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"
)

var (
	errBadEncoding = errors.New("malformed base64 credential")
	errBadPlain    = errors.New("AUTH PLAIN payload must be authzid NUL user NUL password")
	errRejected    = errors.New("credentials rejected")
)

// Authenticator checks SASL PLAIN and LOGIN responses against one
// username and password. A zero Authenticator accepts nothing and
// reports itself disabled.
type Authenticator struct {
	username string
	password string
}

func NewAuthenticator(username, password string) *Authenticator {
	return &Authenticator{username: username, password: password}
}

// Enabled reports whether the server demands AUTH before MAIL.
func (a *Authenticator) Enabled() bool {
	return a.username != "" && a.password != ""
}

// VerifyPlain checks an AUTH PLAIN initial response and returns the
// authentication identity. The authorization identity is ignored.
func (a *Authenticator) VerifyPlain(encoded string) (string, error) {
	raw, err := decode(encoded)
	if err != nil {
		return "", err
	}
	fields := strings.Split(raw, "\x00")
	if len(fields) != 3 {
		return "", errBadPlain
	}
	return a.check(fields[1], fields[2])
}

// VerifyLogin checks the two base64 answers of an AUTH LOGIN exchange.
func (a *Authenticator) VerifyLogin(encodedUser, encodedPass string) (string, error) {
	user, err := decode(encodedUser)
	if err != nil {
		return "", err
	}
	pass, err := decode(encodedPass)
	if err != nil {
		return "", err
	}
	return a.check(user, pass)
}

func (a *Authenticator) check(user, pass string) (string, error) {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(a.username))
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(a.password))
	if userOK&passOK != 1 || !a.Enabled() {
		return "", errRejected
	}
	return user, nil
}

func decode(s string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", errBadEncoding
	}
	return string(b), nil
}
