package smtptest

import (
	"encoding/base64"
	"testing"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestAuthenticator_Enabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		username string
		password string
		want     bool
	}{
		{name: "both set", username: "user", password: "pass", want: true},
		{name: "empty username", username: "", password: "pass", want: false},
		{name: "empty password", username: "user", password: "", want: false},
		{name: "both empty", username: "", password: "", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			auth := NewAuthenticator(tt.username, tt.password)
			if got := auth.Enabled(); got != tt.want {
				t.Errorf("Enabled(): got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthenticator_VerifyPlain(t *testing.T) {
	t.Parallel()

	auth := NewAuthenticator("testuser", "testpass")

	tests := []struct {
		name    string
		encoded string
		wantErr bool
	}{
		{name: "success", encoded: b64("\x00testuser\x00testpass")},
		{name: "with authzid", encoded: b64("admin\x00testuser\x00testpass")},
		{name: "wrong password", encoded: b64("\x00testuser\x00nope"), wantErr: true},
		{name: "wrong username", encoded: b64("\x00other\x00testpass"), wantErr: true},
		{name: "invalid base64", encoded: "!!!not-base64!!!", wantErr: true},
		{name: "invalid format", encoded: b64("testuser:testpass"), wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			user, err := auth.VerifyPlain(tt.encoded)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if user != "testuser" {
				t.Errorf("user: got %q, want %q", user, "testuser")
			}
		})
	}
}

func TestAuthenticator_VerifyLogin(t *testing.T) {
	t.Parallel()

	auth := NewAuthenticator("testuser", "testpass")

	if user, err := auth.VerifyLogin(b64("testuser"), b64("testpass")); err != nil || user != "testuser" {
		t.Errorf("VerifyLogin success: got (%q, %v)", user, err)
	}
	if _, err := auth.VerifyLogin(b64("testuser"), b64("wrong")); err == nil {
		t.Error("expected error for wrong password")
	}
	if _, err := auth.VerifyLogin("!!!", b64("testpass")); err == nil {
		t.Error("expected error for invalid base64 username")
	}
	if _, err := auth.VerifyLogin(b64("testuser"), "!!!"); err == nil {
		t.Error("expected error for invalid base64 password")
	}
}

func TestAuthenticator_DisabledRejectsEmptyCredentials(t *testing.T) {
	t.Parallel()

	auth := NewAuthenticator("", "")
	if _, err := auth.VerifyPlain(b64("\x00\x00")); err == nil {
		t.Error("expected empty PLAIN credentials to be rejected")
	}
	if _, err := auth.VerifyLogin(b64(""), b64("")); err == nil {
		t.Error("expected empty LOGIN credentials to be rejected")
	}
}
