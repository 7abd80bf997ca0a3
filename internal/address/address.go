// Package address normalizes email addresses into the angle-bracket form
// used for SMTP envelope fields.
package address

import (
	"log/slog"
	"strings"
)

// Normalize wraps addr in angle brackets unless it is already enclosed.
// It is idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(addr string) string {
	if IsBracketed(addr) {
		return addr
	}

	normalized := "<" + addr + ">"
	slog.Debug("CONVERTING", "from", addr, "to", normalized)
	return normalized
}

// IsBracketed reports whether addr starts with '<' and ends with '>'.
func IsBracketed(addr string) bool {
	return len(addr) >= 2 && strings.HasPrefix(addr, "<") && strings.HasSuffix(addr, ">")
}

// Bare strips one pair of enclosing angle brackets, for APIs that expect a
// plain addr-spec.
func Bare(addr string) string {
	if IsBracketed(addr) {
		return addr[1 : len(addr)-1]
	}
	return addr
}
