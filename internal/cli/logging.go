package cli

import (
	"io"
	"log/slog"

	"github.com/charmbracelet/log"
)

// newLogger returns a slog logger writing human-readable lines to w at
// the named level. Unknown levels fall back to warn.
func newLogger(w io.Writer, level string) *slog.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.WarnLevel
	}

	handler := log.NewWithOptions(w, log.Options{
		Level:  lvl,
		Prefix: programName,
	})
	return slog.New(handler)
}
