// Package sysutil holds process-level helpers used by cmd/server: logger
// bootstrap and build metadata.
package sysutil

import (
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ParseLevel maps a level name to a zerolog level. Unknown names and the
// empty string fall back to info. Matching is case-insensitive.
func ParseLevel(lvl string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetupLogging configures the global zerolog logger and level. Pretty
// output uses a console writer meant for local development; otherwise one
// JSON object per line is written to w (os.Stdout when nil).
func SetupLogging(level string, pretty bool, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	zerolog.SetGlobalLevel(ParseLevel(level))
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond

	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Str("service", "notifications").Logger()
	return log.Logger
}

// FirstNonEmpty returns the first value that is not blank, unmodified, or ""
// when every value is blank.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// Version reports the module version the binary was built from, then the
// VCS revision, then "dev".
func Version() string {
	bi, ok := readBuildInfo()
	if !ok {
		return "dev"
	}
	var rev string
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			rev = s.Value
			if len(rev) > 12 {
				rev = rev[:12]
			}
		}
	}
	v := bi.Main.Version
	if v == "(devel)" {
		v = ""
	}
	return FirstNonEmpty(v, rev, "dev")
}
