// Package logging constructs the zerolog.Logger threaded explicitly
// through the dial manager, dispatcher, and session packages. Unlike
// lorawan_server's cmd/*/main.go (which sets the package-global
// log.Logger once at startup), a core here takes its logger as a
// constructor argument so more than one can run in the same process —
// e.g. a client under test — without fighting over global state.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Options configures New. A zero Options gives info-level, console
// output to stderr with unix timestamps.
type Options struct {
	Level  string    // parsed with zerolog.ParseLevel; empty means info
	Writer io.Writer // defaults to a zerolog.ConsoleWriter over os.Stderr
	Pretty bool      // force a human ConsoleWriter even over a non-tty Writer
}

// New builds a logger for one device id, with that id attached as a
// structured field on every event it writes.
func New(deviceID string, opts Options) zerolog.Logger {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		if parsed, err := zerolog.ParseLevel(opts.Level); err == nil {
			level = parsed
		}
	}

	var out io.Writer
	switch {
	case opts.Writer != nil && !opts.Pretty:
		out = opts.Writer
	case opts.Writer != nil:
		out = zerolog.ConsoleWriter{Out: opts.Writer, TimeFormat: "15:04:05"}
	default:
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("device_id", deviceID).
		Logger()
}
