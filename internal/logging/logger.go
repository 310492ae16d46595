// Package logging provides structured logging for the CLI and for the
// machine-readable mode used when another process drives this one.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/45Drives/studio-share-sub000/internal/scrub"
)

// Mode selects the log output format.
type Mode string

const (
	ModeConsole Mode = "console" // colored, human readable
	ModeJSON    Mode = "json"    // one object per line
)

const consoleTime = "15:04:05"

// Logger is a zerolog logger whose output always passes through a
// scrubber. Children share the scrubber and the context fields of their
// parent.
type Logger struct {
	zlog     zerolog.Logger
	mode     Mode
	scrubber *scrub.Scrubber
	fields   []string // key, value pairs re-applied when the output changes
}

// NewLogger creates a logger writing to w, or stderr when w is nil. A nil
// scrubber still masks the generic secret patterns.
func NewLogger(mode Mode, w io.Writer, scrubber *scrub.Scrubber) *Logger {
	l := &Logger{mode: mode, scrubber: scrubber}
	l.SetOutput(w)
	return l
}

// NewDefaultCLILogger is a console logger on stderr.
func NewDefaultCLILogger(scrubber *scrub.Scrubber) *Logger {
	return NewLogger(ModeConsole, os.Stderr, scrubber)
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop(), mode: ModeJSON}
}

func (l *Logger) Debug() *zerolog.Event { return l.zlog.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zlog.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zlog.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zlog.Error() }

// Infof logs a formatted info message.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.zlog.Info().Msgf(format, args...)
}

// Child returns a logger that adds key=value to every entry.
func (l *Logger) Child(key, value string) *Logger {
	c := &Logger{
		mode:     l.mode,
		scrubber: l.scrubber,
		fields:   append(append([]string(nil), l.fields...), key, value),
	}
	c.zlog = l.zlog.With().Str(key, value).Logger()
	return c
}

// SetOutput redirects l, for example to print above progress bars. Loggers
// derived from l earlier keep their old output.
func (l *Logger) SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	out := l.scrubber.Writer(w)
	if l.mode != ModeJSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: consoleTime}
	}
	ctx := zerolog.New(out).With().Timestamp()
	for i := 0; i+1 < len(l.fields); i += 2 {
		ctx = ctx.Str(l.fields[i], l.fields[i+1])
	}
	l.zlog = ctx.Logger()
}

// Scrubber returns the scrubber the logger was built with.
func (l *Logger) Scrubber() *scrub.Scrubber { return l.scrubber }

// SetGlobalLevel sets the minimum level for every logger.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// ParseLevel maps a level name to a zerolog level. Empty or unknown names
// give info.
func ParseLevel(s string) zerolog.Level {
	if s == "" {
		return zerolog.InfoLevel
	}
	if lvl, err := zerolog.ParseLevel(s); err == nil {
		return lvl
	}
	return zerolog.InfoLevel
}

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: consoleTime})
}
