package log

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger so callers can hold a value type.
type Logger struct {
	zerolog.Logger
}

// New builds the process root logger. Unknown levels fall back to info.
func New(level string, pretty bool) Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var out = os.Stdout
	logger := zerolog.New(out)
	if pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}

	return Logger{logger.Level(lvl).With().Timestamp().Logger()}
}

// Nop returns a logger that discards everything. Useful in tests.
func Nop() Logger {
	return Logger{zerolog.Nop()}
}
