package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Setup initializes the global zerolog logger.
//   - level: log level string (trace, debug, info, warn, error, fatal, panic)
//   - format: "json" for machine output, "pretty" for the console
//   - extra: additional sinks that always receive JSON lines (run log files)
//
// Output goes to stderr so CLI commands can keep stdout for their results.
func Setup(level, format string, extra ...io.Writer) zerolog.Logger {
	var console io.Writer = os.Stderr
	if format == "pretty" {
		console = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	writer := console
	if len(extra) > 0 {
		writer = zerolog.MultiLevelWriter(append([]io.Writer{console}, extra...)...)
	}

	return zerolog.New(writer).
		With().
		Timestamp().
		Caller().
		Logger()
}

// RunLogger opens dir/run.log for appending and returns a JSON logger
// writing to it. The caller closes the returned file when the run ends.
func RunLogger(dir string) (zerolog.Logger, *os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "run.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open run log: %w", err)
	}
	return zerolog.New(f).With().Timestamp().Logger(), f, nil
}
