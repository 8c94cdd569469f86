package telemetry

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
)

// InitSlog sets the default logger to a colored console handler on stderr. If logFile is not
// empty, records are also written to it as JSON. The returned function closes the log file.
func InitSlog(verbose bool, logFile string) (func() error, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	console := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	})
	if logFile == "" {
		slog.SetDefault(slog.New(console))
		return func() error { return nil }, nil
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		slog.SetDefault(slog.New(console))
		return func() error { return nil }, err
	}
	slog.SetDefault(NewFanoutLogger(console, file, level))
	return file.Close, nil
}

// NewFanoutLogger writes to `console` and to `w` as JSON.
func NewFanoutLogger(console slog.Handler, w io.Writer, level slog.Level) *slog.Logger {
	jsonHandler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(console, jsonHandler))
}
