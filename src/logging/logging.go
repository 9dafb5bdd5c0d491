// Package logging builds the structured logger used by the server and the
// bootstrap sequencer.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/stoq/stoqserver/src/config"
	"github.com/stoq/stoqserver/src/mode"
)

// Defaults for rotation when the config leaves them at zero
const (
	defaultMaxSize  = 10 // MB
	defaultMaxFiles = 5
	maxAgeDays      = 30
)

// ParseLevel maps debug, info, warn and error to a slog level.
// The empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger for cfg. With a log file it writes JSON records to a
// rotating file; otherwise it writes text records to stderr. The returned
// closer releases the file. Debug mode lowers the level to debug whatever
// cfg says.
func New(cfg config.LoggingConfig, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if mode.IsDebug() {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.File == "" {
		if stderr == nil {
			stderr = os.Stderr
		}
		return slog.New(slog.NewTextHandler(stderr, opts)), nopCloser{}, nil
	}

	logPath := cfg.File
	if strings.HasPrefix(logPath, "~") {
		home, _ := os.UserHomeDir()
		logPath = filepath.Join(home, logPath[1:])
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}

	maxSize := cfg.MaxSize
	if maxSize == 0 {
		maxSize = defaultMaxSize
	}
	maxFiles := cfg.MaxFiles
	if maxFiles == 0 {
		maxFiles = defaultMaxFiles
	}

	rotatingWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    maxSize,
		MaxBackups: maxFiles,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
	return slog.New(slog.NewJSONHandler(rotatingWriter, opts)), rotatingWriter, nil
}

// NewRunID returns a sortable identifier for one bootstrap run
func NewRunID() string {
	return ulid.Make().String()
}

// Discard returns a logger that drops every record
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
