package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"bizassist/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is silent until InitLogger runs
var Logger = zerolog.Nop()

var (
	mu      sync.Mutex
	logFile *os.File
)

// InitLogger configures the process logger from cfg. Every entry carries the
// service name; a file output stays open until Close.
func InitLogger(cfg config.LogConfig) error {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return fmt.Errorf("invalid log level '%s': %w", cfg.Level, err)
	}
	output, file, err := openOutput(cfg)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	closeFile()
	logFile = file

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = timeFieldFormat(cfg.TimeFormat)
	if strings.EqualFold(cfg.Format, "console") {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.Kitchen}
	}

	Logger = zerolog.New(output).With().
		Timestamp().
		Str("service", "bizassist").
		Caller().
		Logger()
	log.Logger = Logger

	Logger.Debug().
		Str("level", level.String()).
		Str("format", cfg.Format).
		Str("output", cfg.Output).
		Msg("Logger ready")
	return nil
}

// Close releases the log file, if any. Later entries are dropped.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	Logger = zerolog.Nop()
	return closeFile()
}

func closeFile() error {
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

func openOutput(cfg config.LogConfig) (io.Writer, *os.File, error) {
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		return os.Stderr, nil, nil
	case "file":
		if cfg.FilePath == "" {
			return nil, nil, fmt.Errorf("log output is file but no file path is set")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file '%s': %w", cfg.FilePath, err)
		}
		return f, f, nil
	}
	return os.Stdout, nil, nil
}

func timeFieldFormat(name string) string {
	switch strings.ToLower(name) {
	case "unix":
		return zerolog.TimeFormatUnix
	case "iso8601":
		return "2006-01-02T15:04:05.000Z07:00"
	}
	return time.RFC3339
}

// ForTurn returns a logger whose entries carry the business and conversation of a turn
func ForTurn(businessID, conversationID string) zerolog.Logger {
	return Logger.With().
		Str("business_id", businessID).
		Str("conversation_id", conversationID).
		Logger()
}

func Info() *zerolog.Event {
	return Logger.Info()
}

func Debug() *zerolog.Event {
	return Logger.Debug()
}

func Warn() *zerolog.Event {
	return Logger.Warn()
}

func Error() *zerolog.Event {
	return Logger.Error()
}
