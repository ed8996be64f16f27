// Package logging provides structured logging for the daemon: console
// output for foreground runs plus a rolling file in the OS temp directory
// that the control plane serves back to the UI via GET /api/logs.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls logger construction.
type Config struct {
	// LogFile is the rolling log path (empty = DefaultLogPath)
	LogFile string

	// Console enables human-readable console output on stdout
	Console bool

	// Level is the minimum level ("debug", "info", "warn", "error")
	Level string
}

// DefaultLogPath returns the rolling log location in the OS temp dir.
func DefaultLogPath() string {
	return filepath.Join(os.TempDir(), "transfer-manager.log")
}

// New creates the daemon logger. The file writer rotates at 20 MiB and
// keeps 2 backups, matching what the UI expects to find when it tails logs.
func New(cfg Config) zerolog.Logger {
	path := cfg.LogFile
	if path == "" {
		path = DefaultLogPath()
	}

	writers := []io.Writer{
		&lumberjack.Logger{
			Filename:   path,
			MaxSize:    20, // MB
			MaxBackups: 2,
		},
	}
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		})
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// Tail returns up to maxBytes from the end of the log file. A missing
// file is not an error; the daemon may simply not have logged yet.
func Tail(path string, maxBytes int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	offset := int64(0)
	if info.Size() > maxBytes {
		offset = info.Size() - maxBytes
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return "", err
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
