// Package logger builds the structured logger shared by the commands.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
)

// Config holds logger configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // human-readable console output

	// File, when set, receives the log as well as stderr. It is rotated at
	// MaxSizeMB and keeps MaxBackups old files.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// New creates a logger writing to stderr and, if configured, to a rotated
// log file.
func New(cfg Config) zerolog.Logger {
	var w io.Writer = os.Stderr
	if cfg.File != "" {
		w = io.MultiWriter(os.Stderr, fileWriter(cfg))
	}
	return NewWithWriter(cfg, w)
}

func fileWriter(cfg Config) *lumberjack.Logger {
	size := cfg.MaxSizeMB
	if size <= 0 {
		size = 50
	}
	backups := cfg.MaxBackups
	if backups <= 0 {
		backups = 5
	}
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    size,
		MaxBackups: backups,
		Compress:   true,
	}
}

// NewWithWriter creates a logger writing to w. Unknown levels fall back to
// info.
func NewWithWriter(cfg Config, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()
}
