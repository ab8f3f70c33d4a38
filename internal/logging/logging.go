// Package logging builds the component loggers used across habitsync.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures logger construction.
type Options struct {
	// File receives rotated logs; empty disables file logging.
	File string

	// Quiet suppresses stderr output (file-only, for daemons).
	Quiet bool
}

// Factory hands out per-component loggers sharing one output.
type Factory struct {
	writer io.Writer
}

// NewFactory creates a factory writing to stderr and, when configured,
// a size-rotated log file.
func NewFactory(opts Options) (*Factory, error) {
	writers := []io.Writer{}
	if !opts.Quiet {
		writers = append(writers, os.Stderr)
	}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = io.MultiWriter(writers...)
	}

	return &Factory{writer: writer}, nil
}

// Component returns a logger with a "[name] " prefix on the shared output.
func (f *Factory) Component(name string) *log.Logger {
	return log.New(f.writer, "["+name+"] ", log.LstdFlags)
}
