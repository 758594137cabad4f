// Package logging builds the component loggers used across taskhub.
//
// Every component gets a stdlib *log.Logger with a bracketed prefix
// ("[scheduler] ", "[httpapi] "). Output goes to stderr and, when a log file
// is configured, to a size-rotated file as well.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nhle/taskhub/internal/model"
)

// Output is the shared sink for all component loggers.
type Output struct {
	w    io.Writer
	file *lumberjack.Logger
}

// New opens the log sink described by cfg. With no file configured the sink
// is stderr alone.
func New(cfg model.LoggingConfig) (*Output, error) {
	if cfg.File == "" {
		return &Output{w: os.Stderr}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, err
	}

	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	return &Output{
		w:    io.MultiWriter(os.Stderr, file),
		file: file,
	}, nil
}

// Discard returns a sink that drops everything. Used by tests and quiet
// one-shot commands.
func Discard() *Output {
	return &Output{w: io.Discard}
}

// Writer returns the underlying writer, for libraries that take one
// (gin's logger middleware).
func (o *Output) Writer() io.Writer {
	return o.w
}

// Logger returns a logger whose lines start with "[component] ".
func (o *Output) Logger(component string) *log.Logger {
	return log.New(o.w, "["+component+"] ", log.LstdFlags)
}

// Rotate forces the log file to roll over. No-op without a file.
func (o *Output) Rotate() error {
	if o.file == nil {
		return nil
	}
	return o.file.Rotate()
}

// Close flushes and closes the log file, if any.
func (o *Output) Close() error {
	if o.file == nil {
		return nil
	}
	return o.file.Close()
}
