// Package logging builds the component loggers used across the engine.
// Every component logs through a stdlib logger with a bracketed prefix
// ("[sync] ", "[gaps] ", ...); an optional rotating file sink mirrors
// everything written to stderr.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the shared sink.
type Options struct {
	// File enables the rotating file sink when non-empty.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewSink returns the shared log writer: stderr, mirrored into a size and
// age bounded rotating file when one is configured.
func NewSink(opts Options) io.Writer {
	if opts.File == "" {
		return os.Stderr
	}
	rotating := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}
	return io.MultiWriter(os.Stderr, rotating)
}

// New returns a component logger writing to sink with a bracketed prefix.
func New(component string, sink io.Writer) *log.Logger {
	if sink == nil {
		sink = os.Stderr
	}
	return log.New(sink, "["+component+"] ", log.LstdFlags)
}
