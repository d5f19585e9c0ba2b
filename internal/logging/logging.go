// Package logging builds the component loggers used across chatsync.
//
// Every component logs through a standard *log.Logger with a bracketed
// prefix such as "[sync] ". When a log file is configured, output is also
// written to a size-rotated file.
package logging

import (
	"io"
	"log"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions configures the rotating log file.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	mu     sync.Mutex
	output io.Writer = os.Stderr
	file   *lumberjack.Logger
)

// Setup directs all loggers created afterwards to stderr and, when
// opts.Path is set, to a rotating file. Verbose=false discards stderr output
// below the file.
func Setup(opts FileOptions, verbose bool) {
	mu.Lock()
	defer mu.Unlock()

	var console io.Writer = os.Stderr
	if !verbose {
		console = io.Discard
	}

	if opts.Path == "" {
		output = console
		return
	}

	file = &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}
	output = io.MultiWriter(console, file)
}

// Writer returns the current log destination.
func Writer() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return output
}

// New returns a logger for component, prefixed "[component] ".
func New(component string) *log.Logger {
	return log.New(Writer(), "["+component+"] ", log.LstdFlags)
}

// Close flushes and closes the log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	output = os.Stderr
	return err
}
