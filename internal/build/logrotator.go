package build

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
)

const (
	// DefaultMaxLogFiles is how many rotated files are kept before the
	// oldest is dropped.
	DefaultMaxLogFiles = 10

	// DefaultMaxLogFileSize is the rotation threshold in megabytes.
	DefaultMaxLogFileSize = 20

	// DefaultLogFilename is the file name used when the config leaves
	// Filename empty.
	DefaultLogFilename = "shousaid.log"
)

// LogRotatorConfig configures the on-disk log file rotation.
type LogRotatorConfig struct {
	// LogDir is the directory log files are written into.
	LogDir string

	// MaxLogFiles caps the number of rotated files kept on disk. Zero
	// disables rotation entirely.
	MaxLogFiles int

	// MaxLogFileSize is the size in megabytes at which the active file
	// rotates.
	MaxLogFileSize int

	// Filename names the active log file. Empty means
	// DefaultLogFilename.
	Filename string
}

// DefaultLogRotatorConfig returns a config with the default limits. The
// caller still needs to fill in LogDir.
func DefaultLogRotatorConfig() *LogRotatorConfig {
	return &LogRotatorConfig{
		MaxLogFiles:    DefaultMaxLogFiles,
		MaxLogFileSize: DefaultMaxLogFileSize,
		Filename:       DefaultLogFilename,
	}
}

// RotatingLogWriter is an io.Writer that feeds a background log rotator.
// Rotated files are gzip compressed. Writes before InitLogRotator are
// discarded.
type RotatingLogWriter struct {
	feed *io.PipeWriter
	rot  *rotator.Rotator
}

// NewRotatingLogWriter returns an uninitialized writer. Call
// InitLogRotator before handing it to a log handler.
func NewRotatingLogWriter() *RotatingLogWriter {
	return &RotatingLogWriter{}
}

// InitLogRotator creates the log directory, opens the rotator, and
// starts the goroutine that drains writes into it.
func (w *RotatingLogWriter) InitLogRotator(cfg *LogRotatorConfig) error {
	name := cfg.Filename
	if name == "" {
		name = DefaultLogFilename
	}
	logFile := filepath.Join(cfg.LogDir, name)

	if err := os.MkdirAll(filepath.Dir(logFile), 0o700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	// The rotator takes its threshold in KB while the config speaks MB.
	rot, err := rotator.New(
		logFile, int64(cfg.MaxLogFileSize*1024), false, cfg.MaxLogFiles,
	)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}
	rot.SetCompressor(gzip.NewWriter(nil), ".gz")

	// The rotator is itself the log sink, so its own failures can only
	// go to stderr.
	pr, pw := io.Pipe()
	go func() {
		if err := rot.Run(pr); err != nil {
			fmt.Fprintf(
				os.Stderr, "failed to run file rotator: %v\n",
				err,
			)
		}
	}()

	w.rot = rot
	w.feed = pw

	return nil
}

// Write implements io.Writer.
func (w *RotatingLogWriter) Write(b []byte) (int, error) {
	if w.feed == nil {
		return len(b), nil
	}

	return w.feed.Write(b)
}

// Close stops the rotator goroutine and flushes any buffered output.
func (w *RotatingLogWriter) Close() error {
	if w.feed != nil {
		return w.feed.Close()
	}

	return nil
}
