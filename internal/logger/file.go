package logger

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

const timestampLayout = "2006-01-02 15:04:05.000000"

var lineEscaper = strings.NewReplacer("\r", `\r`, "\n", `\n`)

// FileLogger implements Logger as an append-only audit file
type FileLogger struct {
	file   *os.File
	mutex  sync.Mutex
	closed bool
	now    func() time.Time
}

// NewFileLogger opens (or creates) logfile for appending
func NewFileLogger(logfile string) (*FileLogger, error) {
	file, err := os.OpenFile(logfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &FileLogger{
		file: file,
		now:  time.Now,
	}, nil
}

// Log writes a timestamped message to the file
func (fl *FileLogger) Log(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fl.mutex.Lock()
	defer fl.mutex.Unlock()

	if fl.closed {
		return fmt.Errorf("logger is closed")
	}

	// One entry per line; embedded line breaks would forge entries
	logLine := fmt.Sprintf("%s - %s\n", fl.now().Format(timestampLayout), lineEscaper.Replace(message))

	if _, err := fl.file.WriteString(logLine); err != nil {
		return fmt.Errorf("failed to write to log file: %w", err)
	}

	// Audit lines must survive a crash right after the write
	return fl.file.Sync()
}

// Close closes the log file
func (fl *FileLogger) Close() error {
	fl.mutex.Lock()
	defer fl.mutex.Unlock()

	if fl.closed {
		return nil
	}

	fl.closed = true
	return fl.file.Close()
}
