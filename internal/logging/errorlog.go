package logging

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// ErrorLogFile is the name of the error log inside the log directory.
const ErrorLogFile = "error.log"

// ErrorLog is the process-wide append-only error log.
type ErrorLog struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	logger *slog.Logger
}

// OpenErrorLog ensures dir exists and opens dir/error.log for appending.
func OpenErrorLog(dir string) (*ErrorLog, error) {
	if dir == "" {
		return nil, fmt.Errorf("logging: log directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: failed to create log directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, ErrorLogFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: failed to open error log: %w", err)
	}

	el := &ErrorLog{path: path, file: f}
	el.logger = slog.New(slog.NewTextHandler(el, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	return el, nil
}

// Write serializes writes from concurrent loggers and drops them after Close.
func (e *ErrorLog) Write(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.file == nil {
		return len(p), nil
	}
	return e.file.Write(p)
}

// Logger returns the slog logger bound to the error log (ERROR level only).
func (e *ErrorLog) Logger() *slog.Logger {
	return e.logger
}

// Path returns the error log file path.
func (e *ErrorLog) Path() string {
	return e.path
}

// Close flushes and closes the file. Idempotent.
func (e *ErrorLog) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.file == nil {
		return nil
	}
	err := e.file.Close()
	e.file = nil
	return err
}

// CountEntries returns the number of lines in the error log at path.
func CountEntries(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if len(sc.Bytes()) > 0 {
			n++
		}
	}
	return n, sc.Err()
}
