// Package journal keeps the append-only, human-readable record of every
// observation and deployment the monitor makes. Lines are mirrored to
// stdout so an operator tailing the process sees the same history that
// lands on disk.
package journal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const journalFile = "journal.log"

// Journal is safe for concurrent use. Write failures are swallowed after
// the journal has been opened, a full disk must not take down the loop.
type Journal struct {
	mu   sync.Mutex
	file *os.File
	out  io.Writer
	path string
}

// New opens the journal inside dataDir, creating both as needed.
func New(dataDir string) (*Journal, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	path := filepath.Join(dataDir, journalFile)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	return &Journal{file: file, out: os.Stdout, path: path}, nil
}

// Event appends one timestamped line.
func (j *Journal) Event(format string, args ...interface{}) {
	line := fmt.Sprintf("[%s] %s", time.Now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))

	j.mu.Lock()
	defer j.mu.Unlock()
	fmt.Fprintln(j.out, line)
	if j.file != nil {
		fmt.Fprintln(j.file, line)
	}
}

// Tail returns the last n journal lines, oldest first. A journal with no
// entries yields nil.
func (j *Journal) Tail(n int) ([]string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := os.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	trimmed := strings.TrimRight(string(data), "\n")
	if trimmed == "" {
		return nil, nil
	}
	lines := strings.Split(trimmed, "\n")
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Path is the journal file location.
func (j *Journal) Path() string {
	return j.path
}

// Close releases the file handle. Event still mirrors to stdout afterwards.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}
