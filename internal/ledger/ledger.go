// Package ledger implements the append-only CSV output for one harvest
// run.
package ledger

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// ExistsError reports a prior run's non-empty ledger at the target path.
// Starting over it would silently mix two runs' output.
type ExistsError struct {
	Path    string
	Records int
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("ledger %s already exists with %d records", e.Path, e.Records)
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithDedup enables a dedup-by-identifier pass: rows whose key column
// was already written are dropped. Off by default; bisection midpoints
// may then be double-counted, matching the historical output.
func WithDedup(keyIndex int) Option {
	return func(l *Ledger) {
		l.dedupKey = keyIndex
		l.seen = make(map[string]struct{})
	}
}

// Ledger appends one serialized record per call to a single CSV file.
// The header is written once at open; the file is never rewritten.
type Ledger struct {
	mu       sync.Mutex
	file     *os.File
	writer   *csv.Writer
	rows     int
	dedupKey int
	seen     map[string]struct{}
	logger   *zap.Logger
}

// Open creates the ledger file and writes its header. A pre-existing
// non-empty file yields an *ExistsError and stays untouched.
func Open(path string, header []string, logger *zap.Logger, opts ...Option) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create result dir: %w", err)
	}

	if records, err := countRecords(path); err != nil {
		return nil, err
	} else if records >= 0 {
		return nil, &ExistsError{Path: path, Records: records}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create ledger %s: %w", path, err)
	}

	l := &Ledger{
		file:   file,
		writer: csv.NewWriter(file),
		logger: logger,
	}
	for _, opt := range opts {
		opt(l)
	}

	if err := l.writer.Write(header); err != nil {
		file.Close()
		return nil, fmt.Errorf("write ledger header: %w", err)
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		file.Close()
		return nil, fmt.Errorf("flush ledger header: %w", err)
	}
	return l, nil
}

// countRecords returns the data-row count of an existing non-empty
// ledger, or -1 when the path is absent or blank.
func countRecords(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return -1, nil
		}
		return 0, fmt.Errorf("stat ledger %s: %w", path, err)
	}
	defer file.Close()

	lines := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) > 0 {
			lines++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan ledger %s: %w", path, err)
	}
	if lines == 0 {
		return -1, nil
	}
	// Header line is not a record.
	return lines - 1, nil
}

// Append writes one record and flushes it, so a crash never leaves a
// partial row behind the next append.
func (l *Ledger) Append(row []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.seen != nil {
		if l.dedupKey >= len(row) {
			return fmt.Errorf("dedup key index %d out of range for row of %d columns", l.dedupKey, len(row))
		}
		key := row[l.dedupKey]
		if _, dup := l.seen[key]; dup {
			l.logger.Debug("duplicate record skipped", zap.String("key", key))
			return nil
		}
		l.seen[key] = struct{}{}
	}

	if err := l.writer.Write(row); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		return fmt.Errorf("flush record: %w", err)
	}
	l.rows++
	return nil
}

// Rows returns the number of records appended by this process.
func (l *Ledger) Rows() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rows
}

// Close flushes and closes the underlying file.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		l.file.Close()
		return fmt.Errorf("flush ledger: %w", err)
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close ledger: %w", err)
	}
	return nil
}
