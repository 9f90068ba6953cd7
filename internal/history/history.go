// Package history keeps an append-only JSON lines log of finished runs so
// successive runs of the same workload can be compared.
package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/oklog/ulid/v2"

	"github.com/torosent/crankbench/internal/metrics"
)

// Record is one line of the history file.
type Record struct {
	ID          string           `json:"id"`
	Time        time.Time        `json:"time"`
	Strategy    string           `json:"strategy,omitempty"`
	Workers     int              `json:"workers"`
	Concurrency int              `json:"concurrency"`
	Result      metrics.Snapshot `json:"result"`
}

// NewRecord stamps result with a fresh sortable ID and the current time.
func NewRecord(result metrics.Snapshot, strategy string, workers, concurrency int) Record {
	return Record{
		ID:          ulid.Make().String(),
		Time:        time.Now().UTC(),
		Strategy:    strategy,
		Workers:     workers,
		Concurrency: concurrency,
		Result:      result,
	}
}

// Store appends to and reads a history file. Concurrent processes are
// serialized with an advisory lock on a sibling ".lock" file.
type Store struct {
	path string
	lock *flock.Flock
}

// Open prepares a store at path, creating its directory if needed.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("history: path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
	}
	return &Store{path: path, lock: flock.New(path + ".lock")}, nil
}

// Path returns the history file path.
func (s *Store) Path() string { return s.path }

// Append writes records at the end of the file under an exclusive lock.
func (s *Store) Append(records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("history: lock: %w", err)
	}
	defer s.lock.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			_ = f.Close()
			return fmt.Errorf("history: encode: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("history: %w", err)
	}
	return f.Close()
}

// Load returns every record in file order. A missing file is empty.
func (s *Store) Load() ([]Record, error) {
	if err := s.lock.RLock(); err != nil {
		return nil, fmt.Errorf("history: lock: %w", err)
	}
	defer s.lock.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("history: line %d: %w", line, err)
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return records, nil
}

// Latest returns the most recent record for the named workload.
func (s *Store) Latest(name string) (Record, bool, error) {
	records, err := s.Load()
	if err != nil {
		return Record{}, false, err
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Result.Name == name {
			return records[i], true, nil
		}
	}
	return Record{}, false, nil
}
