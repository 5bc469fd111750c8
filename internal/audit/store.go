package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Backend names accepted by Open.
const (
	BackendJSONL  = "jsonl"
	BackendSQLite = "sqlite"
)

// Store is a durable append-only record store. Implementations are safe for
// concurrent use: the Ledger is the server's only writer, but a Store can be
// appended to directly without one.
type Store interface {
	// Append durably writes one entry.
	Append(ctx context.Context, e Entry) error

	// Entries returns every entry in write order.
	Entries(ctx context.Context) ([]Entry, error)

	// Close releases resources.
	Close() error
}

// Open creates the store for backend at path.
func Open(ctx context.Context, backend, path string) (Store, error) {
	switch backend {
	case BackendJSONL, "":
		return NewJSONLStore(path)
	case BackendSQLite:
		return OpenSQLite(ctx, path)
	default:
		return nil, fmt.Errorf("unknown audit backend %q", backend)
	}
}

// =============================================================================
// JSONL BACKEND
// =============================================================================

// maxLineSize bounds a single ledger line when reading.
const maxLineSize = 1 << 20

// JSONLStore appends one JSON object per line to a file.
type JSONLStore struct {
	path string
	mu   sync.Mutex // one writer at a time keeps lines whole
}

// NewJSONLStore prepares path's directory. The file is created on first write.
func NewJSONLStore(path string) (*JSONLStore, error) {
	if path == "" {
		return nil, fmt.Errorf("audit path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	return &JSONLStore{path: path}, nil
}

// Path returns the ledger file path.
func (s *JSONLStore) Path() string { return s.path }

// Append implements Store.
func (s *JSONLStore) Append(_ context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

// Entries implements Store. Malformed lines are skipped.
func (s *JSONLStore) Entries(_ context.Context) ([]Entry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries := make([]Entry, 0)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit ledger: %w", err)
	}
	return entries, nil
}

// Close implements Store.
func (s *JSONLStore) Close() error { return nil }

var _ Store = (*JSONLStore)(nil)
