// Package audit keeps the append-only ledger of pipeline invocations.
//
// DESIGN: One Entry per call, never mutated after it is written.
//   - entry.go:  Entry, ID generation
//   - store.go:  Store interface and the JSONL file backend
//   - sqlite.go: SQLite backend (WAL mode)
//   - ledger.go: single-writer queue in front of any Store
//   - usage.go:  aggregate usage report
//
// The ledger grows without bound. Rotation and retention are not implemented.
package audit

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Entry summarizes one pipeline invocation.
type Entry struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	InputMessages    int       `json:"inputMessages"`
	OutputClusters   int       `json:"outputClusters"`
	CompressionRatio float64   `json:"compressionRatio"`
	TotalTokens      int       `json:"totalTokens"`
	ElapsedMs        int64     `json:"elapsedMs"`
}

// IDPrefix marks ledger entry IDs.
const IDPrefix = "ctx-"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a time-sortable entry ID such as ctx-01J9Z3....
func NewID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return IDPrefix + ulid.MustNew(ulid.Now(), entropy).String()
}
