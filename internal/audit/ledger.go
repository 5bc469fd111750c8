package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrLedgerClosed is returned by Usage after Close.
var ErrLedgerClosed = errors.New("audit ledger closed")

// DefaultQueueSize bounds pending writes.
const DefaultQueueSize = 256

// writeTimeout bounds a single store append.
const writeTimeout = 5 * time.Second

// Ledger serializes all writes to a Store through one goroutine.
// Record never blocks the caller: when the queue is full the entry is
// dropped and reported through the error hook.
type Ledger struct {
	store   Store
	queue   chan Entry
	onError func(error)
	onWrite func(Entry)

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithErrorHook is called (from the writer goroutine or Record) on every
// failed or dropped write.
func WithErrorHook(fn func(error)) LedgerOption {
	return func(l *Ledger) { l.onError = fn }
}

// WithWriteHook is called from the writer goroutine after each entry lands.
func WithWriteHook(fn func(Entry)) LedgerOption {
	return func(l *Ledger) { l.onWrite = fn }
}

// ErrQueueFull reports an entry dropped because the writer fell behind.
var ErrQueueFull = errors.New("audit queue full")

// NewLedger starts the writer goroutine.
func NewLedger(store Store, queueSize int, opts ...LedgerOption) *Ledger {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	l := &Ledger{
		store: store,
		queue: make(chan Entry, queueSize),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.wg.Add(1)
	go l.run()
	return l
}

// Record queues e for writing. Best-effort.
func (l *Ledger) Record(e Entry) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- e:
	default:
		l.fail(ErrQueueFull, e.ID)
	}
}

func (l *Ledger) run() {
	defer l.wg.Done()
	for e := range l.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := l.store.Append(ctx, e)
		cancel()
		if err != nil {
			l.fail(err, e.ID)
			continue
		}
		if l.onWrite != nil {
			l.onWrite(e)
		}
	}
}

func (l *Ledger) fail(err error, id string) {
	log.Warn().Err(err).Str("entry_id", id).Msg("audit: write failed")
	if l.onError != nil {
		l.onError(err)
	}
}

// Entries reads the ledger through the underlying store.
func (l *Ledger) Entries(ctx context.Context) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrLedgerClosed
	}
	return l.store.Entries(ctx)
}

// Usage summarizes the ledger. Any read failure yields a zeroed report.
func (l *Ledger) Usage(ctx context.Context, recent int) Usage {
	entries, err := l.Entries(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("audit: usage unavailable")
		return Summarize(nil, recent)
	}
	return Summarize(entries, recent)
}

// Close drains pending writes and closes the store.
func (l *Ledger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	l.wg.Wait()
	return l.store.Close()
}
