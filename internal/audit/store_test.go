package audit_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/semantic-context/internal/audit"
)

func entry(id string, ratio float64, tokens int) audit.Entry {
	return audit.Entry{
		ID:               id,
		Timestamp:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		InputMessages:    4,
		OutputClusters:   2,
		CompressionRatio: ratio,
		TotalTokens:      tokens,
		ElapsedMs:        3,
	}
}

func assertSameEntries(t *testing.T, want, got []audit.Entry) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Timestamp.Equal(got[i].Timestamp), "timestamp %d", i)
		w, g := want[i], got[i]
		w.Timestamp, g.Timestamp = time.Time{}, time.Time{}
		assert.Equal(t, w, g)
	}
}

func TestJSONLStore_Roundtrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "audit.jsonl")
	store, err := audit.NewJSONLStore(path)
	require.NoError(t, err)

	want := []audit.Entry{entry("ctx-1", 0.5, 100), entry("ctx-2", 0.25, 50)}
	for _, e := range want {
		require.NoError(t, store.Append(ctx, e))
	}

	got, err := store.Entries(ctx)
	require.NoError(t, err)
	assertSameEntries(t, want, got)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"compressionRatio":0.5`)
	assert.Contains(t, string(raw), `"inputMessages":4`)
}

func TestJSONLStore_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	store, err := audit.NewJSONLStore(filepath.Join(t.TempDir(), "audit.jsonl"))
	require.NoError(t, err)

	const writers, perWriter = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				assert.NoError(t, store.Append(ctx, entry(fmt.Sprintf("ctx-%d-%d", w, i), 0.5, 100)))
			}
		}(w)
	}
	wg.Wait()

	got, err := store.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, got, writers*perWriter, "no line lost or torn")

	seen := make(map[string]bool, len(got))
	for _, e := range got {
		assert.Equal(t, 100, e.TotalTokens)
		seen[e.ID] = true
	}
	assert.Len(t, seen, writers*perWriter)
}

func TestJSONLStore_SkipsMalformedLines(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	store, err := audit.NewJSONLStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Append(ctx, entry("ctx-1", 0.5, 100)))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, store.Append(ctx, entry("ctx-2", 0.25, 50)))

	got, err := store.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ctx-1", got[0].ID)
	assert.Equal(t, "ctx-2", got[1].ID)
}

func TestJSONLStore_MissingFile(t *testing.T) {
	store, err := audit.NewJSONLStore(filepath.Join(t.TempDir(), "never-written.jsonl"))
	require.NoError(t, err)

	_, err = store.Entries(context.Background())
	assert.Error(t, err)
}

func TestJSONLStore_RequiresPath(t *testing.T) {
	_, err := audit.NewJSONLStore("")
	assert.Error(t, err)
}

func TestSQLiteStore_Roundtrip(t *testing.T) {
	ctx := context.Background()
	store, err := audit.OpenSQLite(ctx, filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer store.Close()

	want := []audit.Entry{entry("ctx-b", 0.5, 100), entry("ctx-a", 0.25, 50), entry("ctx-c", 0, 0)}
	for _, e := range want {
		require.NoError(t, store.Append(ctx, e))
	}

	got, err := store.Entries(ctx)
	require.NoError(t, err)
	assertSameEntries(t, want, got)

	assert.Error(t, store.Append(ctx, entry("ctx-a", 1, 1)), "ids are unique")
}

func TestOpen_Backends(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	jsonl, err := audit.Open(ctx, audit.BackendJSONL, filepath.Join(dir, "a.jsonl"))
	require.NoError(t, err)
	assert.IsType(t, &audit.JSONLStore{}, jsonl)

	sqlite, err := audit.Open(ctx, audit.BackendSQLite, filepath.Join(dir, "a.db"))
	require.NoError(t, err)
	assert.IsType(t, &audit.SQLiteStore{}, sqlite)
	require.NoError(t, sqlite.Close())

	_, err = audit.Open(ctx, "postgres", filepath.Join(dir, "a"))
	assert.Error(t, err)
}

func TestNewID(t *testing.T) {
	seen := make(map[string]struct{})
	prev := ""
	for i := 0; i < 100; i++ {
		id := audit.NewID()
		assert.Regexp(t, `^ctx-[0-9A-HJKMNP-TV-Z]{26}$`, id)
		assert.Greater(t, id, prev, "ids sort by creation")
		_, dup := seen[id]
		assert.False(t, dup)
		seen[id] = struct{}{}
		prev = id
	}
}
