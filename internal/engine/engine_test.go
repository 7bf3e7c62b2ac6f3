package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semsync/internal/chunker"
	"semsync/internal/embedder"
	"semsync/internal/fingerprint"
	"semsync/internal/scanner"
	"semsync/internal/vectorstore"
)

// memWriter is an in-memory index that counts calls and can be told to fail
// writes touching specific paths.
type memWriter struct {
	mu        sync.Mutex
	entries   map[string]vectorstore.Entry
	upserts   int
	deletes   int
	failPaths map[string]bool
}

func newMemWriter() *memWriter {
	return &memWriter{
		entries:   make(map[string]vectorstore.Entry),
		failPaths: make(map[string]bool),
	}
}

func (w *memWriter) Upsert(ctx context.Context, entries []vectorstore.Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range entries {
		if w.failPaths[e.Path] {
			return errors.New("injected write failure")
		}
	}
	w.upserts++
	for _, e := range entries {
		w.entries[e.ChunkID] = e
	}
	return nil
}

func (w *memWriter) Delete(ctx context.Context, chunkIDs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deletes++
	for _, id := range chunkIDs {
		delete(w.entries, id)
	}
	return nil
}

func (w *memWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

func (w *memWriter) pathsIndexed() map[string]int {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]int)
	for _, e := range w.entries {
		out[e.Path]++
	}
	return out
}

// countingEmbedder counts texts sent to the provider.
type countingEmbedder struct {
	mu    sync.Mutex
	texts int
	inner embedder.Embedder
}

func newCountingEmbedder() *countingEmbedder {
	local, _ := embedder.NewLocalProvider()
	return &countingEmbedder{inner: local}
}

func (m *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (m *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.texts += len(texts)
	m.mu.Unlock()
	return m.inner.EmbedBatch(ctx, texts)
}

func (m *countingEmbedder) Dimension() int { return m.inner.Dimension() }
func (m *countingEmbedder) Name() string   { return "counting" }
func (m *countingEmbedder) Close() error   { return nil }

func (m *countingEmbedder) textCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.texts
}

type fixture struct {
	root   string
	engine *Engine
	writer *memWriter
	emb    *countingEmbedder
	prints *fingerprint.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureMax(t, 0)
}

func newFixtureMax(t *testing.T, maxFileBytes int64) *fixture {
	t.Helper()
	root := t.TempDir()

	prints, err := fingerprint.Open(filepath.Join(t.TempDir(), "fingerprints.json"))
	require.NoError(t, err)

	rules := scanner.NewRules([]string{".go", ".py"}, nil, "", maxFileBytes)
	scn := scanner.New(root, rules, nil)
	writer := newMemWriter()
	emb := newCountingEmbedder()

	eng := New(scn, chunker.New(80, 60), emb, writer, prints, Options{
		Workers:     2,
		BatchSize:   64,
		LockTimeout: 100 * time.Millisecond,
	}, nil)

	return &fixture{root: root, engine: eng, writer: writer, emb: emb, prints: prints}
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	abs := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func (f *fixture) remove(t *testing.T, rel string) {
	t.Helper()
	require.NoError(t, os.Remove(filepath.Join(f.root, filepath.FromSlash(rel))))
}

func genLines(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	return b.String()
}

func TestSyncFullInitial(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.py", genLines(120))
	f.write(t, "b.go", genLines(10))

	stats, err := f.engine.Sync(context.Background(), Request{Full: true, Source: SourceManual})
	require.NoError(t, err)

	assert.Equal(t, StatusCommitted, stats.Status)
	assert.Equal(t, 2, stats.FilesAdded)
	// 120 lines -> 2 chunks, 10 lines -> 1 chunk.
	assert.Equal(t, 3, stats.ChunksUpserted)
	assert.Equal(t, 3, f.writer.count())
	assert.Equal(t, 2, f.prints.Len())
}

func TestSyncIdempotentSecondCycle(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.py", genLines(120))

	_, err := f.engine.Sync(context.Background(), Request{Full: true, Source: SourceManual})
	require.NoError(t, err)
	embedded := f.emb.textCount()
	upserts := f.writer.upserts

	stats, err := f.engine.Sync(context.Background(), Request{Full: true, Source: SourceTimer})
	require.NoError(t, err)

	assert.Equal(t, StatusCommitted, stats.Status)
	assert.Equal(t, 0, stats.FilesAdded+stats.FilesModified+stats.FilesRemoved)
	// Hash-equal files trigger no embedding and no index writes.
	assert.Equal(t, embedded, f.emb.textCount())
	assert.Equal(t, upserts, f.writer.upserts)
}

func TestSyncModifiedFileReplacesEntries(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.py", genLines(120))

	_, err := f.engine.Sync(context.Background(), Request{Full: true, Source: SourceManual})
	require.NoError(t, err)

	f.write(t, "a.py", genLines(121))
	stats, err := f.engine.Sync(context.Background(), Request{Full: true, Source: SourceWatcher})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FilesModified)
	// Same chunk IDs (same path, same starts), so entry count is stable.
	assert.Equal(t, 2, f.writer.count())
}

func TestSyncShrunkFileDeletesStaleChunks(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.py", genLines(200)) // chunks at 1, 61, 121

	_, err := f.engine.Sync(context.Background(), Request{Full: true, Source: SourceManual})
	require.NoError(t, err)
	assert.Equal(t, 3, f.writer.count())

	f.write(t, "a.py", genLines(80)) // single chunk at 1
	stats, err := f.engine.Sync(context.Background(), Request{Full: true, Source: SourceManual})
	require.NoError(t, err)

	assert.Equal(t, 1, f.writer.count())
	assert.Equal(t, 2, stats.ChunksDeleted)

	rec, ok := f.prints.Get("a.py")
	require.True(t, ok)
	assert.Len(t, rec.ChunkIDs, 1)
}

func TestSyncRemovedFile(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.py", genLines(120))
	f.write(t, "b.go", genLines(10))

	_, err := f.engine.Sync(context.Background(), Request{Full: true, Source: SourceManual})
	require.NoError(t, err)

	f.remove(t, "a.py")
	stats, err := f.engine.Sync(context.Background(), Request{Full: true, Source: SourceWatcher})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FilesRemoved)
	assert.Equal(t, 1, f.writer.count())
	_, ok := f.prints.Get("a.py")
	assert.False(t, ok)

	indexed := f.writer.pathsIndexed()
	assert.NotContains(t, indexed, "a.py")
	assert.Contains(t, indexed, "b.go")
}

func TestSyncExplicitPaths(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.py", genLines(10))
	f.write(t, "untouched.go", genLines(10))

	stats, err := f.engine.Sync(context.Background(), Request{
		Paths:  []string{"a.py"},
		Source: SourceHook,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FilesAdded)
	// Hook mode only considers the listed candidates.
	_, ok := f.prints.Get("untouched.go")
	assert.False(t, ok)
}

func TestSyncExplicitPathsOversizeDoesNotAbortCycle(t *testing.T) {
	f := newFixtureMax(t, 16)
	f.write(t, "big.py", strings.Repeat("x", 64)+"\n")
	f.write(t, "small.py", "ok\n")

	stats, err := f.engine.Sync(context.Background(), Request{
		Paths:  []string{"big.py", "small.py"},
		Source: SourceHook,
	})
	require.NoError(t, err)

	// The oversize file is recorded and skipped; the rest of the list still
	// commits.
	assert.Equal(t, StatusCommitted, stats.Status)
	assert.Equal(t, []string{"big.py"}, stats.Oversize)
	assert.Equal(t, 1, stats.FilesAdded)

	_, ok := f.prints.Get("small.py")
	assert.True(t, ok)
	_, ok = f.prints.Get("big.py")
	assert.False(t, ok)
}

func TestSyncFileGrownPastCeilingLeavesIndex(t *testing.T) {
	f := newFixtureMax(t, 256)
	f.write(t, "a.py", genLines(10))

	_, err := f.engine.Sync(context.Background(), Request{Full: true, Source: SourceManual})
	require.NoError(t, err)

	f.write(t, "a.py", genLines(200))
	stats, err := f.engine.Sync(context.Background(), Request{Full: true, Source: SourceTimer})
	require.NoError(t, err)

	assert.Equal(t, []string{"a.py"}, stats.Oversize)
	assert.Equal(t, 1, stats.FilesRemoved)
	assert.Equal(t, 0, f.writer.count())
	_, ok := f.prints.Get("a.py")
	assert.False(t, ok)
}

func TestSyncBlankFileCommitsZeroChunks(t *testing.T) {
	f := newFixture(t)
	f.write(t, "blank.py", "\n")
	f.write(t, "real.py", genLines(10))

	stats, err := f.engine.Sync(context.Background(), Request{Full: true, Source: SourceManual})
	require.NoError(t, err)

	assert.Equal(t, StatusCommitted, stats.Status)
	assert.Empty(t, stats.Failed)
	assert.Equal(t, 2, stats.FilesAdded)

	// Nothing to embed, but the fingerprint commits so the file is not
	// retried forever.
	rec, ok := f.prints.Get("blank.py")
	require.True(t, ok)
	assert.Empty(t, rec.ChunkIDs)

	embedded := f.emb.textCount()
	stats, err = f.engine.Sync(context.Background(), Request{Full: true, Source: SourceTimer})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FilesAdded+stats.FilesModified+stats.FilesRemoved)
	assert.Equal(t, embedded, f.emb.textCount())
}

func TestSyncPartialFailureKeepsOldFingerprint(t *testing.T) {
	f := newFixture(t)
	f.write(t, "bad.py", genLines(10))
	f.write(t, "good.go", genLines(10))
	f.writer.failPaths["bad.py"] = true

	stats, err := f.engine.Sync(context.Background(), Request{Full: true, Source: SourceManual})
	require.NoError(t, err)

	assert.Equal(t, StatusCommitted, stats.Status)
	assert.Equal(t, 1, stats.FilesAdded)
	require.Len(t, stats.Failed, 1)
	assert.Equal(t, "bad.py", stats.Failed[0].Path)

	// The failed file has no fingerprint, so the next cycle retries it.
	_, ok := f.prints.Get("bad.py")
	assert.False(t, ok)
	_, ok = f.prints.Get("good.go")
	assert.True(t, ok)

	f.writer.mu.Lock()
	f.writer.failPaths["bad.py"] = false
	f.writer.mu.Unlock()

	stats, err = f.engine.Sync(context.Background(), Request{Full: true, Source: SourceTimer})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesAdded)
	_, ok = f.prints.Get("bad.py")
	assert.True(t, ok)
}

func TestSyncLockTimeout(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.engine.lock.TryAcquire())
	defer f.engine.lock.Release()

	_, err := f.engine.Sync(context.Background(), Request{Full: true, Source: SourceManual})
	require.ErrorIs(t, err, ErrLockTimeout)
}

func TestSyncWindowSpans(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.py", genLines(120))

	_, err := f.engine.Sync(context.Background(), Request{Full: true, Source: SourceManual})
	require.NoError(t, err)

	spans := make(map[string][2]int)
	f.writer.mu.Lock()
	for _, e := range f.writer.entries {
		spans[e.ChunkID] = [2]int{e.StartLine, e.EndLine}
	}
	f.writer.mu.Unlock()

	assert.Contains(t, spans, chunker.ChunkID("a.py", 1))
	assert.Contains(t, spans, chunker.ChunkID("a.py", 61))
	assert.Equal(t, [2]int{1, 80}, spans[chunker.ChunkID("a.py", 1)])
	assert.Equal(t, [2]int{61, 120}, spans[chunker.ChunkID("a.py", 61)])
}

func TestStaleIDs(t *testing.T) {
	assert.Equal(t, []string{"c"}, staleIDs([]string{"a", "b", "c"}, []string{"a", "b"}))
	assert.Empty(t, staleIDs([]string{"a"}, []string{"a", "b"}))
	assert.Empty(t, staleIDs(nil, []string{"a"}))
}

func TestLastStats(t *testing.T) {
	f := newFixture(t)
	_, ok := f.engine.LastStats()
	assert.False(t, ok)

	f.write(t, "a.py", genLines(10))
	_, err := f.engine.Sync(context.Background(), Request{Full: true, Source: SourceManual})
	require.NoError(t, err)

	last, ok := f.engine.LastStats()
	require.True(t, ok)
	assert.Equal(t, StatusCommitted, last.Status)
	assert.Equal(t, SourceManual, last.Source)
	assert.False(t, f.engine.Running())
}
