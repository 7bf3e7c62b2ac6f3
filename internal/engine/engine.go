package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"semsync/internal/chunker"
	"semsync/internal/detector"
	"semsync/internal/embedder"
	"semsync/internal/fingerprint"
	"semsync/internal/scanner"
	"semsync/internal/vectorstore"
)

// errVanished marks a file that disappeared between change detection and
// processing; it was handled as a removal.
var errVanished = errors.New("file vanished during cycle")

// Source identifies what initiated a sync cycle.
type Source string

// Trigger sources
const (
	SourceWatcher Source = "watcher"
	SourceTimer   Source = "timer"
	SourceHook    Source = "hook"
	SourceManual  Source = "manual"
)

// Status of a cycle.
type Status string

// Cycle states
const (
	StatusRunning   Status = "running"
	StatusCommitted Status = "committed"
	StatusFailed    Status = "failed"
)

// Request describes one sync cycle's input. An empty Paths list or Full set
// means a full re-scan; otherwise only the listed candidates are considered.
type Request struct {
	Paths  []string
	Full   bool
	Source Source
}

// FileError records a per-file failure that did not abort the cycle.
type FileError struct {
	Path string
	Err  string
}

// Stats summarizes a completed cycle.
type Stats struct {
	CycleID   string
	Source    Source
	Status    Status
	StartedAt time.Time
	Duration  time.Duration

	FilesAdded     int
	FilesModified  int
	FilesRemoved   int
	ChunksUpserted int
	ChunksDeleted  int

	Failed   []FileError
	Oversize []string
}

// Options configures an Engine.
type Options struct {
	Workers      int
	BatchSize    int
	LockTimeout  time.Duration
	CycleTimeout time.Duration
}

// Engine runs sync cycles: it resolves what changed, re-embeds affected
// files, applies index writes, and durably commits fingerprints. A single
// Engine value owns a repository; its lock guarantees at most one running
// cycle.
type Engine struct {
	scanner  *scanner.Scanner
	chunker  *chunker.Chunker
	embedder embedder.Embedder
	writer   vectorstore.Writer
	prints   *fingerprint.Store
	logger   *zap.Logger

	workers      int
	batchSize    int
	lock         *Lock
	lockTimeout  time.Duration
	cycleTimeout time.Duration

	// commitMu serializes fingerprint commits from cycle workers.
	commitMu sync.Mutex

	statusMu sync.Mutex
	last     *Stats
	running  bool
}

// New creates an Engine.
func New(
	scn *scanner.Scanner,
	chk *chunker.Chunker,
	emb embedder.Embedder,
	writer vectorstore.Writer,
	prints *fingerprint.Store,
	opts Options,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 30 * time.Second
	}
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = 10 * time.Minute
	}
	return &Engine{
		scanner:      scn,
		chunker:      chk,
		embedder:     emb,
		writer:       writer,
		prints:       prints,
		logger:       logger,
		workers:      opts.Workers,
		batchSize:    opts.BatchSize,
		lock:         NewLock(),
		lockTimeout:  opts.LockTimeout,
		cycleTimeout: opts.CycleTimeout,
	}
}

// Fingerprints exposes the fingerprint store for status reporting.
func (e *Engine) Fingerprints() *fingerprint.Store {
	return e.prints
}

// Running reports whether a cycle is currently executing.
func (e *Engine) Running() bool {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	return e.running
}

// LastStats returns the most recently finished cycle's stats, if any.
func (e *Engine) LastStats() (Stats, bool) {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	if e.last == nil {
		return Stats{}, false
	}
	return *e.last, true
}

// Sync runs one cycle. It acquires the repository lock with a bounded wait
// (failing with ErrLockTimeout), resolves the change set, and processes each
// changed file independently: a file's index writes land before its
// fingerprint commits, and a file that fails keeps its old fingerprint so a
// later cycle retries it. Only lock or context failure fails the whole
// cycle.
func (e *Engine) Sync(ctx context.Context, req Request) (*Stats, error) {
	if err := e.lock.Acquire(ctx, e.lockTimeout); err != nil {
		return nil, err
	}
	defer e.lock.Release()

	stats := &Stats{
		CycleID:   uuid.NewString(),
		Source:    req.Source,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
	e.setRunning(true)
	defer func() {
		stats.Duration = time.Since(stats.StartedAt)
		e.finish(stats)
	}()

	cycleCtx, cancel := context.WithTimeout(ctx, e.cycleTimeout)
	defer cancel()

	log := e.logger.With(zap.String("cycle", stats.CycleID), zap.String("source", string(req.Source)))
	log.Info("sync cycle started", zap.Bool("full", req.Full || len(req.Paths) == 0), zap.Int("candidates", len(req.Paths)))

	delta, err := e.resolve(cycleCtx, req)
	if err != nil {
		stats.Status = StatusFailed
		return stats, fmt.Errorf("failed to resolve change set: %w", err)
	}

	// Files that could not be hashed never abort resolution; record them and
	// carry on. Unreadable tracked files keep their old fingerprint and are
	// retried on a later cycle.
	stats.Oversize = delta.Oversize
	for _, path := range delta.Unreadable {
		e.recordFailure(stats, path, errors.New("failed to hash file"))
	}

	if delta.Empty() {
		stats.Status = StatusCommitted
		log.Info("sync cycle committed", zap.String("result", "no changes"))
		return stats, nil
	}

	log.Info("change set resolved",
		zap.Int("added", len(delta.Added)),
		zap.Int("modified", len(delta.Modified)),
		zap.Int("removed", len(delta.Removed)))

	// Removals first: cheap, and a rename's delete should not race its
	// re-add under a different path.
	for _, path := range delta.Removed {
		if err := e.removeFile(cycleCtx, path, stats); err != nil {
			e.recordFailure(stats, path, err)
		} else {
			stats.FilesRemoved++
		}
	}

	upserts := make([]string, 0, len(delta.Added)+len(delta.Modified))
	upserts = append(upserts, delta.Added...)
	upserts = append(upserts, delta.Modified...)
	modified := make(map[string]struct{}, len(delta.Modified))
	for _, p := range delta.Modified {
		modified[p] = struct{}{}
	}

	g, gctx := errgroup.WithContext(cycleCtx)
	g.SetLimit(e.workers)
	for _, path := range upserts {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			err := e.syncFile(gctx, path, stats)
			switch {
			case errors.Is(err, errVanished):
				e.statusMu.Lock()
				stats.FilesRemoved++
				e.statusMu.Unlock()
			case err != nil:
				// Per-file failure: record and keep the cycle going.
				e.recordFailure(stats, path, err)
			default:
				e.statusMu.Lock()
				if _, wasModified := modified[path]; wasModified {
					stats.FilesModified++
				} else {
					stats.FilesAdded++
				}
				e.statusMu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Only context death surfaces here; per-file errors never do.
		stats.Status = StatusFailed
		return stats, fmt.Errorf("sync cycle aborted: %w", err)
	}

	stats.Status = StatusCommitted
	log.Info("sync cycle committed",
		zap.Int("added", stats.FilesAdded),
		zap.Int("modified", stats.FilesModified),
		zap.Int("removed", stats.FilesRemoved),
		zap.Int("chunks_upserted", stats.ChunksUpserted),
		zap.Int("chunks_deleted", stats.ChunksDeleted),
		zap.Int("failed", len(stats.Failed)),
		zap.Duration("duration", time.Since(stats.StartedAt)))
	return stats, nil
}

// resolve turns the request into a concrete Delta. Only a failed tree walk
// (context death, unreachable root) returns an error; per-file hash problems
// are classified inside the Delta.
func (e *Engine) resolve(ctx context.Context, req Request) (detector.Delta, error) {
	if req.Full || len(req.Paths) == 0 {
		result, err := e.scanner.Scan(ctx)
		if err != nil {
			return detector.Delta{}, err
		}
		return detector.Diff(result, e.prints), nil
	}
	return detector.DiffPaths(e.scanner, req.Paths, e.prints), nil
}

// syncFile re-indexes one added or modified file: chunk, embed, upsert new
// entries, delete entries whose IDs no longer exist (a shrunk file's stale
// tail), then durably commit the fingerprint. Any error before the commit
// leaves the old fingerprint in place.
func (e *Engine) syncFile(ctx context.Context, path string, stats *Stats) error {
	abs := filepath.Join(e.scanner.Root(), filepath.FromSlash(path))
	content, err := os.ReadFile(abs)
	if os.IsNotExist(err) {
		// Vanished between detection and processing: treat as removed.
		if err := e.removeFile(ctx, path, stats); err != nil {
			return err
		}
		return errVanished
	}
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	// Hash the bytes actually read so the committed fingerprint matches the
	// indexed content even if the file changes mid-cycle.
	hash := scanner.HashBytes(content)
	chunks := e.chunker.Chunk(path, string(content))

	newIDs := make([]string, len(chunks))
	entries := make([]vectorstore.Entry, len(chunks))
	for i, ch := range chunks {
		newIDs[i] = ch.ID
		entries[i] = vectorstore.Entry{
			ChunkID:   ch.ID,
			Path:      ch.Path,
			StartLine: ch.StartLine,
			EndLine:   ch.EndLine,
		}
	}

	// Embed in provider-sized batches.
	for start := 0; start < len(chunks); start += e.batchSize {
		end := start + e.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, end-start)
		for i := start; i < end; i++ {
			texts[i-start] = chunks[i].Text
		}
		vecs, err := e.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed: %w", err)
		}
		for i := range vecs {
			entries[start+i].Vector = vecs[i]
		}
	}

	if len(entries) > 0 {
		if err := e.writer.Upsert(ctx, entries); err != nil {
			return fmt.Errorf("failed to upsert index entries: %w", err)
		}
	}

	// Delete stale IDs the new chunking no longer produces.
	stale := staleIDs(e.priorChunkIDs(path), newIDs)
	if len(stale) > 0 {
		if err := e.writer.Delete(ctx, stale); err != nil {
			return fmt.Errorf("failed to delete stale entries: %w", err)
		}
	}

	// Index writes done; commit the fingerprint last.
	e.commitMu.Lock()
	err = e.prints.Put(fingerprint.FileRecord{
		Path:         path,
		ContentHash:  hash,
		ChunkIDs:     newIDs,
		LastSyncedAt: time.Now().UTC(),
	})
	e.commitMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to commit fingerprint: %w", err)
	}

	e.statusMu.Lock()
	stats.ChunksUpserted += len(entries)
	stats.ChunksDeleted += len(stale)
	e.statusMu.Unlock()
	return nil
}

// removeFile deletes a file's index entries and then its fingerprint.
func (e *Engine) removeFile(ctx context.Context, path string, stats *Stats) error {
	ids := e.priorChunkIDs(path)
	if len(ids) > 0 {
		if err := e.writer.Delete(ctx, ids); err != nil {
			return fmt.Errorf("failed to delete index entries: %w", err)
		}
	}

	e.commitMu.Lock()
	err := e.prints.Remove(path)
	e.commitMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to remove fingerprint: %w", err)
	}

	e.statusMu.Lock()
	stats.ChunksDeleted += len(ids)
	e.statusMu.Unlock()
	return nil
}

func (e *Engine) priorChunkIDs(path string) []string {
	rec, ok := e.prints.Get(path)
	if !ok {
		return nil
	}
	return rec.ChunkIDs
}

// staleIDs returns the members of prev absent from curr.
func staleIDs(prev, curr []string) []string {
	keep := make(map[string]struct{}, len(curr))
	for _, id := range curr {
		keep[id] = struct{}{}
	}
	stale := make([]string, 0)
	for _, id := range prev {
		if _, ok := keep[id]; !ok {
			stale = append(stale, id)
		}
	}
	return stale
}

func (e *Engine) recordFailure(stats *Stats, path string, err error) {
	e.logger.Warn("file sync failed", zap.String("path", path), zap.Error(err))
	e.statusMu.Lock()
	stats.Failed = append(stats.Failed, FileError{Path: path, Err: err.Error()})
	e.statusMu.Unlock()
}

func (e *Engine) setRunning(v bool) {
	e.statusMu.Lock()
	e.running = v
	e.statusMu.Unlock()
}

func (e *Engine) finish(stats *Stats) {
	e.statusMu.Lock()
	e.running = false
	copied := *stats
	e.last = &copied
	e.statusMu.Unlock()
}
