package vectorstore

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable is returned when the store cannot be reached after
	// retries.
	ErrUnavailable = errors.New("vector store unavailable")
	// ErrNotFound is returned when a requested entry doesn't exist
	ErrNotFound = errors.New("not found")
)

// Entry is one indexed chunk: its deterministic ID, embedding vector, and
// enough location metadata to read the snippet back from disk.
type Entry struct {
	ChunkID   string
	Vector    []float32
	Path      string
	StartLine int
	EndLine   int
}

// Match is a query result.
type Match struct {
	Entry
	Score float64
}

// Writer is the narrow interface the sync engine needs: idempotent upsert
// and delete keyed by chunk ID. Upserting an existing ID replaces the entry;
// deleting an absent ID is a no-op. Both must be safe to repeat.
type Writer interface {
	Upsert(ctx context.Context, entries []Entry) error
	Delete(ctx context.Context, chunkIDs []string) error
}

// Store is the full index surface, adding the read side used by search and
// status reporting.
type Store interface {
	Writer

	// Query returns the top limit entries by cosine similarity to vec.
	Query(ctx context.Context, vec []float32, limit int) ([]Match, error)

	// Count returns the number of indexed entries.
	Count(ctx context.Context) (int, error)

	// ChunkIDs returns the IDs currently indexed for a file path.
	ChunkIDs(ctx context.Context, path string) ([]string, error)

	Close() error
}
