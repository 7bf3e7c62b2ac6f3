package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"
)

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// Open creates a SQLite-backed store, applying any pending migrations.
func Open(dbPath string) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Upsert inserts or replaces entries keyed by chunk ID. All entries are
// written in one transaction so a batch is never half-visible.
func (s *SQLiteStore) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO entries (chunk_id, file_path, start_line, end_line, vector, dimension, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			file_path = excluded.file_path,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			vector = excluded.vector,
			dimension = excluded.dimension,
			updated_at = excluded.updated_at
	`
	now := time.Now()
	for _, e := range entries {
		_, err := tx.ExecContext(ctx, query,
			e.ChunkID, e.Path, e.StartLine, e.EndLine,
			serializeVector(e.Vector), len(e.Vector), now)
		if err != nil {
			return fmt.Errorf("failed to upsert chunk %s: %w", e.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}
	return nil
}

// Delete removes entries by chunk ID. Absent IDs are ignored.
func (s *SQLiteStore) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	placeholders := make([]string, len(chunkIDs))
	args := make([]interface{}, len(chunkIDs))
	for i, id := range chunkIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := `DELETE FROM entries WHERE chunk_id IN (` + strings.Join(placeholders, ",") + `)`
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// Query returns the limit nearest entries by cosine similarity.
func (s *SQLiteStore) Query(ctx context.Context, vec []float32, limit int) ([]Match, error) {
	if limit <= 0 {
		return []Match{}, nil
	}
	if VectorExtensionAvailable {
		return s.queryOptimized(ctx, vec, limit)
	}
	return s.queryFallback(ctx, vec, limit)
}

// queryOptimized computes cosine distance at the database layer via the
// sqlite-vec extension.
func (s *SQLiteStore) queryOptimized(ctx context.Context, vec []float32, limit int) ([]Match, error) {
	query := `
		SELECT chunk_id, file_path, start_line, end_line, vector,
		       1.0 - vec_distance_cosine(vector, ?) as similarity
		FROM entries
		WHERE dimension = ?
		ORDER BY similarity DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, serializeVector(vec), len(vec), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	matches := make([]Match, 0, limit)
	for rows.Next() {
		var m Match
		var blob []byte
		if err := rows.Scan(&m.ChunkID, &m.Path, &m.StartLine, &m.EndLine, &blob, &m.Score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		m.Vector = deserializeVector(blob)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// queryFallback scans all candidate vectors and ranks them in Go. Used when
// the sqlite-vec extension is not compiled in (purego builds).
func (s *SQLiteStore) queryFallback(ctx context.Context, vec []float32, limit int) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, file_path, start_line, end_line, vector
		FROM entries
		WHERE dimension = ?
	`, len(vec))
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	matches := make([]Match, 0, 256)
	for rows.Next() {
		var m Match
		var blob []byte
		if err := rows.Scan(&m.ChunkID, &m.Path, &m.StartLine, &m.EndLine, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		m.Vector = deserializeVector(blob)
		m.Score = cosineSimilarity(vec, m.Vector)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if limit > len(matches) {
		limit = len(matches)
	}
	return matches[:limit], nil
}

// Count returns the number of indexed entries.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

// ChunkIDs returns the chunk IDs indexed for path, ordered by start line.
func (s *SQLiteStore) ChunkIDs(ctx context.Context, path string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT chunk_id FROM entries WHERE file_path = ? ORDER BY start_line", path)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
