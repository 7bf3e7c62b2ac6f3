// Package chunker splits file content into overlapping fixed-size line
// windows for embedding.
//
// Chunk identity is derived purely from the file path and window start line,
// so re-chunking unchanged content always reproduces the same IDs. The index
// writer relies on this to make re-indexing an idempotent upsert instead of
// an accumulation of duplicates.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Defaults for the sliding window.
const (
	DefaultWindowLines = 80
	DefaultStrideLines = 60
)

// Chunk is one window of a file's content. Lines are 1-based and inclusive.
type Chunk struct {
	ID        string
	Path      string
	StartLine int
	EndLine   int
	Text      string
}

// Chunker produces overlapping line windows.
type Chunker struct {
	window int
	stride int
}

// New creates a Chunker. Non-positive or inconsistent values fall back to
// the defaults; stride must stay below window so consecutive chunks overlap.
func New(windowLines, strideLines int) *Chunker {
	if windowLines <= 0 {
		windowLines = DefaultWindowLines
	}
	if strideLines <= 0 || strideLines >= windowLines {
		strideLines = DefaultStrideLines
		if strideLines >= windowLines {
			strideLines = windowLines * 3 / 4
		}
	}
	return &Chunker{window: windowLines, stride: strideLines}
}

// WindowLines returns the configured window size.
func (c *Chunker) WindowLines() int { return c.window }

// StrideLines returns the configured stride.
func (c *Chunker) StrideLines() int { return c.stride }

// Chunk splits text into windows of up to window lines, advancing by stride
// lines between windows. The final window may be shorter; every line of the
// file appears in at least one chunk. Empty content yields no chunks, and a
// window whose text is entirely empty (a file holding only a blank line) is
// not emitted, since there is nothing to embed.
func (c *Chunker) Chunk(path, text string) []Chunk {
	if text == "" {
		return nil
	}

	lines := strings.Split(text, "\n")
	// A trailing newline produces one empty trailing element, not a line.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return nil
	}

	total := len(lines)
	chunks := make([]Chunk, 0, total/c.stride+1)
	for idx := 0; idx < total; idx += c.stride {
		end := idx + c.window
		if end > total {
			end = total
		}
		if text := strings.Join(lines[idx:end], "\n"); text != "" {
			chunks = append(chunks, Chunk{
				ID:        ChunkID(path, idx+1),
				Path:      path,
				StartLine: idx + 1,
				EndLine:   end,
				Text:      text,
			})
		}
		if end == total {
			break
		}
	}
	return chunks
}

// ChunkID derives the deterministic chunk identifier for a window starting
// at startLine (1-based) of path.
func ChunkID(path string, startLine int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", path, startLine)))
	return hex.EncodeToString(sum[:])
}
