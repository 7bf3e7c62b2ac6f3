package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"semsync/internal/engine"
)

// MCP error codes
const (
	ErrorCodeInvalidParams  = -32602 // Invalid method parameters
	ErrorCodeInternalError  = -32603 // Internal JSON-RPC error
	ErrorCodeSyncInProgress = -32002 // Another sync cycle is already running
	ErrorCodeEmptyQuery     = -32004 // Query parameter is empty
)

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}
	includeSnippets := getBoolDefault(args, "include_snippets", true)

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to embed query", map[string]interface{}{
			"error": err.Error(),
		})
	}

	matches, err := s.index.Query(ctx, vec, limit)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(matches))
	for _, m := range matches {
		r := map[string]interface{}{
			"chunk_id":   m.ChunkID,
			"path":       m.Path,
			"start_line": m.StartLine,
			"end_line":   m.EndLine,
			"score":      m.Score,
		}
		if includeSnippets {
			snippet, err := s.readSnippet(m.Path, m.StartLine, m.EndLine)
			if err != nil {
				// The file may have changed or vanished since indexing; the
				// match location is still useful.
				s.logger.Debug("failed to read snippet", zap.String("path", m.Path), zap.Error(err))
			} else {
				r["snippet"] = snippet
			}
		}
		results = append(results, r)
	}

	response := map[string]interface{}{
		"query":   query,
		"count":   len(results),
		"results": results,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleTriggerUpdate handles the trigger_update tool invocation
func (s *Server) handleTriggerUpdate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := engine.Request{Full: true, Source: engine.SourceManual}

	if args, ok := request.Params.Arguments.(map[string]interface{}); ok {
		if raw, ok := args["files"].([]interface{}); ok && len(raw) > 0 {
			paths := make([]string, 0, len(raw))
			for _, v := range raw {
				p, ok := v.(string)
				if !ok || strings.TrimSpace(p) == "" {
					return nil, newMCPError(ErrorCodeInvalidParams, "files entries must be non-empty strings", map[string]interface{}{
						"param": "files",
					})
				}
				paths = append(paths, filepath.ToSlash(strings.TrimPrefix(p, "./")))
			}
			req = engine.Request{Paths: paths, Source: engine.SourceManual}
		}
	}

	stats, err := s.syncer.Sync(ctx, req)
	if errors.Is(err, engine.ErrLockTimeout) {
		return nil, newMCPError(ErrorCodeSyncInProgress, "a sync cycle is already running", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "sync failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(statsResponse(stats))), nil
}

// handleIndexStatus handles the index_status tool invocation
func (s *Server) handleIndexStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chunks, err := s.index.Count(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to count index entries", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"root":          s.root,
		"files_tracked": s.syncer.Fingerprints().Len(),
		"chunks":        chunks,
		"sync_running":  s.syncer.Running(),
	}
	if last, ok := s.syncer.LastStats(); ok {
		response["last_cycle"] = statsResponse(&last)
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

func statsResponse(stats *engine.Stats) map[string]interface{} {
	r := map[string]interface{}{
		"cycle_id":        stats.CycleID,
		"source":          string(stats.Source),
		"status":          string(stats.Status),
		"started_at":      stats.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		"duration_ms":     stats.Duration.Milliseconds(),
		"files_added":     stats.FilesAdded,
		"files_modified":  stats.FilesModified,
		"files_removed":   stats.FilesRemoved,
		"chunks_upserted": stats.ChunksUpserted,
		"chunks_deleted":  stats.ChunksDeleted,
	}
	if len(stats.Failed) > 0 {
		failed := make([]map[string]interface{}, 0, len(stats.Failed))
		for _, f := range stats.Failed {
			failed = append(failed, map[string]interface{}{"path": f.Path, "error": f.Err})
		}
		r["failed"] = failed
	}
	if len(stats.Oversize) > 0 {
		r["oversize_skipped"] = stats.Oversize
	}
	return r
}

// readSnippet reads the 1-based inclusive line range [start, end] of a
// repository-relative file.
func (s *Server) readSnippet(rel string, start, end int) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(rel)))
	if err != nil {
		return "", err
	}

	lines := strings.Split(string(data), "\n")
	if start < 1 || start > len(lines) {
		return "", fmt.Errorf("line %d out of range for %s", start, rel)
	}
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[start-1:end], "\n"), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}
