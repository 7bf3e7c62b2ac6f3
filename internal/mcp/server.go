// Package mcp exposes the index over the Model Context Protocol. Three tools
// are served on stdio: search_code runs a semantic query against the index,
// trigger_update requests a sync cycle, and index_status reports what the
// index currently holds.
package mcp

import (
	"context"
	"io"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"semsync/internal/embedder"
	"semsync/internal/engine"
	"semsync/internal/fingerprint"
	"semsync/internal/vectorstore"
)

const (
	// ServerName is the MCP server name
	ServerName = "semsync"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Syncer is the engine surface the tools need.
type Syncer interface {
	Sync(ctx context.Context, req engine.Request) (*engine.Stats, error)
	Running() bool
	LastStats() (engine.Stats, bool)
	Fingerprints() *fingerprint.Store
}

// Index is the read side of the vector store used by search and status.
type Index interface {
	Query(ctx context.Context, vec []float32, limit int) ([]vectorstore.Match, error)
	Count(ctx context.Context) (int, error)
}

// Server wraps the MCP server with application dependencies.
type Server struct {
	mcp      *server.MCPServer
	root     string
	embedder embedder.Embedder
	index    Index
	syncer   Syncer
	logger   *zap.Logger
}

// NewServer creates an MCP server over an already-wired engine and store.
func NewServer(root string, emb embedder.Embedder, index Index, syncer Syncer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		root:     root,
		embedder: emb,
		index:    index,
		syncer:   syncer,
		logger:   logger,
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until ctx is canceled or
// stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	return s.serve(ctx, os.Stdin, os.Stdout)
}

func (s *Server) serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(triggerUpdateTool(), s.handleTriggerUpdate)
	s.mcp.AddTool(indexStatusTool(), s.handleIndexStatus)
}
