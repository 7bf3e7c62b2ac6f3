package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Search the indexed repository with a natural language query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"include_snippets": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, read the matched line ranges from disk and include them",
					"default":     true,
				},
			},
			Required: []string{"query"},
		},
	}
}

// triggerUpdateTool returns the tool definition for trigger_update
func triggerUpdateTool() mcp.Tool {
	return mcp.Tool{
		Name:        "trigger_update",
		Description: "Run a sync cycle now, bringing the index up to date with the working tree",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"files": map[string]interface{}{
					"type":        "array",
					"description": "Repository-relative paths to re-check; omit for a full scan",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
			},
		},
	}
}

// indexStatusTool returns the tool definition for index_status
func indexStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_status",
		Description: "Report indexed file and chunk counts and the last sync cycle outcome",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
