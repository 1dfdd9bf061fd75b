package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// AddBuiltinResources registers static resources useful to MCP agents.
func AddBuiltinResources(s *server.MCPServer) {
	const uri = "fs-text-search/docs/agent-guide"
	const name = "File Search Agent Guide"
	const mime = "text/markdown"

	body := `# File Search – Agent Guide

This MCP server exposes a live full-text index over a watched directory.

## Tools

- **search_index**: Keyword search over file contents.
  - Input: ` + "`" + `keyword` + "`" + ` – separate multiple keywords with spaces; any of them may match.
  - Returns a JSON array of ` + "`" + `{"file_path": ...}` + "`" + ` records for up to 10 best-ranked files.
  - Fails with "No results found." when nothing matches; treat that as an empty result, not a server fault.

- **load_file**: Fetch the raw content of one file.
  - Input: ` + "`" + `file_path` + "`" + ` – use a value returned by search_index.

## How to Choose a Tool

- Looking for which files mention something? Use ` + "`" + `search_index` + "`" + `.
- Already know the path and need the text? Use ` + "`" + `load_file` + "`" + `.

## Freshness

The index follows the watched directory live. Changes appear in results
within roughly a second; there is no need to re-trigger indexing.
`

	resource := mcp.NewResource(uri, name, mcp.WithMIMEType(mime))
	s.AddResource(resource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: uri, MIMEType: mime, Text: body},
		}, nil
	})
}
