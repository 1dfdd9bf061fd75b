package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterAll registers all MCP tools with the given server
func RegisterAll(s *server.MCPServer, config Config) error {
	searchTool := mcp.NewTool("search_index",
		mcp.WithDescription(`Search for a string in the indexed files. Returns up to 10 matching documents as a JSON array of {"file_path": ...} records, ranked by relevance. The index follows the watched directory live, so results reflect filesystem changes within about two seconds.`),
		mcp.WithString("keyword",
			mcp.Required(),
			mcp.Description("Keyword to search for. Use space to separate multiple keywords."),
		),
	)
	s.AddTool(searchTool, SearchIndexTool(config))

	loadFileTool := mcp.NewTool("load_file",
		mcp.WithDescription(`Load the raw UTF-8 content of a file by path. Use the file_path values returned by search_index.`),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path of the file to load, as returned by search_index."),
		),
	)
	s.AddTool(loadFileTool, LoadFileTool(config))

	return nil
}
