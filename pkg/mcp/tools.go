package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/foo-543674/fs-text-search-mcp/pkg/logging"
	"github.com/mark3labs/mcp-go/mcp"
)

// SearchIndexTool returns the handler for the search_index tool. Hits are
// rendered as a single JSON-array string; an empty result is a user-visible
// error rather than an empty array, matching what tool-using clients expect
// to branch on.
func SearchIndexTool(config Config) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		keyword, _ := args["keyword"].(string)
		if keyword == "" {
			return mcp.NewToolResultError("keyword is required"), nil
		}

		if config.Debug {
			logging.Debugf("MCP search_index called with keyword: %s", keyword)
		}

		results, err := config.Service.Search(keyword)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Error searching index: %s", err)), nil
		}
		if len(results) == 0 {
			return mcp.NewToolResultError("No results found."), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("[%s]", strings.Join(results, ", "))), nil
	}
}

// LoadFileTool returns the handler for the load_file tool.
func LoadFileTool(config Config) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		path, _ := args["file_path"].(string)
		if path == "" {
			return mcp.NewToolResultError("file_path is required"), nil
		}

		if config.Debug {
			logging.Debugf("MCP load_file called with path: %s", path)
		}

		doc, err := config.Service.LoadFile(path)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Error reading file: %s", err)), nil
		}

		return mcp.NewToolResultText(doc.Content), nil
	}
}
