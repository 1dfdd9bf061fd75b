package mcp

import "github.com/foo-543674/fs-text-search-mcp/pkg/search"

// Config holds configuration for MCP tools
type Config struct {
	Service *search.Service
	Debug   bool
}
