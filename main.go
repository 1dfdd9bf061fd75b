package main

import "github.com/foo-543674/fs-text-search-mcp/cmd"

func main() {
	cmd.Execute()
}
