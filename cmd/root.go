package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/foo-543674/fs-text-search-mcp/pkg/config"
	"github.com/foo-543674/fs-text-search-mcp/pkg/logging"
	searchmcp "github.com/foo-543674/fs-text-search-mcp/pkg/mcp"
	"github.com/foo-543674/fs-text-search-mcp/pkg/search"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

// logFilterEnv supplies a default log level directive when no verbosity flag
// is given.
const logFilterEnv = "FS_SEARCH_LOG"

var (
	watchDir   string
	indexDir   string
	extensions string
	configPath string
	verbose    bool
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:     "fs-text-search-mcp",
	Short:   "fs-text-search-mcp - MCP server exposing live full-text search over a directory",
	Version: "v0.3.0",
	Long: `fs-text-search-mcp - MCP server exposing live full-text search over a directory.

The server indexes all files matching the extension allow-list under the
watch directory, keeps the index current as the tree changes, and exposes
search_index and load_file tools over stdin/stdout. Logs go to stderr;
stdout carries protocol framing only.

Example MCP client configuration (e.g., for Claude Desktop):
{
  "mcpServers": {
    "fs-text-search": {
      "command": "/path/to/fs-text-search-mcp",
      "args": ["--watch-dir", "/path/to/docs"],
      "env": {}
    }
  }
}`,
	RunE:         runServer,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Whoops. There was an error while executing your CLI '%s'", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVar(&watchDir, "watch-dir", ".", "root of the watched subtree")
	rootCmd.Flags().StringVar(&indexDir, "index-dir", "", "directory housing persisted index files (default: in-memory)")
	rootCmd.Flags().StringVar(&extensions, "extensions", "txt,md", "comma-separated extension allow-list, without leading dots")
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file supplying the same settings")
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "log at debug level")
	rootCmd.Flags().BoolVar(&quiet, "quiet", false, "log errors only")
}

func runServer(cmd *cobra.Command, args []string) error {
	if configPath != "" {
		fileCfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		applyConfigFile(cmd, fileCfg)
	}

	logging.SetLevel(resolveLogLevel())

	logging.Infof("starting server, watching %s", watchDir)

	svc, err := search.NewService(search.Options{
		WatchDir:   watchDir,
		IndexDir:   indexDir,
		Extensions: strings.Split(extensions, ","),
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil {
			logging.Errorf("shutdown: %v", cerr)
		}
	}()

	s := server.NewMCPServer(
		"fs-text-search-mcp",
		cmd.Version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
		server.WithInstructions("This is a search server that can search for strings in files."),
	)

	if err := searchmcp.RegisterAll(s, searchmcp.Config{Service: svc, Debug: verbose}); err != nil {
		return fmt.Errorf("register MCP tools: %w", err)
	}
	searchmcp.AddBuiltinResources(s)

	return server.ServeStdio(s)
}

// applyConfigFile fills in settings the user left at their defaults. A flag
// changed on the command line always wins over the file.
func applyConfigFile(cmd *cobra.Command, f config.File) {
	if f.WatchDir != "" && !cmd.Flags().Changed("watch-dir") {
		watchDir = f.WatchDir
	}
	if f.IndexDir != "" && !cmd.Flags().Changed("index-dir") {
		indexDir = f.IndexDir
	}
	if f.Extensions != "" && !cmd.Flags().Changed("extensions") {
		extensions = f.Extensions
	}
	if f.Verbose && !cmd.Flags().Changed("verbose") {
		verbose = f.Verbose
	}
	if f.Quiet && !cmd.Flags().Changed("quiet") {
		quiet = f.Quiet
	}
}

// resolveLogLevel picks the log level: explicit flags first, then the
// environment directive, then info.
func resolveLogLevel() logging.Level {
	switch {
	case verbose:
		return logging.LevelDebug
	case quiet:
		return logging.LevelError
	}
	if directive := os.Getenv(logFilterEnv); directive != "" {
		if level, ok := logging.ParseLevel(directive); ok {
			return level
		}
	}
	return logging.LevelInfo
}
