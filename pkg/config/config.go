// Package config loads the optional YAML settings file. Command-line flags
// always win; the file only supplies values the user did not set.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File mirrors the command-line flags.
type File struct {
	WatchDir   string `yaml:"watchDir"`
	IndexDir   string `yaml:"indexDir"`
	Extensions string `yaml:"extensions"`
	Verbose    bool   `yaml:"verbose"`
	Quiet      bool   `yaml:"quiet"`
}

// Load parses the YAML file at path.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return f, nil
}
