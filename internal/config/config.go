// Package config provides configuration types for the MCP bridge: the
// server definitions file and the client option set.
package config

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// ServerConfig describes how to launch one stdio MCP server.
type ServerConfig struct {
	Command string            `json:"command" yaml:"command"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// Config holds the parsed server definitions file. The file uses the
// conventional mcpServers layout shared by MCP clients:
//
//	{
//	  "mcpServers": {
//	    "filesystem": {
//	      "command": "npx",
//	      "args": ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"],
//	      "env": {"API_KEY": "..."}
//	    }
//	  }
//	}
type Config struct {
	MCPServers map[string]ServerConfig `json:"mcpServers" yaml:"mcpServers"`
}

// Load reads and parses a server definitions file. Files ending in .yaml or
// .yml are parsed as YAML, everything else as JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}

	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	return cfg, nil
}

// Servers returns the configured server names in sorted order.
func (c *Config) Servers() []string {
	return slices.Sorted(maps.Keys(c.MCPServers))
}

// Server resolves one server definition by name.
func (c *Config) Server(name string) (ServerConfig, error) {
	sc, ok := c.MCPServers[name]
	if !ok {
		return ServerConfig{}, fmt.Errorf("server %q not defined in configuration", name)
	}

	if sc.Command == "" {
		return ServerConfig{}, fmt.Errorf("server %q has an empty command", name)
	}

	return sc, nil
}
