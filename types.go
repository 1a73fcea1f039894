package mcpbridge

import (
	"github.com/appsecco/mcpbridge/internal/catalog"
	"github.com/appsecco/mcpbridge/internal/config"
	"github.com/appsecco/mcpbridge/internal/protocol"
)

// Re-export types from internal packages

// ===== Configuration =====

// Config holds the parsed server definitions file. The file uses the
// conventional mcpServers layout shared by MCP clients.
type Config = config.Config

// ServerConfig describes how to launch one stdio MCP server.
type ServerConfig = config.ServerConfig

// Options is the resolved option set for a client. Use the With...
// functional options rather than building one by hand.
type Options = config.Options

// ===== Protocol =====

// Tool is one entry of a server's tool listing: its name, description,
// and JSON schema for arguments.
type Tool = catalog.Tool

// InitializeResult is the decoded result of the MCP initialize handshake.
type InitializeResult = protocol.InitializeResult

// ServerInfo identifies a server from its initialize response.
type ServerInfo = protocol.ServerInfo

// ProtocolVersion is the MCP protocol revision the bridge speaks.
const ProtocolVersion = protocol.ProtocolVersion

// LoadConfig reads and parses a server definitions file. Files ending in
// .yaml or .yml are parsed as YAML, everything else as JSON.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}
