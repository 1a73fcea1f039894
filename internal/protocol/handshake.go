package protocol

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// ProtocolVersion is the MCP protocol revision the bridge speaks.
const ProtocolVersion = "2025-06-18"

// MethodInitialize and friends are the MCP method names the bridge issues.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
)

// ServerInfo identifies a server from its initialize response.
type ServerInfo struct {
	Name    string `json:"name"    mapstructure:"name"`
	Version string `json:"version" mapstructure:"version"`
}

// InitializeResult is the decoded result of the initialize handshake.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"        mapstructure:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"           mapstructure:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"             mapstructure:"serverInfo"`
	Instructions    string         `json:"instructions,omitempty" mapstructure:"instructions"`
}

// InitializeParams builds the params for the initialize request, announcing
// the bridge as the client.
func InitializeParams(clientName, clientVersion string) map[string]any {
	return map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": clientVersion,
		},
	}
}

// ParseInitializeResult decodes the result member of an initialize
// response envelope.
func ParseInitializeResult(envelope map[string]any) (*InitializeResult, error) {
	if err := EnvelopeError(envelope); err != nil {
		return nil, fmt.Errorf("initialize failed: %w", err)
	}

	result, ok := Result(envelope)
	if !ok {
		return nil, fmt.Errorf("initialize response has no result")
	}

	var init InitializeResult

	if err := mapstructure.Decode(result, &init); err != nil {
		return nil, fmt.Errorf("decode initialize result: %w", err)
	}

	return &init, nil
}
