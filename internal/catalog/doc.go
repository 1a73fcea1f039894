// Package catalog caches the tool listing advertised by the connected MCP
// server and validates tool names before calls leave the bridge.
package catalog
