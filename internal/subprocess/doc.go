// Package subprocess supervises MCP servers as child processes.
//
// This package spawns a configured server command, merges its environment
// (including the optional TLS bypass variables), optionally wraps the launch
// in proxychains, and communicates over stdin/stdout. It handles process
// lifecycle management, startup readiness classification, output buffering,
// and graceful termination.
package subprocess
