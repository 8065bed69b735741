// Package mcp implements the host side of the Model Context Protocol: it
// connects to external tool servers over stdio or HTTP, discovers their
// tools, and exposes a merged, collision-free tool registry through the
// Manager.
package mcp

// TransportType identifies the MCP transport protocol.
type TransportType string

const (
	// TransportStdio communicates with a spawned subprocess over its
	// stdin/stdout.
	TransportStdio TransportType = "stdio"

	// TransportStreamableHTTP communicates with a remote server by
	// posting JSON-RPC messages to an HTTP endpoint.
	TransportStreamableHTTP TransportType = "streamable-http"
)

// ServerConfig describes how to connect to a single MCP server.
// Name must be unique across the servers handed to a Manager.
type ServerConfig struct {
	// Name is the operator-assigned identifier for this server. It is
	// used as the prefix when tool names collide across servers.
	Name string

	// Command is the executable to spawn (stdio transport only).
	Command string

	// Args are command-line arguments for the subprocess.
	Args []string

	// Env are extra environment variables for the subprocess, merged on
	// top of the host's environment.
	Env map[string]string

	// URL is the server address (streamable-http transport).
	URL string

	// Transport selects the communication protocol. When empty it is
	// inferred: stdio if Command is set, streamable-http if URL is set.
	Transport TransportType
}
