package mcp

import "errors"

// Sentinel errors for the MCP package.
//
// Transport and protocol failures are fatal for the affected connection
// only. Tool-level failures (timeout, unknown tool) leave the connection
// usable and are surfaced to the conversation loop as data.
var (
	// ErrTransport is returned when a peer cannot be spawned or reached,
	// or when the underlying channel fails mid-exchange.
	ErrTransport = errors.New("mcp: transport failure")

	// ErrProtocol is returned when the initialize handshake fails or the
	// server answers with an unsupported protocol version.
	ErrProtocol = errors.New("mcp: protocol mismatch")

	// ErrNotConnected is returned when an operation requires a Connected
	// connection and the connection is in any other state.
	ErrNotConnected = errors.New("mcp: server not connected")

	// ErrClosing is returned for calls that were in flight when the
	// connection began closing, and for calls issued while it closes.
	ErrClosing = errors.New("mcp: connection closing")

	// ErrConnectionLost signals an asynchronous transport failure on a
	// previously Connected connection.
	ErrConnectionLost = errors.New("mcp: connection lost")

	// ErrToolTimeout is returned when a tool call exceeds its timeout.
	// The connection itself stays usable.
	ErrToolTimeout = errors.New("mcp: tool call timed out")

	// ErrUnknownTool is returned when a qualified tool name is not present
	// in the registry. No connection is contacted.
	ErrUnknownTool = errors.New("mcp: unknown tool")

	// ErrServerNotFound is returned when referencing a server name that
	// does not exist in the Manager.
	ErrServerNotFound = errors.New("mcp: server not found")

	// ErrInvalidConfig is returned when a ServerConfig is missing
	// required fields for its transport type.
	ErrInvalidConfig = errors.New("mcp: invalid server config")

	// ErrDuplicateServer is returned when two configured servers share a
	// name. This is a configuration error detected before any connect.
	ErrDuplicateServer = errors.New("mcp: duplicate server name")
)
