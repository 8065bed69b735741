package mcp

import (
	"context"
	"encoding/json"
)

// ToolInfo describes a tool discovered from an MCP server.
type ToolInfo struct {
	// Name is the tool's name as reported by the server.
	Name string

	// Description is a human-readable description of the tool.
	Description string

	// InputSchema is the raw JSON schema for the tool's input.
	InputSchema json.RawMessage
}

// ToolResult is the outcome of a single tool invocation. IsError marks
// results the server reported as failed; these are forwarded to the model
// as data rather than aborting the conversation.
type ToolResult struct {
	Content string
	IsError bool
}

// Resource represents an MCP resource exposed by a server.
type Resource struct {
	// URI is the resource identifier (e.g. "file:///path" or "db://table").
	URI string

	// Name is a human-readable name for the resource.
	Name string

	// Description explains what the resource contains.
	Description string

	// MIMEType is the content type (e.g. "text/plain", "application/json").
	MIMEType string
}

// Transport is the interface for communicating with one MCP server.
// Implementations handle the underlying channel (stdio subprocess,
// HTTP endpoint, in-process server).
type Transport interface {
	// Connect opens the channel to the server: spawn the subprocess or
	// prepare the HTTP client. Failures wrap ErrTransport.
	Connect(ctx context.Context) error

	// Handshake performs the initialize exchange. A version or capability
	// mismatch wraps ErrProtocol and the connection must be abandoned.
	Handshake(ctx context.Context) error

	// ListTools discovers available tools from the server. An empty
	// result is valid.
	ListTools(ctx context.Context) ([]ToolInfo, error)

	// CallTool invokes a tool on the server by its original name.
	CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error)

	// ListResources discovers available resources from the server.
	ListResources(ctx context.Context) ([]Resource, error)

	// ReadResource reads a resource by URI from the server.
	ReadResource(ctx context.Context, uri string) (string, error)

	// Close tears down the connection and releases resources. It is
	// idempotent and safe to call in any state.
	Close() error
}

// lossNotifier is implemented by transports whose channel can fail
// asynchronously (stdio). The Conn registers a callback before Connect.
type lossNotifier interface {
	setOnLost(fn func(error))
}

// NewTransport creates a Transport for the given ServerConfig based on its
// Transport type. Returns ErrInvalidConfig if the config is not valid.
func NewTransport(cfg ServerConfig) (Transport, error) {
	switch cfg.Transport {
	case TransportStdio:
		return NewStdioTransport(cfg)
	case TransportStreamableHTTP:
		return NewHTTPTransport(cfg)
	default:
		// Infer from the populated fields when unset.
		if cfg.Command != "" {
			return NewStdioTransport(cfg)
		}
		if cfg.URL != "" {
			return NewHTTPTransport(cfg)
		}
		return nil, ErrInvalidConfig
	}
}
