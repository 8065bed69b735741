package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ntk221/mcp-client-example/internal/schema"
)

// SDKServer is an in-process MCP server that wraps Go functions as tools.
// It implements Transport directly, so the Manager treats it exactly like
// an external server (same discovery, same registry, same collision
// rules) with no subprocess and no wire framing.
//
// Usage:
//
//	srv := mcp.NewSDKServer("calc")
//	mcp.AddTool(srv, "add", "Add two integers", func(ctx context.Context, in AddInput) (string, error) {
//	    return strconv.Itoa(in.A + in.B), nil
//	})
//	mgr.AddTransport(ctx, srv.Name(), srv)
type SDKServer struct {
	name string

	mu    sync.Mutex
	tools []sdkTool
}

type sdkTool struct {
	name        string
	description string
	schema      json.RawMessage
	handler     func(ctx context.Context, input json.RawMessage) (string, error)
}

var _ Transport = (*SDKServer)(nil)

// NewSDKServer creates a new in-process server with the given name.
func NewSDKServer(name string) *SDKServer {
	return &SDKServer{name: name}
}

// Name returns the server name.
func (s *SDKServer) Name() string {
	return s.name
}

// AddTool registers a typed Go function as a tool. The input type T is
// used for automatic JSON Schema generation.
func AddTool[T any](s *SDKServer, name, description string, handler func(ctx context.Context, input T) (string, error)) {
	inputSchema := schema.Generate[T]()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools = append(s.tools, sdkTool{
		name:        name,
		description: description,
		schema:      inputSchema,
		handler: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var input T
			if err := json.Unmarshal(raw, &input); err != nil {
				return "", fmt.Errorf("invalid input: %w", err)
			}
			return handler(ctx, input)
		},
	})
}

// Connect is a no-op; the server lives in-process.
func (s *SDKServer) Connect(_ context.Context) error { return nil }

// Handshake is a no-op; there is no protocol version to negotiate.
func (s *SDKServer) Handshake(_ context.Context) error { return nil }

// ListTools returns the registered tools in registration order.
func (s *SDKServer) ListTools(_ context.Context) ([]ToolInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos := make([]ToolInfo, len(s.tools))
	for i, t := range s.tools {
		infos[i] = ToolInfo{Name: t.name, Description: t.description, InputSchema: t.schema}
	}
	return infos, nil
}

// CallTool runs a registered handler. Handler errors become error results
// so the model sees them as data, matching external server behavior.
func (s *SDKServer) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	s.mu.Lock()
	var handler func(context.Context, json.RawMessage) (string, error)
	for _, t := range s.tools {
		if t.name == name {
			handler = t.handler
			break
		}
	}
	s.mu.Unlock()

	if handler == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	out, err := handler(ctx, raw)
	if err != nil {
		return &ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return &ToolResult{Content: out}, nil
}

// ListResources returns nothing; SDK servers expose only tools.
func (s *SDKServer) ListResources(_ context.Context) ([]Resource, error) {
	return nil, nil
}

// ReadResource is unsupported for SDK servers.
func (s *SDKServer) ReadResource(_ context.Context, uri string) (string, error) {
	return "", fmt.Errorf("%w: no resource %q", ErrServerNotFound, uri)
}

// Close is a no-op.
func (s *SDKServer) Close() error { return nil }
