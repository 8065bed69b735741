package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
)

const sessionIDHeader = "Mcp-Session-Id"

// HTTPTransport implements Transport for remote MCP servers using the
// streamable-http transport: each JSON-RPC message is POSTed to the
// endpoint URL and the response body carries the JSON-RPC reply. The
// session ID issued during initialize is echoed on subsequent requests.
type HTTPTransport struct {
	url    string
	client *http.Client

	nextID    atomic.Int64
	sessionID atomic.Pointer[string]

	mu     sync.Mutex
	ready  bool
	closed bool
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a new HTTPTransport from the given config.
// Returns ErrInvalidConfig if URL is empty.
func NewHTTPTransport(cfg ServerConfig) (*HTTPTransport, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: streamable-http transport requires URL", ErrInvalidConfig)
	}
	return &HTTPTransport{
		url:    cfg.URL,
		client: &http.Client{},
	}, nil
}

// Connect marks the transport ready. HTTP has no persistent channel to
// open; reachability surfaces on the first request.
func (t *HTTPTransport) Connect(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosing
	}
	t.ready = true
	return nil
}

// Handshake performs the initialize exchange over HTTP and records the
// server-issued session ID.
func (t *HTTPTransport) Handshake(ctx context.Context) error {
	params := initializeParams{
		ProtocolVersion: latestProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      implementationInfo{Name: "mcp-host", Version: hostVersion},
	}
	var result initializeResult
	if err := t.call(ctx, methodInitialize, params, &result); err != nil {
		var re *rpcError
		if errors.As(err, &re) {
			return fmt.Errorf("%w: initialize rejected: %v", ErrProtocol, re)
		}
		return err
	}
	if !versionSupported(result.ProtocolVersion) {
		return fmt.Errorf("%w: server speaks %q, host supports %v",
			ErrProtocol, result.ProtocolVersion, supportedProtocolVersions)
	}
	return t.notify(ctx, methodInitialized, struct{}{})
}

// ListTools issues tools/list requests, following pagination cursors.
func (t *HTTPTransport) ListTools(ctx context.Context) ([]ToolInfo, error) {
	var tools []ToolInfo
	cursor := ""
	for {
		var result listToolsResult
		if err := t.call(ctx, methodListTools, listToolsParams{Cursor: cursor}, &result); err != nil {
			return nil, err
		}
		for _, td := range result.Tools {
			tools = append(tools, ToolInfo{
				Name:        td.Name,
				Description: td.Description,
				InputSchema: td.InputSchema,
			})
		}
		if result.NextCursor == "" {
			return tools, nil
		}
		cursor = result.NextCursor
	}
}

// CallTool invokes a tool by its original server-side name.
func (t *HTTPTransport) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	var result callToolResult
	err := t.call(ctx, methodCallTool, callToolParams{Name: name, Arguments: args}, &result)
	if err != nil {
		var re *rpcError
		if errors.As(err, &re) {
			return &ToolResult{Content: re.Message, IsError: true}, nil
		}
		return nil, err
	}
	return &ToolResult{Content: result.text(), IsError: result.IsError}, nil
}

// ListResources issues resources/list requests, following pagination.
func (t *HTTPTransport) ListResources(ctx context.Context) ([]Resource, error) {
	var resources []Resource
	cursor := ""
	for {
		var result listResourcesResult
		err := t.call(ctx, methodListResources, listResourcesParams{Cursor: cursor}, &result)
		if err != nil {
			var re *rpcError
			if errors.As(err, &re) && re.Code == codeMethodNotFound {
				return nil, nil
			}
			return nil, err
		}
		for _, rd := range result.Resources {
			resources = append(resources, Resource{
				URI:         rd.URI,
				Name:        rd.Name,
				Description: rd.Description,
				MIMEType:    rd.MIMEType,
			})
		}
		if result.NextCursor == "" {
			return resources, nil
		}
		cursor = result.NextCursor
	}
}

// ReadResource reads a resource by URI.
func (t *HTTPTransport) ReadResource(ctx context.Context, uri string) (string, error) {
	var result readResourceResult
	if err := t.call(ctx, methodReadResource, readResourceParams{URI: uri}, &result); err != nil {
		return "", err
	}
	return flattenResourceContents(result.Contents), nil
}

// Close marks the transport closed. Idempotent.
func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.ready = false
	return nil
}

// call POSTs one JSON-RPC request and decodes the response from the body.
func (t *HTTPTransport) call(ctx context.Context, method string, params, result any) error {
	t.mu.Lock()
	if !t.ready || t.closed {
		t.mu.Unlock()
		return ErrNotConnected
	}
	t.mu.Unlock()

	id := t.nextID.Add(1)
	body, err := t.post(ctx, rpcRequest{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: params})
	if err != nil {
		return err
	}

	var msg rpcMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", ErrProtocol, method, err)
	}
	if msg.Error != nil {
		return msg.Error
	}
	if result != nil && len(msg.Result) > 0 {
		if err := json.Unmarshal(msg.Result, result); err != nil {
			return fmt.Errorf("%w: decoding %s result: %v", ErrProtocol, method, err)
		}
	}
	return nil
}

func (t *HTTPTransport) notify(ctx context.Context, method string, params any) error {
	_, err := t.post(ctx, rpcRequest{JSONRPC: jsonrpcVersion, Method: method, Params: params})
	return err
}

func (t *HTTPTransport) post(ctx context.Context, msg rpcRequest) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if sid := t.sessionID.Load(); sid != nil {
		req.Header.Set(sessionIDHeader, *sid)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get(sessionIDHeader); sid != "" {
		t.sessionID.Store(&sid)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d from %s", ErrTransport, resp.StatusCode, t.url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMessageSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrTransport, err)
	}
	return body, nil
}
