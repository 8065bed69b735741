package mcp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JSON-RPC 2.0 framing and the MCP payloads the host actually uses.
// Messages are newline-delimited JSON on the stdio transport; the HTTP
// transport posts the same envelopes one per request.

const (
	jsonrpcVersion = "2.0"

	// latestProtocolVersion is the revision the host requests during the
	// initialize handshake.
	latestProtocolVersion = "2025-06-18"

	methodInitialize    = "initialize"
	methodInitialized   = "notifications/initialized"
	methodPing          = "ping"
	methodListTools     = "tools/list"
	methodCallTool      = "tools/call"
	methodListResources = "resources/list"
	methodReadResource  = "resources/read"
)

// supportedProtocolVersions are the revisions this host can speak, newest
// first. A server answering with anything else fails the handshake.
var supportedProtocolVersions = []string{
	"2025-06-18",
	"2025-03-26",
	"2024-11-05",
}

func versionSupported(v string) bool {
	for _, s := range supportedProtocolVersions {
		if s == v {
			return true
		}
	}
	return false
}

// rpcRequest is an outgoing request or, with ID omitted, a notification.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// rpcError is a JSON-RPC error object. It implements error so callers can
// inspect server-reported failures with errors.As.
type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("mcp: server error %d: %s", e.Code, e.Message)
}

// JSON-RPC error codes used when answering peer-initiated requests.
const (
	codeMethodNotFound = -32601
)

// rpcMessage is the incoming envelope: a response (ID + Result/Error), a
// peer-initiated request (ID + Method) or a notification (Method only).
type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func (m *rpcMessage) isResponse() bool {
	return m.ID != nil && (m.Result != nil || m.Error != nil)
}

// rpcReply is the outgoing response envelope for peer-initiated requests.
type rpcReply struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int64     `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

// --- initialize ---

type implementationInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    map[string]any     `json:"capabilities"`
	ClientInfo      implementationInfo `json:"clientInfo"`
}

type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    map[string]any     `json:"capabilities"`
	ServerInfo      implementationInfo `json:"serverInfo"`
}

// --- tools ---

type listToolsParams struct {
	Cursor string `json:"cursor,omitempty"`
}

type listToolsResult struct {
	Tools      []toolDef `json:"tools"`
	NextCursor string    `json:"nextCursor,omitempty"`
}

type toolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type callToolResult struct {
	Content []contentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// contentBlock is a tool result content item. Only text blocks are
// forwarded to the model; other kinds are summarized by type.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// text flattens the result content into a single string for the model.
func (r *callToolResult) text() string {
	var parts []string
	for _, b := range r.Content {
		switch b.Type {
		case "text":
			parts = append(parts, b.Text)
		default:
			parts = append(parts, fmt.Sprintf("[%s content]", b.Type))
		}
	}
	return strings.Join(parts, "\n")
}

// --- resources ---

type listResourcesParams struct {
	Cursor string `json:"cursor,omitempty"`
}

type listResourcesResult struct {
	Resources  []resourceDef `json:"resources"`
	NextCursor string        `json:"nextCursor,omitempty"`
}

type resourceDef struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MIMEType    string `json:"mimeType,omitempty"`
}

type readResourceParams struct {
	URI string `json:"uri"`
}

type readResourceResult struct {
	Contents []resourceContents `json:"contents"`
}

type resourceContents struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}
