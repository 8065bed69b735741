package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMCPServer is a minimal streamable-http MCP endpoint for tests: it
// issues a session ID on initialize and serves one calculator tool.
func newMCPServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		reply := rpcReply{JSONRPC: jsonrpcVersion}
		if req.ID != nil {
			reply.ID = *req.ID
		}

		switch req.Method {
		case methodInitialize:
			w.Header().Set(sessionIDHeader, "sess-123")
			reply.Result = initializeResult{
				ProtocolVersion: latestProtocolVersion,
				ServerInfo:      implementationInfo{Name: "test-server", Version: "1.0"},
			}
		case methodInitialized:
			w.WriteHeader(http.StatusAccepted)
			return
		case methodListTools:
			// The session ID issued at initialize must come back.
			assert.Equal(t, "sess-123", r.Header.Get(sessionIDHeader))
			reply.Result = listToolsResult{Tools: []toolDef{{Name: "add", Description: "Add"}}}
		case methodCallTool:
			var params callToolParams
			require.NoError(t, json.Unmarshal(req.Params, &params))
			assert.Equal(t, "add", params.Name)
			reply.Result = callToolResult{Content: []contentBlock{{Type: "text", Text: "5"}}}
		default:
			reply.Error = &rpcError{Code: codeMethodNotFound, Message: "method not found"}
		}

		require.NoError(t, json.NewEncoder(w).Encode(reply))
	}))
}

func TestHTTPTransportFullFlow(t *testing.T) {
	server := newMCPServer(t)
	defer server.Close()

	transport, err := NewHTTPTransport(ServerConfig{Name: "remote", URL: server.URL})
	require.NoError(t, err)
	defer transport.Close()

	ctx := context.Background()
	require.NoError(t, transport.Connect(ctx))
	require.NoError(t, transport.Handshake(ctx))

	tools, err := transport.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "add", tools[0].Name)

	result, err := transport.CallTool(ctx, "add", map[string]any{"a": 2, "b": 3})
	require.NoError(t, err)
	assert.Equal(t, "5", result.Content)
	assert.False(t, result.IsError)
}

func TestHTTPTransportUnsupportedVersion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcMessage
		_ = json.NewDecoder(r.Body).Decode(&req)
		reply := rpcReply{JSONRPC: jsonrpcVersion, Result: initializeResult{ProtocolVersion: "1999-01-01"}}
		if req.ID != nil {
			reply.ID = *req.ID
		}
		_ = json.NewEncoder(w).Encode(reply)
	}))
	defer server.Close()

	transport, err := NewHTTPTransport(ServerConfig{Name: "old", URL: server.URL})
	require.NoError(t, err)
	require.NoError(t, transport.Connect(context.Background()))

	err = transport.Handshake(context.Background())
	require.ErrorIs(t, err, ErrProtocol)
}

func TestHTTPTransportServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	transport, err := NewHTTPTransport(ServerConfig{Name: "down", URL: server.URL})
	require.NoError(t, err)
	require.NoError(t, transport.Connect(context.Background()))

	err = transport.Handshake(context.Background())
	require.ErrorIs(t, err, ErrTransport)
}

func TestHTTPTransportCallBeforeConnect(t *testing.T) {
	transport, err := NewHTTPTransport(ServerConfig{Name: "x", URL: "http://localhost:1"})
	require.NoError(t, err)

	_, err = transport.ListTools(context.Background())
	require.ErrorIs(t, err, ErrNotConnected)
}
