package mcp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockTransport is a scriptable Transport for connection and manager tests.
type mockTransport struct {
	mu sync.Mutex

	tools     []ToolInfo
	resources []Resource

	connectErr   error
	handshakeErr error
	listErr      error

	callFn func(ctx context.Context, name string, args map[string]any) (*ToolResult, error)

	onLost func(error)

	connectCalls int
	callCalls    int
	closeCalls   int
}

var _ Transport = (*mockTransport)(nil)
var _ lossNotifier = (*mockTransport)(nil)

func (m *mockTransport) Connect(ctx context.Context) error {
	m.mu.Lock()
	m.connectCalls++
	m.mu.Unlock()
	return m.connectErr
}

func (m *mockTransport) Handshake(ctx context.Context) error {
	return m.handshakeErr
}

func (m *mockTransport) ListTools(ctx context.Context) ([]ToolInfo, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.tools, nil
}

func (m *mockTransport) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	m.mu.Lock()
	m.callCalls++
	m.mu.Unlock()
	if m.callFn != nil {
		return m.callFn(ctx, name, args)
	}
	return &ToolResult{Content: "ok"}, nil
}

func (m *mockTransport) ListResources(ctx context.Context) ([]Resource, error) {
	return m.resources, nil
}

func (m *mockTransport) ReadResource(ctx context.Context, uri string) (string, error) {
	return "contents of " + uri, nil
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	m.closeCalls++
	m.mu.Unlock()
	return nil
}

func (m *mockTransport) setOnLost(fn func(error)) {
	m.onLost = fn
}

func (m *mockTransport) lose(err error) {
	if m.onLost != nil {
		m.onLost(err)
	}
}

func TestConnConnectReachesConnected(t *testing.T) {
	transport := &mockTransport{tools: []ToolInfo{{Name: "add"}, {Name: "sub"}}}
	conn := NewConn("calc", transport)

	assert.Equal(t, StateDisconnected, conn.State())
	require.NoError(t, conn.Connect(context.Background()))
	assert.Equal(t, StateConnected, conn.State())
	assert.Len(t, conn.Tools(), 2)
}

func TestConnHandshakeFailureAbandons(t *testing.T) {
	transport := &mockTransport{handshakeErr: ErrProtocol}
	conn := NewConn("bad", transport)

	err := conn.Connect(context.Background())
	require.ErrorIs(t, err, ErrProtocol)
	assert.Equal(t, StateDisconnected, conn.State())
	assert.Equal(t, 1, transport.closeCalls)
	assert.Empty(t, conn.Tools())
}

func TestConnDiscoveryFailureAbandons(t *testing.T) {
	transport := &mockTransport{listErr: errors.New("boom")}
	conn := NewConn("bad", transport)

	err := conn.Connect(context.Background())
	require.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, StateDisconnected, conn.State())
}

func TestConnCallToolBeforeConnect(t *testing.T) {
	conn := NewConn("calc", &mockTransport{})
	_, err := conn.CallTool(context.Background(), "add", nil, 0)
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestConnCallToolTimeout(t *testing.T) {
	transport := &mockTransport{
		callFn: func(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	conn := NewConn("slow", transport)
	require.NoError(t, conn.Connect(context.Background()))

	_, err := conn.CallTool(context.Background(), "hang", nil, 30*time.Millisecond)
	require.ErrorIs(t, err, ErrToolTimeout)

	// The connection survives a timed-out call.
	assert.Equal(t, StateConnected, conn.State())
	transport.callFn = nil
	result, err := conn.CallTool(context.Background(), "fast", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Content)
}

func TestConnConcurrentCalls(t *testing.T) {
	transport := &mockTransport{}
	conn := NewConn("calc", transport)
	require.NoError(t, conn.Connect(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := conn.CallTool(context.Background(), "add", nil, time.Second)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, transport.callCalls)
}

func TestConnCloseIsIdempotent(t *testing.T) {
	transport := &mockTransport{tools: []ToolInfo{{Name: "add"}}}
	conn := NewConn("calc", transport)
	require.NoError(t, conn.Connect(context.Background()))

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.Equal(t, 1, transport.closeCalls)
	assert.Equal(t, StateDisconnected, conn.State())

	_, err := conn.CallTool(context.Background(), "add", nil, 0)
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestConnLossFiresHandlerOnce(t *testing.T) {
	transport := &mockTransport{tools: []ToolInfo{{Name: "add"}}}
	conn := NewConn("calc", transport)

	var lostName string
	var lostCount int
	conn.OnLost(func(name string, err error) {
		lostName = name
		lostCount++
	})
	require.NoError(t, conn.Connect(context.Background()))

	transport.lose(ErrConnectionLost)
	transport.lose(ErrConnectionLost) // second signal is suppressed

	assert.Equal(t, "calc", lostName)
	assert.Equal(t, 1, lostCount)
	assert.Equal(t, StateDisconnected, conn.State())
	assert.Empty(t, conn.Tools())
}

func TestConnLossDuringCloseSuppressed(t *testing.T) {
	transport := &mockTransport{}
	conn := NewConn("calc", transport)

	fired := false
	conn.OnLost(func(name string, err error) { fired = true })
	require.NoError(t, conn.Connect(context.Background()))

	require.NoError(t, conn.Close())
	transport.lose(errors.New("pipe closed"))
	assert.False(t, fired)
}

func TestConnReadResource(t *testing.T) {
	transport := &mockTransport{resources: []Resource{{URI: "file:///a", Name: "a"}}}
	conn := NewConn("fs", transport)
	require.NoError(t, conn.Connect(context.Background()))

	resources, err := conn.Resources(context.Background())
	require.NoError(t, err)
	require.Len(t, resources, 1)

	content, err := conn.ReadResource(context.Background(), "file:///a")
	require.NoError(t, err)
	assert.Equal(t, "contents of file:///a", content)
}
