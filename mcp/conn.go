package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ConnState is the lifecycle state of a Conn.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateHandshaking
	StateDiscovering
	StateConnected
	StateClosing
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateDiscovering:
		return "discovering"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("ConnState(%d)", int32(s))
	}
}

// Conn is the host's managed relationship to one MCP server: an
// operator-assigned name, a Transport, the discovered tool list, and a
// lifecycle state machine
//
//	Disconnected → Connecting → Handshaking → Discovering → Connected
//	            → Closing → Disconnected
//
// A failure in Connecting or Handshaking abandons this connection only.
// A transport failure while Connected moves the Conn to Disconnected and
// fires the registered loss handler.
type Conn struct {
	name      string
	transport Transport
	logger    *slog.Logger

	state atomic.Int32

	mu    sync.Mutex
	tools []ToolInfo

	onLost func(name string, err error)
}

// NewConn creates a Conn in the Disconnected state. The loss handler, if
// any, must be registered before Connect.
func NewConn(name string, transport Transport) *Conn {
	c := &Conn{
		name:      name,
		transport: transport,
		logger:    slog.Default().With("server", name),
	}
	c.state.Store(int32(StateDisconnected))
	return c
}

// Name returns the operator-assigned connection name.
func (c *Conn) Name() string {
	return c.name
}

// State returns the current lifecycle state.
func (c *Conn) State() ConnState {
	return ConnState(c.state.Load())
}

// OnLost registers a handler for asynchronous transport failures. Must be
// called before Connect.
func (c *Conn) OnLost(fn func(name string, err error)) {
	c.onLost = fn
}

func (c *Conn) setLogger(logger *slog.Logger) {
	c.logger = logger.With("server", c.name)
}

// Connect drives the connection to the Connected state: open the channel,
// perform the handshake, discover tools. Any failure closes the transport
// and leaves the Conn Disconnected; other connections are unaffected.
func (c *Conn) Connect(ctx context.Context) error {
	if ln, ok := c.transport.(lossNotifier); ok {
		ln.setOnLost(c.handleLost)
	}

	c.state.Store(int32(StateConnecting))
	if err := c.transport.Connect(ctx); err != nil {
		c.abandon()
		return err
	}

	c.state.Store(int32(StateHandshaking))
	if err := c.transport.Handshake(ctx); err != nil {
		c.abandon()
		return err
	}

	c.state.Store(int32(StateDiscovering))
	tools, err := c.transport.ListTools(ctx)
	if err != nil {
		c.abandon()
		return fmt.Errorf("%w: listing tools: %v", ErrTransport, err)
	}

	c.mu.Lock()
	c.tools = tools
	c.mu.Unlock()

	c.state.Store(int32(StateConnected))
	c.logger.Info("connected", "tools", len(tools))
	return nil
}

// Tools returns the tools discovered from this server, in the order the
// server reported them. Valid once Connected; empty means the server
// offers no tools.
func (c *Conn) Tools() []ToolInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ToolInfo, len(c.tools))
	copy(out, c.tools)
	return out
}

// CallTool invokes a tool by its original server-side name. A timeout > 0
// bounds this call only; expiry returns ErrToolTimeout and the connection
// stays usable. Multiple calls may be outstanding concurrently.
func (c *Conn) CallTool(ctx context.Context, name string, args map[string]any, timeout time.Duration) (*ToolResult, error) {
	switch c.State() {
	case StateConnected:
	case StateClosing:
		return nil, ErrClosing
	default:
		return nil, ErrNotConnected
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := c.transport.CallTool(ctx, name, args)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %s", ErrToolTimeout, name, timeout)
		}
		return nil, err
	}
	return result, nil
}

// ReadResource reads a resource by URI from this server.
func (c *Conn) ReadResource(ctx context.Context, uri string) (string, error) {
	if c.State() != StateConnected {
		return "", ErrNotConnected
	}
	return c.transport.ReadResource(ctx, uri)
}

// Resources lists the resources this server exposes.
func (c *Conn) Resources(ctx context.Context) ([]Resource, error) {
	if c.State() != StateConnected {
		return nil, ErrNotConnected
	}
	return c.transport.ListResources(ctx)
}

// Close releases the transport. Idempotent and safe in any state; a second
// call is a no-op.
func (c *Conn) Close() error {
	prev := ConnState(c.state.Swap(int32(StateClosing)))
	if prev == StateClosing || prev == StateDisconnected {
		c.state.Store(int32(StateDisconnected))
		return nil
	}
	err := c.transport.Close()
	c.clearTools()
	c.state.Store(int32(StateDisconnected))
	return err
}

// abandon tears down a connection that failed before reaching Connected.
func (c *Conn) abandon() {
	_ = c.transport.Close()
	c.clearTools()
	c.state.Store(int32(StateDisconnected))
}

func (c *Conn) clearTools() {
	c.mu.Lock()
	c.tools = nil
	c.mu.Unlock()
}

// handleLost reacts to an asynchronous transport failure. Deliberate
// shutdown does not reach here; the Session suppresses the callback when
// closing was requested.
func (c *Conn) handleLost(err error) {
	state := ConnState(c.state.Load())
	if state == StateClosing || state == StateDisconnected {
		return
	}
	c.state.Store(int32(StateDisconnected))
	c.clearTools()
	c.logger.Warn("connection lost", "error", err)
	if c.onLost != nil {
		c.onLost(c.name, err)
	}
}
