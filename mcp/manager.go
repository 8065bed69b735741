package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ToolDescriptor is a registry entry: a tool under its registry-unique
// qualified name, together with the server that owns it.
type ToolDescriptor struct {
	// QualifiedName is the name the tool is exposed under. It equals the
	// original name when that name is unique across connected servers,
	// and "server.tool" otherwise.
	QualifiedName string

	// OriginalName is the tool's name as reported by its server.
	OriginalName string

	// Server is the owning connection's name.
	Server string

	// Description is the tool's description from the server.
	Description string

	// InputSchema is the raw JSON schema for the tool's input.
	InputSchema json.RawMessage
}

// route maps a qualified name to its owning connection and original name.
type route struct {
	conn *Conn
	tool string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger used by the Manager and its connections.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// Manager owns a set of named connections and the merged tool registry
// derived from them. The registry is single-writer (the Manager, on
// connect/disconnect) and multi-reader; Tools always observes a complete,
// consistent snapshot.
type Manager struct {
	logger *slog.Logger

	mu     sync.RWMutex
	conns  map[string]*Conn
	order  []string // configuration order, for deterministic iteration
	tools  []ToolDescriptor
	routes map[string]route
	closed bool
}

// NewManager creates a Manager from the given server configurations in
// order. Transports are constructed eagerly so invalid configs and
// duplicate names are rejected before any connection attempt. No
// connections are made until Connect or AddConnection.
func NewManager(specs []ServerConfig, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		logger: slog.Default(),
		conns:  make(map[string]*Conn),
		routes: make(map[string]route),
	}
	for _, opt := range opts {
		opt(m)
	}

	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("%w: server name required", ErrInvalidConfig)
		}
		if _, exists := m.conns[spec.Name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateServer, spec.Name)
		}
		transport, err := NewTransport(spec)
		if err != nil {
			return nil, fmt.Errorf("server %q: %w", spec.Name, err)
		}
		m.register(spec.Name, transport)
	}
	return m, nil
}

// register wires a named transport into the manager without connecting.
func (m *Manager) register(name string, transport Transport) *Conn {
	conn := NewConn(name, transport)
	conn.setLogger(m.logger)
	conn.OnLost(m.handleLost)
	m.conns[name] = conn
	m.order = append(m.order, name)
	return conn
}

// Connect establishes all registered connections concurrently. Per-server
// failures are independent: they are logged, collected into the returned
// joined error, and never block or fail sibling connections. The registry
// is rebuilt once every attempt has finished.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.RLock()
	conns := make([]*Conn, 0, len(m.order))
	for _, name := range m.order {
		conns = append(conns, m.conns[name])
	}
	m.mu.RUnlock()

	errs := make([]error, len(conns))
	var wg sync.WaitGroup
	for i, conn := range conns {
		wg.Add(1)
		go func(i int, conn *Conn) {
			defer wg.Done()
			if err := conn.Connect(ctx); err != nil {
				m.logger.Warn("server connect failed", "server", conn.Name(), "error", err)
				errs[i] = fmt.Errorf("server %q: %w", conn.Name(), err)
			}
		}(i, conn)
	}
	wg.Wait()

	m.mu.Lock()
	m.rebuild()
	m.mu.Unlock()

	return errors.Join(errs...)
}

// AddConnection registers, connects, and discovers a single server, then
// merges its tools into the registry. Duplicate names are rejected before
// any connection attempt.
func (m *Manager) AddConnection(ctx context.Context, spec ServerConfig) error {
	if spec.Name == "" {
		return fmt.Errorf("%w: server name required", ErrInvalidConfig)
	}
	transport, err := NewTransport(spec)
	if err != nil {
		return fmt.Errorf("server %q: %w", spec.Name, err)
	}
	return m.AddTransport(ctx, spec.Name, transport)
}

// AddTransport is AddConnection for a pre-built transport. This is how
// in-process servers (SDKServer) join the registry, and how tests inject
// mock transports.
func (m *Manager) AddTransport(ctx context.Context, name string, transport Transport) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosing
	}
	if _, exists := m.conns[name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicateServer, name)
	}
	conn := m.register(name, transport)
	m.mu.Unlock()

	if err := conn.Connect(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.rebuild()
	m.mu.Unlock()
	return nil
}

// RemoveConnection closes a connection and drops its tools from the
// registry.
func (m *Manager) RemoveConnection(name string) error {
	m.mu.Lock()
	conn, ok := m.conns[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrServerNotFound, name)
	}
	delete(m.conns, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.rebuild()
	m.mu.Unlock()

	return conn.Close()
}

// Tools returns a snapshot of the merged registry. The snapshot is
// complete and consistent: it never exposes a partially merged state, and
// it is safe to call concurrently with connects and disconnects.
func (m *Manager) Tools() []ToolDescriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ToolDescriptor, len(m.tools))
	copy(out, m.tools)
	return out
}

// ServerNames returns the registered connection names in configuration
// order.
func (m *Manager) ServerNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Conn returns the named connection, or nil if it is not registered.
func (m *Manager) Conn(name string) *Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conns[name]
}

// CallTool resolves a qualified tool name and forwards the call to the
// owning connection. A name absent from the registry returns
// ErrUnknownTool without contacting any connection.
func (m *Manager) CallTool(ctx context.Context, qualifiedName string, args map[string]any, timeout time.Duration) (*ToolResult, error) {
	m.mu.RLock()
	rt, ok := m.routes[qualifiedName]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, qualifiedName)
	}
	return rt.conn.CallTool(ctx, rt.tool, args, timeout)
}

// ReadResource reads a resource from the named server.
func (m *Manager) ReadResource(ctx context.Context, server, uri string) (string, error) {
	m.mu.RLock()
	conn, ok := m.conns[server]
	m.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %q", ErrServerNotFound, server)
	}
	return conn.ReadResource(ctx, uri)
}

// Close closes every connection, tolerating individual failures, and
// always completes. Idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	conns := make([]*Conn, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	m.tools = nil
	m.routes = make(map[string]route)
	m.mu.Unlock()

	var errs []error
	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			m.logger.Warn("server close failed", "server", conn.Name(), "error", err)
			errs = append(errs, fmt.Errorf("server %q: %w", conn.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// handleLost reacts to an asynchronous connection loss: the connection has
// already marked itself Disconnected, so rebuilding drops its tools.
func (m *Manager) handleLost(name string, err error) {
	m.logger.Warn("server disconnected", "server", name, "error", err)
	m.mu.Lock()
	m.rebuild()
	m.mu.Unlock()
}

// rebuild recomputes the registry from the currently Connected
// connections. Callers must hold m.mu.
//
// Collision rule: a tool keeps its bare name only while exactly one
// connected server reports that name; any name claimed by two or more
// servers is exposed as "server.tool" for every claimant, and the bare
// form never appears. Servers are visited in sorted-name order, so the
// outcome depends only on the configuration, never on the order in which
// connections happened to complete.
func (m *Manager) rebuild() {
	names := make([]string, 0, len(m.conns))
	for name, conn := range m.conns {
		if conn.State() == StateConnected {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	claims := make(map[string]int)
	for _, name := range names {
		for _, tool := range m.conns[name].Tools() {
			claims[tool.Name]++
		}
	}

	tools := make([]ToolDescriptor, 0, len(claims))
	routes := make(map[string]route, len(claims))
	for _, name := range names {
		conn := m.conns[name]
		for _, tool := range conn.Tools() {
			qualified := tool.Name
			if claims[tool.Name] > 1 {
				qualified = name + "." + tool.Name
			}
			// A bare name may still clash with an earlier qualified
			// name (a tool literally named "a.b"). Qualify, never
			// leave ambiguity.
			if _, taken := routes[qualified]; taken {
				qualified = name + "." + tool.Name
				if _, stillTaken := routes[qualified]; stillTaken {
					m.logger.Warn("dropping duplicate tool", "server", name, "tool", tool.Name)
					continue
				}
			}
			routes[qualified] = route{conn: conn, tool: tool.Name}
			tools = append(tools, ToolDescriptor{
				QualifiedName: qualified,
				OriginalName:  tool.Name,
				Server:        name,
				Description:   tool.Description,
				InputSchema:   tool.InputSchema,
			})
		}
	}

	m.tools = tools
	m.routes = routes
}
