package mcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// hostVersion is reported as clientInfo during the initialize handshake.
const hostVersion = "0.1.0"

// StdioTransport implements Transport for subprocess-based MCP servers.
// It spawns the configured command and speaks newline-delimited JSON-RPC
// over the subprocess's stdin/stdout. Stderr is drained to the logger.
type StdioTransport struct {
	command string
	args    []string
	env     map[string]string
	logger  *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	session *Session
	closed  bool

	onLost func(error)
}

var _ Transport = (*StdioTransport)(nil)
var _ lossNotifier = (*StdioTransport)(nil)

// NewStdioTransport creates a new StdioTransport from the given config.
// Returns ErrInvalidConfig if Command is empty.
func NewStdioTransport(cfg ServerConfig) (*StdioTransport, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("%w: stdio transport requires command", ErrInvalidConfig)
	}
	return &StdioTransport{
		command: cfg.Command,
		args:    cfg.Args,
		env:     cfg.Env,
		logger:  slog.Default().With("server", cfg.Name),
	}, nil
}

func (t *StdioTransport) setOnLost(fn func(error)) {
	t.onLost = fn
}

// Connect spawns the subprocess and starts the JSON-RPC session over its
// pipes. It does not perform the handshake; see Handshake.
func (t *StdioTransport) Connect(_ context.Context) error {
	cmd := exec.Command(t.command, t.args...)
	cmd.Env = mergeEnv(t.env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: stdin pipe: %v", ErrTransport, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: stdout pipe: %v", ErrTransport, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("%w: stderr pipe: %v", ErrTransport, err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: starting %s: %v", ErrTransport, t.command, err)
	}

	go t.drainStderr(stderr)

	session := NewSession(stdin, stdout)
	if t.onLost != nil {
		session.OnLost(t.onLost)
	}
	session.Start()

	t.mu.Lock()
	t.cmd = cmd
	t.session = session
	t.mu.Unlock()
	return nil
}

// Handshake performs the MCP initialize exchange and sends the initialized
// notification. An unsupported protocol version wraps ErrProtocol.
func (t *StdioTransport) Handshake(ctx context.Context) error {
	session := t.currentSession()
	if session == nil {
		return ErrNotConnected
	}

	params := initializeParams{
		ProtocolVersion: latestProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      implementationInfo{Name: "mcp-host", Version: hostVersion},
	}
	var result initializeResult
	if err := session.Call(ctx, methodInitialize, params, &result); err != nil {
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
	return session.Notify(ctx, methodInitialized, struct{}{})
}

// ListTools issues tools/list requests, following pagination cursors until
// the full list has been collected.
func (t *StdioTransport) ListTools(ctx context.Context) ([]ToolInfo, error) {
	session := t.currentSession()
	if session == nil {
		return nil, ErrNotConnected
	}
	return listToolsPaged(ctx, session)
}

// CallTool invokes a tool by its original server-side name. Server-reported
// tool failures come back as a ToolResult with IsError set, not as an error.
func (t *StdioTransport) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	session := t.currentSession()
	if session == nil {
		return nil, ErrNotConnected
	}
	return callToolOverSession(ctx, session, name, args)
}

// ListResources issues resources/list requests, following pagination.
// Servers without resource support yield an empty list.
func (t *StdioTransport) ListResources(ctx context.Context) ([]Resource, error) {
	session := t.currentSession()
	if session == nil {
		return nil, ErrNotConnected
	}
	return listResourcesPaged(ctx, session)
}

// ReadResource reads a resource by URI.
func (t *StdioTransport) ReadResource(ctx context.Context, uri string) (string, error) {
	session := t.currentSession()
	if session == nil {
		return "", ErrNotConnected
	}
	var result readResourceResult
	if err := session.Call(ctx, methodReadResource, readResourceParams{URI: uri}, &result); err != nil {
		return "", err
	}
	return flattenResourceContents(result.Contents), nil
}

// Close shuts down the session and terminates the subprocess. Idempotent.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	session := t.session
	cmd := t.cmd
	t.mu.Unlock()

	if session != nil {
		_ = session.Close()
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
	return nil
}

func (t *StdioTransport) currentSession() *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	return t.session
}

func (t *StdioTransport) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		t.logger.Debug("server stderr", "line", scanner.Text())
	}
}

// mergeEnv layers the configured overrides on top of the host environment.
func mergeEnv(overrides map[string]string) []string {
	env := os.Environ()
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}

// --- shared session-backed request helpers (used by stdio; HTTP mirrors
// the same flows over its own channel) ---

func listToolsPaged(ctx context.Context, session *Session) ([]ToolInfo, error) {
	var tools []ToolInfo
	cursor := ""
	for {
		var result listToolsResult
		if err := session.Call(ctx, methodListTools, listToolsParams{Cursor: cursor}, &result); err != nil {
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

func listResourcesPaged(ctx context.Context, session *Session) ([]Resource, error) {
	var resources []Resource
	cursor := ""
	for {
		var result listResourcesResult
		err := session.Call(ctx, methodListResources, listResourcesParams{Cursor: cursor}, &result)
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

func callToolOverSession(ctx context.Context, session *Session, name string, args map[string]any) (*ToolResult, error) {
	var result callToolResult
	err := session.Call(ctx, methodCallTool, callToolParams{Name: name, Arguments: args}, &result)
	if err != nil {
		var re *rpcError
		if errors.As(err, &re) {
			// Protocol-level tool failure: report it to the model as data.
			return &ToolResult{Content: re.Message, IsError: true}, nil
		}
		return nil, err
	}
	return &ToolResult{Content: result.text(), IsError: result.IsError}, nil
}

func flattenResourceContents(contents []resourceContents) string {
	var parts []string
	for _, c := range contents {
		if c.Text != "" {
			parts = append(parts, c.Text)
		} else if c.Blob != "" {
			parts = append(parts, fmt.Sprintf("[binary %s, %d bytes base64]", c.MIMEType, len(c.Blob)))
		}
	}
	return strings.Join(parts, "\n")
}
