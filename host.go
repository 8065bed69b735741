package mcphost

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ntk221/mcp-client-example/mcp"
)

// Host ties a connection manager to a conversation engine: it connects
// to the configured MCP servers, aggregates their tools, and answers
// user turns with tool calls routed to the right server.
type Host struct {
	manager *Manager
	engine  *Engine
	opts    hostOptions
}

// Manager is re-exported so callers configuring a Host need only this
// package plus mcp.ServerConfig.
type Manager = mcp.Manager

// NewHost creates a host for the given server specs. Nothing connects
// until Connect is called.
func NewHost(specs []mcp.ServerConfig, opts ...Option) (*Host, error) {
	resolved := resolveOptions(opts)

	manager, err := mcp.NewManager(specs, mcp.WithLogger(resolved.logger))
	if err != nil {
		return nil, err
	}

	return &Host{
		manager: manager,
		engine:  NewEngine(manager, opts...),
		opts:    resolved,
	}, nil
}

// Connect establishes all server connections concurrently. A failing
// server never blocks the others; the returned error joins the per-server
// failures and the host stays usable with whatever connected.
func (h *Host) Connect(ctx context.Context) error {
	err := h.manager.Connect(ctx)
	tools := h.manager.Tools()
	h.opts.logger.Info("host connected",
		"servers", len(h.manager.ServerNames()),
		"tools", len(tools))
	return err
}

// Send runs one user turn to completion and returns the final text.
func (h *Host) Send(ctx context.Context, text string) (string, error) {
	return h.engine.Send(ctx, text)
}

// Stream runs one user turn and returns an iterator over its events.
func (h *Host) Stream(ctx context.Context, text string) *TurnStream {
	return h.engine.Stream(ctx, text)
}

// Manager returns the connection manager, for adding or removing servers
// at runtime.
func (h *Host) Manager() *Manager {
	return h.manager
}

// Engine returns the conversation engine.
func (h *Host) Engine() *Engine {
	return h.engine
}

// Close shuts down all connections. Errors from individual connections
// are joined; Close is idempotent.
func (h *Host) Close() error {
	return h.manager.Close()
}

// Chat runs an interactive loop: it reads lines from in, streams each
// turn's text to out, and annotates tool calls. "quit" or EOF ends the
// loop.
func (h *Host) Chat(ctx context.Context, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Type your queries or 'quit' to exit.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\nQuery: ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if strings.EqualFold(query, "quit") {
			return nil
		}

		stream := h.Stream(ctx, query)
		for stream.Next() {
			switch event := stream.Current().(type) {
			case *TextDeltaEvent:
				fmt.Fprint(out, event.Delta)
			case *ToolCallEvent:
				fmt.Fprintf(out, "\n[calling %s with args %s]\n", event.QualifiedName, string(event.Args))
			case *ToolResultEvent:
				if event.IsError {
					fmt.Fprintf(out, "[tool error: %s]\n", event.Content)
				}
			case *TurnCompleteEvent:
				if event.Err != nil {
					fmt.Fprintf(out, "\nerror: %s\n", event.Err)
				}
			}
		}
		fmt.Fprintln(out)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
