// Package mcphost is an MCP host: it connects to a set of MCP tool
// servers, aggregates their tools into one collision-free registry, and
// drives an LLM conversation loop that can call those tools.
//
// Basic usage:
//
//	host, err := mcphost.NewHost([]mcp.ServerConfig{
//	    {Name: "calc", Command: "./calc-server"},
//	}, mcphost.WithModel("claude-3-5-sonnet-20241022"))
//	if err != nil { ... }
//	defer host.Close()
//
//	if err := host.Connect(ctx); err != nil { ... }
//
//	reply, err := host.Send(ctx, "what is 2+3?")
//
// Stream returns a TurnStream for incremental consumption of text deltas
// and tool-call events.
package mcphost
