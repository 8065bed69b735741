package mcphost

import "time"

// Host defaults.
const (
	// DefaultModel is the model used when no model is specified.
	DefaultModel = "claude-3-5-sonnet-20241022"

	// DefaultMaxTokens is the default maximum output tokens per response.
	DefaultMaxTokens = 1000

	// DefaultMaxToolRounds bounds tool-use rounds within one user turn.
	DefaultMaxToolRounds = 8

	// DefaultCallTimeout is the per-call timeout applied to tool calls.
	DefaultCallTimeout = 60 * time.Second

	// DefaultStreamBufferSize is the channel buffer size for turn events.
	DefaultStreamBufferSize = 64
)
