package mcphost

import "errors"

// Sentinel errors reported when a turn ends abnormally.
var (
	// ErrModelUnavailable indicates the model request failed after the
	// SDK exhausted its retries.
	ErrModelUnavailable = errors.New("mcphost: model unavailable")

	// ErrToolLoopExceeded indicates the model kept requesting tool calls
	// past the configured round bound.
	ErrToolLoopExceeded = errors.New("mcphost: tool loop exceeded")

	// ErrCancelled indicates the turn's context was cancelled.
	ErrCancelled = errors.New("mcphost: cancelled")

	// ErrBudgetExhausted indicates the configured cost limit was reached.
	ErrBudgetExhausted = errors.New("mcphost: budget exhausted")
)
