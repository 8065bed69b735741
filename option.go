package mcphost

import (
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/shopspring/decimal"
)

// Option configures a Host via the functional options pattern.
type Option func(*hostOptions)

// hostOptions holds all configurable fields set via Option functions.
type hostOptions struct {
	model            anthropic.Model
	maxTokens        int
	maxToolRounds    int
	systemPrompt     string
	callTimeout      time.Duration
	maxBudget        decimal.Decimal
	streamBufferSize int
	logger           *slog.Logger
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (o *hostOptions) applyDefaults() {
	if o.model == "" {
		o.model = DefaultModel
	}
	if o.maxTokens == 0 {
		o.maxTokens = DefaultMaxTokens
	}
	if o.maxToolRounds == 0 {
		o.maxToolRounds = DefaultMaxToolRounds
	}
	if o.callTimeout == 0 {
		o.callTimeout = DefaultCallTimeout
	}
	if o.streamBufferSize == 0 {
		o.streamBufferSize = DefaultStreamBufferSize
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
}

// resolveOptions applies all option functions and fills defaults.
func resolveOptions(opts []Option) hostOptions {
	var o hostOptions
	for _, fn := range opts {
		fn(&o)
	}
	o.applyDefaults()
	return o
}

// WithModel sets the model to use.
func WithModel(model anthropic.Model) Option {
	return func(o *hostOptions) { o.model = model }
}

// WithMaxTokens sets the maximum output tokens per response.
func WithMaxTokens(n int) Option {
	return func(o *hostOptions) { o.maxTokens = n }
}

// WithMaxToolRounds bounds the number of tool-use rounds in one turn.
// Negative disables the bound.
func WithMaxToolRounds(n int) Option {
	return func(o *hostOptions) { o.maxToolRounds = n }
}

// WithSystemPrompt sets the system prompt sent with every request.
func WithSystemPrompt(prompt string) Option {
	return func(o *hostOptions) { o.systemPrompt = prompt }
}

// WithCallTimeout sets the per-call timeout for tool calls. A timed-out
// call is reported to the model as an error result, not a host failure.
func WithCallTimeout(d time.Duration) Option {
	return func(o *hostOptions) { o.callTimeout = d }
}

// WithMaxBudget sets a cost limit in USD across the host's lifetime.
// The turn that crosses the limit ends with ErrBudgetExhausted.
func WithMaxBudget(usd decimal.Decimal) Option {
	return func(o *hostOptions) { o.maxBudget = usd }
}

// WithStreamBufferSize sets the event channel buffer for Stream.
func WithStreamBufferSize(n int) Option {
	return func(o *hostOptions) { o.streamBufferSize = n }
}

// WithLogger sets the structured logger used by the host and its
// connections.
func WithLogger(logger *slog.Logger) Option {
	return func(o *hostOptions) { o.logger = logger }
}
