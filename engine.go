package mcphost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ntk221/mcp-client-example/internal/budget"
	"github.com/ntk221/mcp-client-example/internal/engine"
	"github.com/ntk221/mcp-client-example/mcp"
)

// ToolSource provides the tool registry the engine exposes to the model.
// *mcp.Manager satisfies it.
type ToolSource interface {
	Tools() []mcp.ToolDescriptor
	CallTool(ctx context.Context, qualifiedName string, args map[string]any, timeout time.Duration) (*mcp.ToolResult, error)
}

// Engine owns one conversation and runs turns against the model. A Host
// wraps an Engine with connection management; the Engine can also be
// used directly with any ToolSource.
type Engine struct {
	streamer engine.MessageStreamer
	tools    ToolSource
	opts     hostOptions
	budget   *budget.Tracker
	logger   *slog.Logger

	mu   sync.Mutex
	conv *Conversation
}

// NewEngine creates an engine over the given tool source. The Anthropic
// client reads its API key from the environment.
func NewEngine(tools ToolSource, opts ...Option) *Engine {
	resolved := resolveOptions(opts)
	client := anthropic.NewClient()

	var tracker *budget.Tracker
	if !resolved.maxBudget.IsZero() {
		tracker = budget.NewTracker(resolved.maxBudget, budget.DefaultPricing)
	}

	return &Engine{
		streamer: engine.NewMessageStreamer(&client.Messages),
		tools:    tools,
		opts:     resolved,
		budget:   tracker,
		logger:   resolved.logger,
		conv:     NewConversation(),
	}
}

// Conversation returns the engine's conversation history.
func (e *Engine) Conversation() *Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conv
}

// Reset discards the history and starts a fresh conversation.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conv = NewConversation()
}

// Send runs one user turn to completion and returns the assistant's
// final text. Turns are serialized: a second Send waits for the first.
func (e *Engine) Send(ctx context.Context, text string) (string, error) {
	stream := e.Stream(ctx, text)
	for stream.Next() {
	}
	result := stream.Result()
	if result == nil {
		return "", ErrCancelled
	}
	return result.FinalText, result.Err
}

// Stream runs one user turn and returns an iterator over its events.
// The turn executes in a background goroutine; the stream ends with a
// TurnCompleteEvent.
func (e *Engine) Stream(ctx context.Context, text string) *TurnStream {
	stream := newTurnStream(e.opts.streamBufferSize)

	go func() {
		defer close(stream.events)

		e.mu.Lock()
		defer e.mu.Unlock()

		e.conv.Append(anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
		e.logger.Debug("turn started", "conversation", e.conv.ID, "model", e.opts.model)

		maxRounds := e.opts.maxToolRounds
		if maxRounds < 0 {
			maxRounds = 0
		}

		cfg := engine.LoopConfig{
			Streamer:      e.streamer,
			Tools:         &toolSourceAdapter{source: e.tools, timeout: e.opts.callTimeout},
			Model:         e.opts.model,
			MaxTokens:     e.opts.maxTokens,
			MaxToolRounds: maxRounds,
			Messages:      &e.conv.Messages,
			Sink:          &channelSink{events: stream.events},
		}
		if e.opts.systemPrompt != "" {
			cfg.SystemPrompt = []anthropic.TextBlockParam{
				{Text: e.opts.systemPrompt},
			}
		}
		if e.budget != nil {
			cfg.Budget = &budgetAdapter{tracker: e.budget}
		}

		engine.RunLoop(ctx, cfg)
		e.conv.UpdatedAt = time.Now()
	}()

	return stream
}

// TotalCost returns the cumulative API cost, or zero when no budget
// tracking is configured.
func (e *Engine) TotalCost() string {
	if e.budget == nil {
		return "0"
	}
	return e.budget.TotalCost().String()
}

// toolSourceAdapter bridges a ToolSource to the loop's ToolInvoker.
type toolSourceAdapter struct {
	source  ToolSource
	timeout time.Duration
}

func (a *toolSourceAdapter) Invoke(ctx context.Context, name string, args json.RawMessage) (string, bool, error) {
	parsed := map[string]any{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &parsed); err != nil {
			return "", false, fmt.Errorf("invalid tool arguments: %w", err)
		}
	}
	result, err := a.source.CallTool(ctx, name, parsed, a.timeout)
	if err != nil {
		return "", false, err
	}
	return result.Content, result.IsError, nil
}

func (a *toolSourceAdapter) ListForAPI() []anthropic.ToolUnionParam {
	descriptors := a.source.Tools()
	params := make([]anthropic.ToolUnionParam, 0, len(descriptors))
	for _, d := range descriptors {
		params = append(params, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        d.QualifiedName,
				Description: anthropic.String(d.Description),
				InputSchema: buildInputSchema(d.InputSchema),
			},
		})
	}
	return params
}

// buildInputSchema constructs a ToolInputSchemaParam from raw JSON schema bytes.
func buildInputSchema(raw json.RawMessage) anthropic.ToolInputSchemaParam {
	schema := anthropic.ToolInputSchemaParam{}

	if len(raw) == 0 {
		return schema
	}

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return schema
	}

	if props, ok := parsed["properties"]; ok {
		schema.Properties = props
	}
	if req, ok := parsed["required"].([]any); ok {
		required := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				required = append(required, s)
			}
		}
		schema.Required = required
	}

	return schema
}

// channelSink forwards loop events onto a TurnStream's channel,
// translating loop outcomes into package sentinels.
type channelSink struct {
	events chan Event
}

func (s *channelSink) OnText(delta string) {
	s.events <- &TextDeltaEvent{Delta: delta}
}

func (s *channelSink) OnToolCall(callID, name string, args json.RawMessage) {
	s.events <- &ToolCallEvent{CallID: callID, QualifiedName: name, Args: args}
}

func (s *channelSink) OnToolResult(callID, content string, isError bool) {
	s.events <- &ToolResultEvent{CallID: callID, Content: content, IsError: isError}
}

func (s *channelSink) OnComplete(info engine.TurnInfo) {
	s.events <- &TurnCompleteEvent{
		FinalText:  info.FinalText,
		Rounds:     info.Rounds,
		DurationMs: info.DurationMs,
		Usage: Usage{
			InputTokens:              info.Usage.InputTokens,
			OutputTokens:             info.Usage.OutputTokens,
			CacheReadInputTokens:     info.Usage.CacheReadInputTokens,
			CacheCreationInputTokens: info.Usage.CacheCreationInputTokens,
		},
		Err: outcomeError(info),
	}
}

// outcomeError maps a loop outcome to the package sentinel, wrapping the
// loop's detail message when present.
func outcomeError(info engine.TurnInfo) error {
	var sentinel error
	switch info.Outcome {
	case engine.OutcomeSuccess:
		return nil
	case engine.OutcomeModelUnavailable:
		sentinel = ErrModelUnavailable
	case engine.OutcomeToolLoopExceeded:
		sentinel = ErrToolLoopExceeded
	case engine.OutcomeCancelled:
		sentinel = ErrCancelled
	case engine.OutcomeBudgetExhausted:
		sentinel = ErrBudgetExhausted
	default:
		return errors.New("mcphost: " + info.Outcome)
	}
	if info.Err != "" {
		return fmt.Errorf("%w: %s", sentinel, info.Err)
	}
	return sentinel
}

// budgetAdapter bridges the cost tracker to the loop's BudgetChecker.
type budgetAdapter struct {
	tracker *budget.Tracker
}

func (b *budgetAdapter) RecordUsage(model anthropic.Model, usage engine.Usage) {
	b.tracker.RecordUsage(model, budget.Usage{
		InputTokens:              usage.InputTokens,
		OutputTokens:             usage.OutputTokens,
		CacheReadInputTokens:     usage.CacheReadInputTokens,
		CacheCreationInputTokens: usage.CacheCreationInputTokens,
	})
}

func (b *budgetAdapter) Exhausted() bool {
	return b.tracker.Exhausted()
}
