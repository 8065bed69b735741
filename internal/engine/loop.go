// Package engine implements the conversation loop: it streams model
// responses, dispatches requested tool calls, feeds results back, and
// repeats until the model produces a final answer.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// MessageStreamer abstracts the Anthropic Messages API so the loop can be
// tested with a mock. Production code passes the real client.Messages.
type MessageStreamer interface {
	NewStreaming(ctx context.Context, params anthropic.MessageNewParams) *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

// messageServiceAdapter wraps the real anthropic.MessageService.
type messageServiceAdapter struct {
	svc *anthropic.MessageService
}

func (a *messageServiceAdapter) NewStreaming(ctx context.Context, params anthropic.MessageNewParams) *ssestream.Stream[anthropic.MessageStreamEventUnion] {
	return a.svc.NewStreaming(ctx, params)
}

// NewMessageStreamer wraps a real anthropic.MessageService as a MessageStreamer.
func NewMessageStreamer(svc *anthropic.MessageService) MessageStreamer {
	return &messageServiceAdapter{svc: svc}
}

// ToolInvoker resolves and executes a tool by its registry name. Invoke
// must be safe for concurrent use: the loop dispatches all calls of one
// round in parallel.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, args json.RawMessage) (content string, isError bool, err error)
	ListForAPI() []anthropic.ToolUnionParam
}

// EventSink receives events from the loop as they are produced. Methods
// may be called from multiple goroutines during a tool round.
type EventSink interface {
	OnText(delta string)
	OnToolCall(callID, name string, args json.RawMessage)
	OnToolResult(callID, content string, isError bool)
	OnComplete(info TurnInfo)
}

// Usage holds accumulated token counts for one turn.
type Usage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheReadInputTokens     int64
	CacheCreationInputTokens int64
}

// BudgetChecker tracks cost and enforces a spending limit. Nil disables
// budget enforcement.
type BudgetChecker interface {
	RecordUsage(model anthropic.Model, usage Usage)
	Exhausted() bool
}

// Turn outcomes reported in TurnInfo.
const (
	OutcomeSuccess          = "success"
	OutcomeModelUnavailable = "model_unavailable"
	OutcomeToolLoopExceeded = "tool_loop_exceeded"
	OutcomeCancelled        = "cancelled"
	OutcomeBudgetExhausted  = "budget_exhausted"
)

// TurnInfo summarizes one completed user turn.
type TurnInfo struct {
	Outcome    string
	FinalText  string
	Rounds     int
	DurationMs int64
	Usage      Usage
	Err        string
}

// LoopConfig holds everything one turn of the loop needs.
type LoopConfig struct {
	Streamer MessageStreamer
	Tools    ToolInvoker
	Model    anthropic.Model

	MaxTokens int

	// MaxToolRounds bounds the number of tool-use rounds in one turn.
	// 0 means unbounded.
	MaxToolRounds int

	// SystemPrompt is prepended to every model request.
	SystemPrompt []anthropic.TextBlockParam

	// Messages is the conversation history. The loop appends to it and
	// never truncates: the user turn stays recorded even when the turn
	// aborts, and a tool-call turn is only appended together with the
	// round that produces its results.
	Messages *[]anthropic.MessageParam

	Sink EventSink

	// Budget enforces a cost limit across turns. Nil = no limit.
	Budget BudgetChecker
}

// RunLoop executes one user turn to completion. It runs in the calling
// goroutine and reports progress through cfg.Sink; the caller owns any
// channel management.
func RunLoop(ctx context.Context, cfg LoopConfig) {
	start := time.Now()
	var usage Usage
	rounds := 0
	finalText := ""

	finish := func(outcome, errMsg string) {
		cfg.Sink.OnComplete(TurnInfo{
			Outcome:    outcome,
			FinalText:  finalText,
			Rounds:     rounds,
			DurationMs: time.Since(start).Milliseconds(),
			Usage:      usage,
			Err:        errMsg,
		})
	}

	for {
		if ctx.Err() != nil {
			finish(OutcomeCancelled, ctx.Err().Error())
			return
		}

		params := anthropic.MessageNewParams{
			Model:     cfg.Model,
			MaxTokens: int64(cfg.MaxTokens),
			Messages:  *cfg.Messages,
		}
		if len(cfg.SystemPrompt) > 0 {
			params.System = cfg.SystemPrompt
		}
		if tools := cfg.Tools.ListForAPI(); len(tools) > 0 {
			params.Tools = tools
		}

		stream := cfg.Streamer.NewStreaming(ctx, params)
		msg := anthropic.Message{}

		for stream.Next() {
			event := stream.Current()
			if err := msg.Accumulate(event); err != nil {
				stream.Close()
				finish(OutcomeModelUnavailable, fmt.Sprintf("accumulate error: %s", err.Error()))
				return
			}
			if event.Type == "content_block_delta" && event.Delta.Type == "text_delta" && event.Delta.Text != "" {
				cfg.Sink.OnText(event.Delta.Text)
			}
		}
		if err := stream.Err(); err != nil {
			stream.Close()
			// No partial assistant turn is appended; the history stays
			// consistent with the user turn as its last entry.
			if ctx.Err() != nil {
				finish(OutcomeCancelled, ctx.Err().Error())
			} else {
				finish(OutcomeModelUnavailable, err.Error())
			}
			return
		}
		stream.Close()

		usage.InputTokens += msg.Usage.InputTokens
		usage.OutputTokens += msg.Usage.OutputTokens
		usage.CacheReadInputTokens += msg.Usage.CacheReadInputTokens
		usage.CacheCreationInputTokens += msg.Usage.CacheCreationInputTokens

		if cfg.Budget != nil {
			cfg.Budget.RecordUsage(cfg.Model, Usage{
				InputTokens:              msg.Usage.InputTokens,
				OutputTokens:             msg.Usage.OutputTokens,
				CacheReadInputTokens:     msg.Usage.CacheReadInputTokens,
				CacheCreationInputTokens: msg.Usage.CacheCreationInputTokens,
			})
			if cfg.Budget.Exhausted() {
				finish(OutcomeBudgetExhausted, "budget exhausted")
				return
			}
		}

		if msg.StopReason != anthropic.StopReasonToolUse {
			*cfg.Messages = append(*cfg.Messages, msg.ToParam())
			finalText = textOf(msg)
			finish(OutcomeSuccess, "")
			return
		}

		// The response requests tool calls. Enforce the round bound
		// before committing the tool-call turn to history, so an aborted
		// turn never leaves a request without its results.
		if cfg.MaxToolRounds > 0 && rounds >= cfg.MaxToolRounds {
			finish(OutcomeToolLoopExceeded,
				fmt.Sprintf("model requested more tool calls after %d rounds", rounds))
			return
		}
		rounds++

		*cfg.Messages = append(*cfg.Messages, msg.ToParam())
		results := runToolRound(ctx, cfg, msg.Content)
		*cfg.Messages = append(*cfg.Messages, anthropic.NewUserMessage(results...))
	}
}

// runToolRound executes every tool_use block of one assistant response
// concurrently and returns the result blocks in request order. Slow calls
// on one server never delay calls to another; the round only ends when all
// results are in (the ordering barrier before resubmitting to the model).
//
// Dispatched calls are detached from the turn's cancellation so that a
// cancelled turn lets in-flight calls complete or time out normally; the
// caller stops the loop afterwards.
func runToolRound(ctx context.Context, cfg LoopConfig, content []anthropic.ContentBlockUnion) []anthropic.ContentBlockParamUnion {
	type call struct {
		id    string
		name  string
		input json.RawMessage
	}
	var calls []call
	for _, block := range content {
		if block.Type != "tool_use" {
			continue
		}
		tu := block.AsToolUse()
		calls = append(calls, call{id: tu.ID, name: tu.Name, input: json.RawMessage(tu.Input)})
	}

	callCtx := context.WithoutCancel(ctx)
	results := make([]anthropic.ContentBlockParamUnion, len(calls))
	var wg sync.WaitGroup
	for i, c := range calls {
		cfg.Sink.OnToolCall(c.id, c.name, c.input)
		wg.Add(1)
		go func(i int, c call) {
			defer wg.Done()
			content, isError, err := cfg.Tools.Invoke(callCtx, c.name, c.input)
			if err != nil {
				// Registry misses, timeouts, and transport failures all
				// become model-visible data; the loop never crashes on a
				// failed tool call.
				content = fmt.Sprintf("error: %s", err.Error())
				isError = true
			}
			cfg.Sink.OnToolResult(c.id, content, isError)
			results[i] = anthropic.NewToolResultBlock(c.id, content, isError)
		}(i, c)
	}
	wg.Wait()
	return results
}

// textOf concatenates the text blocks of a message.
func textOf(msg anthropic.Message) string {
	out := ""
	for _, block := range msg.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out
}
