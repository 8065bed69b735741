// Package budget tracks the cumulative API cost of a conversation and
// enforces an optional spending limit.
package budget

import (
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/shopspring/decimal"
)

// Usage holds token counts for a single API call.
type Usage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheReadInputTokens     int64
	CacheCreationInputTokens int64
}

// Tracker accumulates token usage and cost across model calls. It is safe
// for concurrent use.
type Tracker struct {
	limit   decimal.Decimal // 0 = unlimited
	pricing map[anthropic.Model]Pricing

	mu    sync.Mutex
	cost  decimal.Decimal
	total Usage
}

// NewTracker creates a tracker. A limit of 0 means unlimited.
func NewTracker(limit decimal.Decimal, pricing map[anthropic.Model]Pricing) *Tracker {
	return &Tracker{
		limit:   limit,
		pricing: pricing,
		cost:    decimal.Zero,
	}
}

// RecordUsage adds one API call's token usage and updates the cumulative
// cost. Unknown models are counted but priced at zero.
func (t *Tracker) RecordUsage(model anthropic.Model, usage Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total.InputTokens += usage.InputTokens
	t.total.OutputTokens += usage.OutputTokens
	t.total.CacheReadInputTokens += usage.CacheReadInputTokens
	t.total.CacheCreationInputTokens += usage.CacheCreationInputTokens

	p, ok := t.pricing[model]
	if !ok {
		return
	}
	t.cost = t.cost.Add(p.Cost(usage))
}

// TotalCost returns the cumulative cost in USD.
func (t *Tracker) TotalCost() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cost
}

// TotalUsage returns the cumulative token usage.
func (t *Tracker) TotalUsage() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Exhausted reports whether the cumulative cost has reached the limit.
// Always false when the limit is 0.
func (t *Tracker) Exhausted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.limit.IsZero() {
		return false
	}
	return t.cost.GreaterThanOrEqual(t.limit)
}
