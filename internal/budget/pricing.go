package budget

import (
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/shopspring/decimal"
)

// Pricing holds per-model token prices in USD per million tokens.
type Pricing struct {
	InputPerMTok      decimal.Decimal
	OutputPerMTok     decimal.Decimal
	CacheWritePerMTok decimal.Decimal
	CacheReadPerMTok  decimal.Decimal
}

var million = decimal.NewFromInt(1_000_000)

// Cost computes the USD cost of one API call's usage.
func (p Pricing) Cost(u Usage) decimal.Decimal {
	cost := decimal.NewFromInt(u.InputTokens).Mul(p.InputPerMTok).Div(million)
	cost = cost.Add(decimal.NewFromInt(u.OutputTokens).Mul(p.OutputPerMTok).Div(million))
	cost = cost.Add(decimal.NewFromInt(u.CacheReadInputTokens).Mul(p.CacheReadPerMTok).Div(million))
	cost = cost.Add(decimal.NewFromInt(u.CacheCreationInputTokens).Mul(p.CacheWritePerMTok).Div(million))
	return cost
}

// DefaultPricing contains built-in pricing for the models the host is
// normally run with (USD per million tokens).
var DefaultPricing = map[anthropic.Model]Pricing{
	"claude-3-5-sonnet-latest": {
		InputPerMTok:      decimal.NewFromFloat(3),
		OutputPerMTok:     decimal.NewFromFloat(15),
		CacheWritePerMTok: decimal.NewFromFloat(3.75),
		CacheReadPerMTok:  decimal.NewFromFloat(0.3),
	},
	"claude-3-5-sonnet-20241022": {
		InputPerMTok:      decimal.NewFromFloat(3),
		OutputPerMTok:     decimal.NewFromFloat(15),
		CacheWritePerMTok: decimal.NewFromFloat(3.75),
		CacheReadPerMTok:  decimal.NewFromFloat(0.3),
	},
	"claude-3-5-haiku-20241022": {
		InputPerMTok:      decimal.NewFromFloat(0.8),
		OutputPerMTok:     decimal.NewFromFloat(4),
		CacheWritePerMTok: decimal.NewFromFloat(1),
		CacheReadPerMTok:  decimal.NewFromFloat(0.08),
	},
}
