// Package usage verifies the token accounting of a provider response and
// attaches an optional cost estimate.
package usage

import (
	"github.com/shopspring/decimal"

	"github.com/fleveque/research-analyst/internal/analysis"
	"github.com/fleveque/research-analyst/internal/model"
)

// Price is the USD cost per million tokens for one model.
type Price struct {
	InputPerMillion  decimal.Decimal
	OutputPerMillion decimal.Decimal
}

// Tracker summarizes token usage. It holds no per-request state.
type Tracker struct {
	prices map[string]Price // keyed by model name
}

// NewTracker creates a Tracker. prices may be nil, in which case no cost
// estimate is attached.
func NewTracker(prices map[string]Price) *Tracker {
	return &Tracker{prices: prices}
}

var million = decimal.NewFromInt(1_000_000)

// Summarize checks that Total == Input + Output and that no count is
// negative. On a mismatch it returns the raw counts in the summary along
// with an *analysis.InconsistentUsageError, so callers can still display them.
func (t *Tracker) Summarize(resp *model.ProviderResponse) (model.UsageSummary, error) {
	u := resp.Usage
	summary := model.UsageSummary{Input: u.Input, Output: u.Output, Total: u.Total}

	if u.Input < 0 || u.Output < 0 || u.Total < 0 || u.Input+u.Output != u.Total {
		return summary, &analysis.InconsistentUsageError{Input: u.Input, Output: u.Output, Total: u.Total}
	}

	if price, ok := t.prices[resp.Model]; ok {
		cost := price.InputPerMillion.Mul(decimal.NewFromInt(u.Input)).
			Add(price.OutputPerMillion.Mul(decimal.NewFromInt(u.Output))).
			Div(million)
		summary.EstimatedCost = decimal.NewNullDecimal(cost)
	}
	return summary, nil
}
