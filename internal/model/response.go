package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TokenUsage is the token accounting returned alongside a model response.
type TokenUsage struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
	Total  int64 `json:"total"`
}

// Company is one entry of a "companies mentioned" extraction.
type Company struct {
	Name      string `json:"name"`
	Symbol    string `json:"symbol,omitempty"`
	Public    bool   `json:"public"`
	Sector    string `json:"sector,omitempty"`
	Industry  string `json:"industry,omitempty"`
	Sentiment int    `json:"sentiment"` // 1 positive, 0 neutral, -1 negative
	Note      string `json:"note"`
}

// ProviderResponse is what came back from an external service for one request.
// Task, Mode and Subject describe the request it answers so the renderer can
// title the output without seeing the request itself.
type ProviderResponse struct {
	Task       TaskType
	Mode       Mode
	Subject    string // e.g. "Q1 2024", "AAPL"; may be empty
	Text       string
	Structured []Company
	Usage      TokenUsage
	Provider   string
	Model      string
}

// UsageSummary is the verified token usage for one response.
type UsageSummary struct {
	Input         int64               `json:"input_tokens"`
	Output        int64               `json:"output_tokens"`
	Total         int64               `json:"total_tokens"`
	EstimatedCost decimal.NullDecimal `json:"estimated_cost_usd"`
}

// String formats the summary the way the result page shows it.
func (u UsageSummary) String() string {
	s := fmt.Sprintf("Input Tokens: %d | Output Tokens: %d | Total Tokens: %d", u.Input, u.Output, u.Total)
	if u.EstimatedCost.Valid {
		s += fmt.Sprintf(" | Estimated Cost: $%s", u.EstimatedCost.Decimal.StringFixed(6))
	}
	return s
}

// DisplayResult is the final, displayable output of one request.
type DisplayResult struct {
	RequestID    string   `json:"request_id,omitempty"`
	RenderedText string   `json:"rendered_text"`
	UsageSummary string   `json:"usage_summary"`
	Warnings     []string `json:"warnings,omitempty"`
}
