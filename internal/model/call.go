package model

import "time"

// AnalysisCall tracks each call to an external model or team service for cost
// monitoring. Each field has two tags:
//   - `db:"column_name"`: used by sqlx to scan database rows
//   - `json:"field_name"`: used for JSON serialization (API responses)
type AnalysisCall struct {
	ID           int64     `db:"id" json:"id"`
	RequestID    string    `db:"request_id" json:"request_id"`
	Task         string    `db:"task" json:"task"`
	Provider     string    `db:"provider" json:"provider"`
	Model        string    `db:"model" json:"model"`
	InputTokens  int64     `db:"input_tokens" json:"input_tokens"`
	OutputTokens int64     `db:"output_tokens" json:"output_tokens"`
	TotalTokens  int64     `db:"total_tokens" json:"total_tokens"`
	Success      bool      `db:"success" json:"success"`
	ErrorKind    *string   `db:"error_kind" json:"error_kind,omitempty"`
	DurationMs   *int64    `db:"duration_ms" json:"duration_ms,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// CallStats aggregates the call log.
type CallStats struct {
	Total        int64 `db:"total" json:"total"`
	Succeeded    int64 `db:"succeeded" json:"succeeded"`
	Failed       int64 `db:"failed" json:"failed"`
	InputTokens  int64 `db:"input_tokens" json:"input_tokens"`
	OutputTokens int64 `db:"output_tokens" json:"output_tokens"`
	TotalTokens  int64 `db:"total_tokens" json:"total_tokens"`
}

// TaskCount is the number of calls recorded for one task type.
type TaskCount struct {
	Task  string `db:"task" json:"task"`
	Count int64  `db:"count" json:"count"`
}
