package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/fleveque/research-analyst/internal/model"
)

// ErrNotFound is returned when no calls match a lookup.
// Callers check with errors.Is(err, ErrNotFound).
var ErrNotFound = errors.New("not found")

// CallRepository records every external model or team call.
type CallRepository interface {
	Create(ctx context.Context, call *model.AnalysisCall) error
	ListByRequestID(ctx context.Context, requestID string) ([]model.AnalysisCall, error)
	Stats(ctx context.Context) (*model.CallStats, error)
	CountByTask(ctx context.Context) ([]model.TaskCount, error)
}

// sqliteCallRepository is the SQLite implementation of CallRepository.
type sqliteCallRepository struct {
	db *sqlx.DB
}

// NewCallRepository creates a SQLite-backed CallRepository.
func NewCallRepository(db *sqlx.DB) CallRepository {
	return &sqliteCallRepository{db: db}
}

func (r *sqliteCallRepository) Create(ctx context.Context, call *model.AnalysisCall) error {
	result, err := r.db.NamedExecContext(ctx, `
		INSERT INTO analysis_calls (request_id, task, provider, model, input_tokens, output_tokens,
			total_tokens, success, error_kind, duration_ms)
		VALUES (:request_id, :task, :provider, :model, :input_tokens, :output_tokens,
			:total_tokens, :success, :error_kind, :duration_ms)
	`, call)
	if err != nil {
		return fmt.Errorf("creating analysis call record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	call.ID = id
	return nil
}

func (r *sqliteCallRepository) ListByRequestID(ctx context.Context, requestID string) ([]model.AnalysisCall, error) {
	var calls []model.AnalysisCall
	err := r.db.SelectContext(ctx, &calls,
		"SELECT * FROM analysis_calls WHERE request_id = ? ORDER BY id ASC", requestID)
	if err != nil {
		return nil, fmt.Errorf("listing calls for request %s: %w", requestID, err)
	}
	if len(calls) == 0 {
		return nil, ErrNotFound
	}
	return calls, nil
}

func (r *sqliteCallRepository) Stats(ctx context.Context) (*model.CallStats, error) {
	var stats model.CallStats
	// COALESCE because SUM over zero rows is NULL.
	err := r.db.GetContext(ctx, &stats, `
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) AS succeeded,
			COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0) AS failed,
			COALESCE(SUM(input_tokens), 0) AS input_tokens,
			COALESCE(SUM(output_tokens), 0) AS output_tokens,
			COALESCE(SUM(total_tokens), 0) AS total_tokens
		FROM analysis_calls
	`)
	if err != nil {
		return nil, fmt.Errorf("aggregating call stats: %w", err)
	}
	return &stats, nil
}

func (r *sqliteCallRepository) CountByTask(ctx context.Context) ([]model.TaskCount, error) {
	var counts []model.TaskCount
	err := r.db.SelectContext(ctx, &counts,
		"SELECT task, COUNT(*) AS count FROM analysis_calls GROUP BY task ORDER BY task")
	if err != nil {
		return nil, fmt.Errorf("counting calls by task: %w", err)
	}
	return counts, nil
}
