// Package service contains the core pipeline of the research analyst.
// AnalysisService runs every request through the same four stages:
//
//	1. Adapt: validate raw user input into an AnalysisRequest
//	2. Build: call FMP and the model backend
//	3. Track: verify token usage and estimate cost
//	4. Render: produce the displayable result
//
// Each request owns its data. Nothing is kept between requests except the
// call log written by the builder.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleveque/research-analyst/internal/analysis"
	"github.com/fleveque/research-analyst/internal/input"
	"github.com/fleveque/research-analyst/internal/metrics"
	"github.com/fleveque/research-analyst/internal/model"
	"github.com/fleveque/research-analyst/internal/provider"
	"github.com/fleveque/research-analyst/internal/render"
	"github.com/fleveque/research-analyst/internal/team"
	"github.com/fleveque/research-analyst/internal/usage"
)

// RequestAdapter validates raw input. *input.Adapter implements it.
type RequestAdapter interface {
	Adapt(task model.TaskType, mode model.Mode, raw input.RawInput) (model.AnalysisRequest, error)
}

// AnalysisService is the main entry point for analyses and team runs.
type AnalysisService struct {
	adapter     RequestAdapter
	builder     provider.ResponseBuilder
	tracker     *usage.Tracker
	team        team.Runner // nil when no team is configured
	calls       provider.CallRecorder
	teamTimeout time.Duration
	logger      *zap.Logger
}

// NewAnalysisService wires the pipeline stages together. teamRunner and
// calls may be nil.
func NewAnalysisService(
	adapter RequestAdapter,
	builder provider.ResponseBuilder,
	tracker *usage.Tracker,
	teamRunner team.Runner,
	calls provider.CallRecorder,
	teamTimeout time.Duration,
	logger *zap.Logger,
) *AnalysisService {
	if teamTimeout <= 0 {
		teamTimeout = provider.DefaultTimeout
	}
	return &AnalysisService{
		adapter:     adapter,
		builder:     builder,
		tracker:     tracker,
		team:        teamRunner,
		calls:       calls,
		teamTimeout: teamTimeout,
		logger:      logger,
	}
}

// Analyze runs one analysis. task and mode are user-supplied names; an empty
// mode means "summary". On any error other than inconsistent token usage no
// result is returned.
func (s *AnalysisService) Analyze(ctx context.Context, task, mode string, raw input.RawInput) (*model.DisplayResult, error) {
	taskType, ok := model.ParseTaskType(task)
	if !ok {
		return nil, analysis.InvalidInput("task", "unknown task %q", task)
	}
	m, ok := model.ParseMode(mode)
	if !ok {
		return nil, analysis.InvalidInput("mode", "unknown mode %q", mode)
	}

	req, err := s.adapter.Adapt(taskType, m, raw)
	if err != nil {
		return nil, err
	}
	if id, ok := model.RequestIDFromContext(ctx); ok {
		req = req.WithID(id)
	}

	logger := s.logger.With(
		zap.String("request_id", req.ID().String()),
		zap.String("task", string(taskType)),
		zap.String("mode", string(m)),
	)
	logger.Info("analysis started", zap.String("input", string(req.Payload().Kind())))

	resp, err := s.builder.Build(ctx, req)
	if err != nil {
		logger.Warn("analysis failed", zap.String("kind", analysis.Kind(err)), zap.Error(err))
		return nil, err
	}

	result, err := s.finish(req.ID(), resp, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("analysis complete", zap.Int64("total_tokens", resp.Usage.Total))
	return result, nil
}

// RunTeam forwards query to the multi-agent team and renders its report.
func (s *AnalysisService) RunTeam(ctx context.Context, query string) (*model.DisplayResult, error) {
	if s.team == nil {
		return nil, analysis.ErrNotConfigured
	}

	id, ok := model.RequestIDFromContext(ctx)
	if !ok {
		id = uuid.New()
	}
	logger := s.logger.With(zap.String("request_id", id.String()))

	ctx, cancel := context.WithTimeout(ctx, s.teamTimeout)
	defer cancel()

	start := time.Now()
	resp, err := s.team.Run(ctx, query)
	if errors.Is(err, context.DeadlineExceeded) {
		err = &analysis.TimeoutError{Service: "team", After: s.teamTimeout}
	}
	s.recordTeam(ctx, id, resp, err, time.Since(start))
	if err != nil {
		logger.Warn("team run failed", zap.String("kind", analysis.Kind(err)), zap.Error(err))
		return nil, err
	}

	metrics.ObserveTokens(resp.Provider, resp.Model, resp.Usage.Input, resp.Usage.Output)
	return s.finish(id, resp, logger)
}

// finish runs the tracker and renderer. Inconsistent usage becomes a warning
// on an otherwise normal result.
func (s *AnalysisService) finish(id uuid.UUID, resp *model.ProviderResponse, logger *zap.Logger) (*model.DisplayResult, error) {
	summary, err := s.tracker.Summarize(resp)

	var usageErr *analysis.InconsistentUsageError
	if err != nil && !errors.As(err, &usageErr) {
		return nil, err
	}

	result := render.Render(resp, summary)
	result.RequestID = id.String()
	if usageErr != nil {
		metrics.UsageWarnings.Inc()
		logger.Warn("inconsistent token usage",
			zap.Int64("input", usageErr.Input),
			zap.Int64("output", usageErr.Output),
			zap.Int64("total", usageErr.Total),
		)
		result.Warnings = append(result.Warnings, usageErr.Error())
	}
	return &result, nil
}

func (s *AnalysisService) recordTeam(ctx context.Context, id uuid.UUID, resp *model.ProviderResponse, callErr error, d time.Duration) {
	metrics.ObserveCall("team", "team", analysis.Kind(callErr), d)
	if s.calls == nil {
		return
	}

	durationMs := d.Milliseconds()
	call := &model.AnalysisCall{
		RequestID:  id.String(),
		Task:       "team",
		Provider:   "team",
		Success:    callErr == nil,
		DurationMs: &durationMs,
	}
	if resp != nil {
		call.Provider = resp.Provider
		call.Model = resp.Model
		call.InputTokens = resp.Usage.Input
		call.OutputTokens = resp.Usage.Output
		call.TotalTokens = resp.Usage.Total
	}
	if callErr != nil {
		kind := analysis.Kind(callErr)
		call.ErrorKind = &kind
	}

	if err := s.calls.Create(context.WithoutCancel(ctx), call); err != nil {
		s.logger.Error("recording team call", zap.Error(err))
	}
}
