package provider

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fleveque/research-analyst/internal/analysis"
	"github.com/fleveque/research-analyst/internal/fmp"
	"github.com/fleveque/research-analyst/internal/llm"
	"github.com/fleveque/research-analyst/internal/metrics"
	"github.com/fleveque/research-analyst/internal/model"
	"github.com/fleveque/research-analyst/internal/prompt"
	"github.com/fleveque/research-analyst/internal/technical"
)

// Builder sends one AnalysisRequest to the model backend and returns its
// reply. There are no retries: a failed call surfaces as a typed error.
type Builder struct {
	cfg     Config
	client  llm.Client
	market  MarketData
	prompts *prompt.Set
	calls   CallRecorder
	limiter *rate.Limiter
	logger  *zap.Logger
	now     func() time.Time
}

// NewBuilder creates a Builder. market may be nil when FMP isn't configured;
// calls may be nil to skip the call log.
func NewBuilder(cfg Config, client llm.Client, market MarketData, prompts *prompt.Set, calls CallRecorder, logger *zap.Logger) *Builder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	// rate.Every turns "N per minute" into the interval between events.
	limit := rate.Inf
	if cfg.RatePerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RatePerMinute))
	}

	return &Builder{
		cfg:     cfg,
		client:  client,
		market:  market,
		prompts: prompts,
		calls:   calls,
		limiter: rate.NewLimiter(limit, 1), // burst of 1, strict spacing
		logger:  logger,
		now:     time.Now,
	}
}

// Build dispatches on the task type. Every TaskType in model.AllTaskTypes has
// a case here.
func (b *Builder) Build(ctx context.Context, req model.AnalysisRequest) (*model.ProviderResponse, error) {
	switch req.Task() {
	case model.TaskTranscript:
		return b.transcript(ctx, req)
	case model.TaskPodcast:
		return b.media(ctx, req, b.client.Capabilities().Audio)
	case model.TaskImage:
		return b.media(ctx, req, b.client.Capabilities().Image)
	case model.TaskVideo:
		return b.video(ctx, req)
	case model.TaskChart:
		if _, ok := req.Payload().(model.MediaPayload); ok {
			return b.media(ctx, req, b.client.Capabilities().Image)
		}
		return b.chart(ctx, req)
	default:
		return nil, analysis.InvalidInput("task", "unsupported task %q", req.Task())
	}
}

func (b *Builder) transcript(ctx context.Context, req model.AnalysisRequest) (*model.ProviderResponse, error) {
	ticker, ok := req.Payload().(model.TickerPayload)
	if !ok {
		return nil, analysis.InvalidInput("input", "%s needs a ticker symbol", req.Task())
	}
	year, err := strconv.Atoi(req.Meta(model.MetaYear))
	if err != nil {
		return nil, analysis.InvalidInput("year", "not a number: %q", req.Meta(model.MetaYear))
	}
	quarter, err := strconv.Atoi(req.Meta(model.MetaQuarter))
	if err != nil {
		return nil, analysis.InvalidInput("quarter", "not a number: %q", req.Meta(model.MetaQuarter))
	}
	if err := b.marketReady(); err != nil {
		return nil, err
	}

	var tr *fmp.Transcript
	err = b.external(ctx, "fmp", req.Task(), func(ctx context.Context) error {
		var err error
		tr, err = b.market.EarningsCallTranscript(ctx, ticker.Symbol, year, quarter)
		return err
	})
	if errors.Is(err, fmp.ErrNotFound) || (err == nil && strings.TrimSpace(tr.Content) == "") {
		return nil, analysis.InvalidInput("symbol", "no earnings call transcript found for %s Q%d %d", ticker.Symbol, quarter, year)
	}
	if err != nil {
		return nil, err
	}

	subject := fmt.Sprintf("%s Q%d %d", ticker.Symbol, quarter, year)
	return b.generate(ctx, req, subject, llm.TextPart(tr.Content))
}

// media sends uploaded bytes. supported reports whether the backend accepts
// this kind of media.
func (b *Builder) media(ctx context.Context, req model.AnalysisRequest, supported bool) (*model.ProviderResponse, error) {
	m, ok := req.Payload().(model.MediaPayload)
	if !ok {
		return nil, analysis.InvalidInput("input", "%s needs an uploaded file", req.Task())
	}
	if !supported {
		return nil, analysis.InvalidInput("task", "%s backend does not accept %s input", b.client.ProviderName(), m.MIMEType)
	}
	return b.generate(ctx, req, "", llm.Part{Data: m.Data, MIMEType: m.MIMEType})
}

func (b *Builder) video(ctx context.Context, req model.AnalysisRequest) (*model.ProviderResponse, error) {
	u, ok := req.Payload().(model.URLPayload)
	if !ok || u.URL == nil {
		return nil, analysis.InvalidInput("input", "video needs a URL")
	}
	if !b.client.Capabilities().Video {
		return nil, analysis.InvalidInput("task", "%s backend does not accept video URLs", b.client.ProviderName())
	}
	return b.generate(ctx, req, "", llm.Part{FileURI: u.URL.String()})
}

// chart fetches daily prices, computes the technical digest locally and asks
// the model to interpret it.
func (b *Builder) chart(ctx context.Context, req model.AnalysisRequest) (*model.ProviderResponse, error) {
	ticker, ok := req.Payload().(model.TickerPayload)
	if !ok {
		return nil, analysis.InvalidInput("input", "chart needs an image or a ticker symbol")
	}
	period := req.Meta(model.MetaPeriod)
	interval := req.Meta(model.MetaInterval)

	now := b.now()
	from, err := technical.PeriodStart(period, now)
	if err != nil {
		return nil, analysis.InvalidInput("period", "%v", err)
	}
	if err := b.marketReady(); err != nil {
		return nil, err
	}

	var bars []fmp.PriceBar
	err = b.external(ctx, "fmp", req.Task(), func(ctx context.Context) error {
		var err error
		bars, err = b.market.HistoricalPrices(ctx, ticker.Symbol, from, now)
		return err
	})
	if errors.Is(err, fmp.ErrNotFound) || (err == nil && len(bars) == 0) {
		return nil, analysis.InvalidInput("symbol", "no price history found for %s", ticker.Symbol)
	}
	if err != nil {
		return nil, err
	}

	bars, err = technical.Resample(bars, interval)
	if err != nil {
		return nil, analysis.InvalidInput("interval", "%v", err)
	}

	var indicators []string
	if v := req.Meta(model.MetaIndicators); v != "" {
		indicators = strings.Split(v, ",")
	}
	report := technical.Analyze(ticker.Symbol, period, interval, bars, indicators)

	return b.generate(ctx, req, ticker.Symbol, llm.TextPart(report.Markdown()))
}

func (b *Builder) marketReady() error {
	if b.market == nil || b.cfg.FMPAPIKey == "" {
		return fmt.Errorf("fmp: %w", analysis.ErrNotConfigured)
	}
	return nil
}

// generate waits for the rate limiter, calls the model and records the call.
// The wait counts against the call timeout.
func (b *Builder) generate(ctx context.Context, req model.AnalysisRequest, subject string, parts ...llm.Part) (*model.ProviderResponse, error) {
	greq := llm.GenerateRequest{
		SystemInstruction: b.prompts.Instruction(req.Task(), req.Mode()),
		Parts:             parts,
		Companies:         req.Mode() == model.ModeCompanies,
	}

	service := b.client.ProviderName()
	start := time.Now()
	var res *llm.GenerateResult
	err := b.external(ctx, service, req.Task(), func(ctx context.Context) error {
		if err := waitLimiter(ctx, b.limiter); err != nil {
			return err
		}
		var err error
		res, err = b.client.Generate(ctx, greq)
		return err
	})
	b.record(ctx, req, res, err, time.Since(start))
	if err != nil {
		return nil, err
	}

	metrics.ObserveTokens(service, b.client.ModelName(), res.Usage.Input, res.Usage.Output)

	return &model.ProviderResponse{
		Task:       req.Task(),
		Mode:       req.Mode(),
		Subject:    subject,
		Text:       res.Text,
		Structured: res.Companies,
		Usage:      res.Usage,
		Provider:   service,
		Model:      b.client.ModelName(),
	}, nil
}

// external runs fn under the configured timeout and converts a deadline hit
// into a TimeoutError.
func (b *Builder) external(ctx context.Context, service string, task model.TaskType, fn func(context.Context) error) error {
	timeout := b.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline).Round(time.Millisecond)
	}
	callCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		err = &analysis.TimeoutError{Service: service, After: timeout}
	}

	outcome := ""
	if err != nil {
		outcome = analysis.Kind(err)
		b.logger.Warn("external call failed",
			zap.String("service", service),
			zap.String("task", string(task)),
			zap.Error(err),
		)
	}
	metrics.ObserveCall(service, string(task), outcome, time.Since(start))
	return err
}

// waitLimiter waits for a token from l. When the wait would outlast ctx's
// deadline, rate.Limiter fails early with an error that does not wrap the
// context error; that case is reported as context.DeadlineExceeded.
func waitLimiter(ctx context.Context, l *rate.Limiter) error {
	err := l.Wait(ctx)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("rate limit wait: %w", ctxErr)
	}
	if _, ok := ctx.Deadline(); ok {
		return fmt.Errorf("rate limit wait: %w", context.DeadlineExceeded)
	}
	return fmt.Errorf("rate limit wait: %w", err)
}

func (b *Builder) record(ctx context.Context, req model.AnalysisRequest, res *llm.GenerateResult, callErr error, d time.Duration) {
	if b.calls == nil {
		return
	}

	durationMs := d.Milliseconds()
	call := &model.AnalysisCall{
		RequestID:  req.ID().String(),
		Task:       string(req.Task()),
		Provider:   b.client.ProviderName(),
		Model:      b.client.ModelName(),
		Success:    callErr == nil,
		DurationMs: &durationMs,
	}
	if res != nil {
		call.InputTokens = res.Usage.Input
		call.OutputTokens = res.Usage.Output
		call.TotalTokens = res.Usage.Total
	}
	if callErr != nil {
		kind := analysis.Kind(callErr)
		call.ErrorKind = &kind
	}

	// The request context may already be past its deadline.
	if err := b.calls.Create(context.WithoutCancel(ctx), call); err != nil {
		b.logger.Error("recording analysis call", zap.Error(err))
	}
}
