// Package provider turns a validated AnalysisRequest into a call to the model
// backend, fetching market data from FMP first when the task needs it.
package provider

import (
	"context"
	"time"

	"github.com/fleveque/research-analyst/internal/fmp"
	"github.com/fleveque/research-analyst/internal/model"
)

// DefaultTimeout bounds each external call when Config.Timeout is unset.
const DefaultTimeout = 60 * time.Second

// Config is the explicit configuration the builder runs with. It's built
// once by the config package and injected, never read from globals.
type Config struct {
	ModelAPIKey   string
	FMPAPIKey     string
	Timeout       time.Duration
	RatePerMinute int // model calls per minute; <= 0 means unlimited
}

// MarketData is the subset of the FMP client the builder needs.
type MarketData interface {
	EarningsCallTranscript(ctx context.Context, symbol string, year, quarter int) (*fmp.Transcript, error)
	HistoricalPrices(ctx context.Context, symbol string, from, to time.Time) ([]fmp.PriceBar, error)
}

// CallRecorder persists one row of the call log.
type CallRecorder interface {
	Create(ctx context.Context, call *model.AnalysisCall) error
}

// ResponseBuilder is what the analysis service depends on.
type ResponseBuilder interface {
	Build(ctx context.Context, req model.AnalysisRequest) (*model.ProviderResponse, error)
}
