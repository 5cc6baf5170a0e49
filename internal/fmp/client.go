// Package fmp is a small client for the FinancialModelingPrep API: earnings
// call transcripts and daily price history.
package fmp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fleveque/research-analyst/internal/analysis"
)

// DefaultBaseURL is the public FMP endpoint.
const DefaultBaseURL = "https://financialmodelingprep.com"

// ErrNotFound means FMP answered but had no data for the request.
var ErrNotFound = errors.New("not found")

// Transcript is one earnings call transcript.
type Transcript struct {
	Symbol  string `json:"symbol"`
	Year    int    `json:"year"`
	Quarter int    `json:"quarter"`
	Date    string `json:"date"`
	Content string `json:"content"`
}

// PriceBar is one day of OHLCV data.
type PriceBar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Client talks to the FMP REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates an FMP client. ratePerMinute <= 0 disables rate limiting.
func NewClient(baseURL, apiKey string, ratePerMinute int, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	limit := rate.Inf
	if ratePerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(ratePerMinute))
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		// Deadlines come from the caller's context.
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

// EarningsCallTranscript returns the transcript for symbol's given quarter.
// It returns ErrNotFound when FMP has no transcript for that quarter.
func (c *Client) EarningsCallTranscript(ctx context.Context, symbol string, year, quarter int) (*Transcript, error) {
	q := url.Values{}
	q.Set("year", strconv.Itoa(year))
	q.Set("quarter", strconv.Itoa(quarter))

	var transcripts []Transcript
	if err := c.get(ctx, "/api/v3/earning_call_transcript/"+url.PathEscape(symbol), q, &transcripts); err != nil {
		return nil, err
	}
	if len(transcripts) == 0 || strings.TrimSpace(transcripts[0].Content) == "" {
		return nil, fmt.Errorf("transcript for %s Q%d %d: %w", symbol, quarter, year, ErrNotFound)
	}
	return &transcripts[0], nil
}

type historicalResponse struct {
	Symbol     string `json:"symbol"`
	Historical []struct {
		Date   string  `json:"date"`
		Open   float64 `json:"open"`
		High   float64 `json:"high"`
		Low    float64 `json:"low"`
		Close  float64 `json:"close"`
		Volume float64 `json:"volume"`
	} `json:"historical"`
}

// HistoricalPrices returns daily bars between from and to, oldest first.
func (c *Client) HistoricalPrices(ctx context.Context, symbol string, from, to time.Time) ([]PriceBar, error) {
	q := url.Values{}
	q.Set("from", from.Format(time.DateOnly))
	q.Set("to", to.Format(time.DateOnly))

	var resp historicalResponse
	if err := c.get(ctx, "/api/v3/historical-price-full/"+url.PathEscape(symbol), q, &resp); err != nil {
		return nil, err
	}

	bars := make([]PriceBar, 0, len(resp.Historical))
	for _, h := range resp.Historical {
		d, err := time.Parse(time.DateOnly, h.Date)
		if err != nil {
			c.logger.Debug("skipping bar with bad date", zap.String("symbol", symbol), zap.String("date", h.Date))
			continue
		}
		bars = append(bars, PriceBar{Date: d, Open: h.Open, High: h.High, Low: h.Low, Close: h.Close, Volume: h.Volume})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("price history for %s: %w", symbol, ErrNotFound)
	}

	// FMP returns newest first.
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// get performs a GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		// The limiter refuses early, without wrapping the context error,
		// when the wait would outlast the deadline.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("fmp rate limit wait: %w", ctxErr)
		}
		if _, ok := ctx.Deadline(); ok {
			return fmt.Errorf("fmp rate limit wait: %w", context.DeadlineExceeded)
		}
		return fmt.Errorf("fmp rate limit wait: %w", err)
	}

	q.Set("apikey", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "research-analyst/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	// Transcripts can be large, but never this large.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return transportError(err)
	}

	if resp.StatusCode != http.StatusOK {
		return &analysis.UpstreamError{Service: "fmp", Status: resp.StatusCode, Message: errorMessage(body, resp.Status)}
	}

	// FMP reports some failures (bad key, plan limits) as a 200 with an error object.
	if msg := errorMessage(body, ""); msg != "" {
		return &analysis.UpstreamError{Service: "fmp", Status: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &analysis.UpstreamError{Service: "fmp", Status: resp.StatusCode, Message: "decoding response: " + err.Error()}
	}
	return nil
}

// errorMessage extracts FMP's "Error Message" field, falling back to def.
func errorMessage(body []byte, def string) string {
	var e struct {
		ErrorMessage string `json:"Error Message"`
		Error        string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil {
		if e.ErrorMessage != "" {
			return e.ErrorMessage
		}
		if e.Error != "" {
			return e.Error
		}
	}
	return def
}

// transportError keeps the API key out of error text: *url.Error embeds the
// full request URL, so only its cause is ever returned.
func transportError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("fmp: %w", context.Canceled)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("fmp: %w", context.DeadlineExceeded)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("fmp: %w", context.DeadlineExceeded)
	}
	return &analysis.UpstreamError{Service: "fmp", Message: err.Error()}
}
