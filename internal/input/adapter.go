// Package input normalizes heterogeneous user input (uploaded bytes, a pasted
// URL, a ticker symbol) into a model.AnalysisRequest, rejecting anything that
// doesn't fit the requested task before any external call is made.
package input

import (
	"fmt"
	"mime"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/fleveque/research-analyst/internal/analysis"
	"github.com/fleveque/research-analyst/internal/model"
)

// RawInput is whatever the user submitted, before validation.
// Exactly one of Data, URL or Symbol should be set.
type RawInput struct {
	Data     []byte
	MIMEType string
	Filename string
	URL      string
	Symbol   string
	Metadata map[string]string
}

// ImageNormalizer re-encodes or resizes uploaded images. media.Normalizer
// implements it.
type ImageNormalizer interface {
	Normalize(data []byte, mimeType string) ([]byte, string, error)
}

// Adapter validates raw input against the task it was submitted for.
type Adapter struct {
	maxUploadBytes int64
	images         ImageNormalizer // nil disables image normalization
	now            func() time.Time
}

// NewAdapter creates an Adapter. images may be nil.
func NewAdapter(maxUploadBytes int64, images ImageNormalizer) *Adapter {
	return &Adapter{
		maxUploadBytes: maxUploadBytes,
		images:         images,
		now:            time.Now,
	}
}

var tickerPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,9}$`)

// Periods and Intervals are the chart options accepted for ticker-based charts.
var (
	Periods   = []string{"1mo", "3mo", "6mo", "1y", "2y", "5y", "ytd"}
	Intervals = []string{"1d", "1wk", "1mo"}
	// Canonical indicator names; keys are the lower-cased forms users may type.
	validIndicators = map[string]string{
		"sma10":           "SMA10",
		"sma20":           "SMA20",
		"sma50":           "SMA50",
		"sma100":          "SMA100",
		"sma200":          "SMA200",
		"bollinger bands": "Bollinger Bands",
		"bollinger":       "Bollinger Bands",
		"bb":              "Bollinger Bands",
	}
)

// Adapt checks that raw matches the input kind expected for task and produces
// a normalized request. It has no side effects.
func (a *Adapter) Adapt(task model.TaskType, mode model.Mode, raw RawInput) (model.AnalysisRequest, error) {
	kind, err := detectKind(raw)
	if err != nil {
		return model.AnalysisRequest{}, err
	}

	var (
		payload  model.Payload
		metadata = map[string]string{}
	)

	switch task {
	case model.TaskTranscript:
		if kind != model.KindTicker {
			return model.AnalysisRequest{}, mismatch(task, kind, model.KindTicker)
		}
		payload, err = a.ticker(raw.Symbol)
		if err == nil {
			err = a.transcriptMeta(raw.Metadata, metadata)
		}
	case model.TaskPodcast:
		if kind != model.KindMedia {
			return model.AnalysisRequest{}, mismatch(task, kind, model.KindMedia)
		}
		payload, err = a.media(raw, "audio")
	case model.TaskVideo:
		if kind != model.KindURL {
			return model.AnalysisRequest{}, mismatch(task, kind, model.KindURL)
		}
		payload, err = videoURL(raw.URL)
	case model.TaskImage:
		if kind != model.KindMedia {
			return model.AnalysisRequest{}, mismatch(task, kind, model.KindMedia)
		}
		payload, err = a.media(raw, "image")
	case model.TaskChart:
		switch kind {
		case model.KindMedia:
			payload, err = a.media(raw, "image")
		case model.KindTicker:
			payload, err = a.ticker(raw.Symbol)
			if err == nil {
				err = chartMeta(raw.Metadata, metadata)
			}
		default:
			return model.AnalysisRequest{}, analysis.InvalidInput("input",
				"task %s needs an uploaded chart image or a ticker symbol, got a %s", task, kind)
		}
	default:
		return model.AnalysisRequest{}, analysis.InvalidInput("task", "unknown task %q", task)
	}
	if err != nil {
		return model.AnalysisRequest{}, err
	}

	switch mode {
	case model.ModeSummary, model.ModeCompanies:
	default:
		return model.AnalysisRequest{}, analysis.InvalidInput("mode", "unknown mode %q", mode)
	}

	return model.NewAnalysisRequest(task, mode, payload, metadata), nil
}

// detectKind works out which single input the user supplied.
func detectKind(raw RawInput) (model.InputKind, error) {
	var kinds []model.InputKind
	if len(raw.Data) > 0 {
		kinds = append(kinds, model.KindMedia)
	}
	if strings.TrimSpace(raw.URL) != "" {
		kinds = append(kinds, model.KindURL)
	}
	if strings.TrimSpace(raw.Symbol) != "" {
		kinds = append(kinds, model.KindTicker)
	}

	switch len(kinds) {
	case 0:
		return "", analysis.InvalidInput("input", "payload is empty: upload a file, paste a URL or enter a ticker")
	case 1:
		return kinds[0], nil
	default:
		return "", analysis.InvalidInput("input", "supply exactly one of file, URL or ticker (got %d)", len(kinds))
	}
}

func mismatch(task model.TaskType, got, want model.InputKind) error {
	return analysis.InvalidInput("input", "task %s requires a %s, got a %s", task, want, got)
}

func (a *Adapter) ticker(symbol string) (model.Payload, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if !tickerPattern.MatchString(s) {
		return nil, analysis.InvalidInput("symbol", "%q is not a valid ticker symbol", symbol)
	}
	return model.TickerPayload{Symbol: s}, nil
}

// media validates uploaded bytes. wantType is the top-level MIME type ("audio", "image").
func (a *Adapter) media(raw RawInput, wantType string) (model.Payload, error) {
	if a.maxUploadBytes > 0 && int64(len(raw.Data)) > a.maxUploadBytes {
		return nil, analysis.InvalidInput("file", "upload is %d bytes, limit is %d", len(raw.Data), a.maxUploadBytes)
	}

	sniffed := baseType(mimetype.Detect(raw.Data).String())
	declared := baseType(raw.MIMEType)

	mimeType := declared
	if declared == "" || declared == "application/octet-stream" {
		mimeType = sniffed
	} else if sniffed != "application/octet-stream" && topLevel(sniffed) != topLevel(declared) {
		return nil, analysis.InvalidInput("file", "declared as %s but content looks like %s", declared, sniffed)
	}

	if topLevel(mimeType) != wantType {
		return nil, analysis.InvalidInput("file", "expected %s content, got %s", wantType, mimeType)
	}

	data := raw.Data
	if wantType == "image" && a.images != nil {
		var err error
		data, mimeType, err = a.images.Normalize(data, mimeType)
		if err != nil {
			return nil, analysis.InvalidInput("file", "unreadable image: %v", err)
		}
	}

	return model.MediaPayload{Data: data, MIMEType: mimeType, Filename: raw.Filename}, nil
}

func videoURL(raw string) (model.Payload, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, analysis.InvalidInput("url", "%q is not an absolute URL", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, analysis.InvalidInput("url", "scheme %q is not supported, use http or https", u.Scheme)
	}
	return model.URLPayload{URL: u}, nil
}

func (a *Adapter) transcriptMeta(in, out map[string]string) error {
	year := strings.TrimSpace(in[model.MetaYear])
	if year == "" {
		year = strconv.Itoa(a.now().Year())
	}
	y, err := strconv.Atoi(year)
	if err != nil || len(year) != 4 {
		return analysis.InvalidInput("year", "%q is not a four-digit year", year)
	}
	if y > a.now().Year() {
		return analysis.InvalidInput("year", "%d is in the future", y)
	}

	quarter := strings.ToUpper(strings.TrimSpace(in[model.MetaQuarter]))
	if quarter == "" {
		quarter = "1"
	}
	quarter = strings.TrimPrefix(quarter, "Q")
	q, err := strconv.Atoi(quarter)
	if err != nil || q < 1 || q > 4 {
		return analysis.InvalidInput("quarter", "%q is not a quarter (Q1-Q4)", in[model.MetaQuarter])
	}

	out[model.MetaYear] = strconv.Itoa(y)
	out[model.MetaQuarter] = strconv.Itoa(q)
	return nil
}

func chartMeta(in, out map[string]string) error {
	period := defaultString(in[model.MetaPeriod], "6mo")
	if !contains(Periods, period) {
		return analysis.InvalidInput("period", "%q is not one of %s", period, strings.Join(Periods, ", "))
	}

	interval := defaultString(in[model.MetaInterval], "1d")
	if !contains(Intervals, interval) {
		return analysis.InvalidInput("interval", "%q is not one of %s", interval, strings.Join(Intervals, ", "))
	}

	var indicators []string
	for _, name := range strings.Split(defaultString(in[model.MetaIndicators], "SMA20"), ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		canonical, ok := validIndicators[strings.ToLower(name)]
		if !ok {
			return analysis.InvalidInput("indicators", "unknown indicator %q", name)
		}
		if !contains(indicators, canonical) {
			indicators = append(indicators, canonical)
		}
	}

	out[model.MetaPeriod] = period
	out[model.MetaInterval] = interval
	out[model.MetaIndicators] = strings.Join(indicators, ",")
	return nil
}

// baseType strips parameters such as "; charset=utf-8".
func baseType(v string) string {
	if v == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(v))
	}
	return mt
}

func topLevel(mimeType string) string {
	top, _, _ := strings.Cut(mimeType, "/")
	return top
}

func defaultString(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// String is used by log fields.
func (r RawInput) String() string {
	return fmt.Sprintf("RawInput{bytes=%d mime=%q url=%q symbol=%q}", len(r.Data), r.MIMEType, r.URL, r.Symbol)
}
