package model

import (
	"context"
	"maps"
	"net/url"

	"github.com/google/uuid"
)

// Payload is the tagged variant carried by an AnalysisRequest. The set of
// implementations is closed: MediaPayload, URLPayload and TickerPayload.
type Payload interface {
	Kind() InputKind
	isPayload()
}

// MediaPayload carries uploaded audio or image bytes.
type MediaPayload struct {
	Data     []byte
	MIMEType string
	Filename string
}

func (MediaPayload) Kind() InputKind { return KindMedia }
func (MediaPayload) isPayload()      {}

// URLPayload carries a validated absolute http(s) URL.
type URLPayload struct {
	URL *url.URL
}

func (URLPayload) Kind() InputKind { return KindURL }
func (URLPayload) isPayload()      {}

// TickerPayload carries an upper-cased stock symbol.
type TickerPayload struct {
	Symbol string
}

func (TickerPayload) Kind() InputKind { return KindTicker }
func (TickerPayload) isPayload()      {}

// Metadata keys understood by the request builder.
const (
	MetaYear       = "year"
	MetaQuarter    = "quarter"
	MetaPeriod     = "period"
	MetaInterval   = "interval"
	MetaIndicators = "indicators"
)

// AnalysisRequest is one user action, normalized by the input adapter.
// Fields are unexported so a request can't change after validation.
type AnalysisRequest struct {
	id       uuid.UUID
	task     TaskType
	mode     Mode
	payload  Payload
	metadata map[string]string
}

// NewAnalysisRequest builds a request with a fresh ID. The metadata map is copied.
func NewAnalysisRequest(task TaskType, mode Mode, payload Payload, metadata map[string]string) AnalysisRequest {
	return AnalysisRequest{
		id:       uuid.New(),
		task:     task,
		mode:     mode,
		payload:  payload,
		metadata: maps.Clone(metadata),
	}
}

// WithID returns a copy of r carrying id. The transport layer uses it so the
// call log is keyed by the ID the client sees.
func (r AnalysisRequest) WithID(id uuid.UUID) AnalysisRequest {
	r.id = id
	return r
}

func (r AnalysisRequest) ID() uuid.UUID    { return r.id }
func (r AnalysisRequest) Task() TaskType   { return r.task }
func (r AnalysisRequest) Mode() Mode       { return r.mode }
func (r AnalysisRequest) Payload() Payload { return r.payload }

// Metadata returns a copy of the optional parameters.
func (r AnalysisRequest) Metadata() map[string]string {
	return maps.Clone(r.metadata)
}

// Meta returns a single metadata value, or "" when unset.
func (r AnalysisRequest) Meta(key string) string {
	return r.metadata[key]
}

type requestIDKey struct{}

// ContextWithRequestID returns a copy of ctx carrying the request ID.
func ContextWithRequestID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID stored by ContextWithRequestID.
func RequestIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(requestIDKey{}).(uuid.UUID)
	return id, ok && id != uuid.Nil
}
