// Package llm provides a provider-agnostic interface over the hosted
// multimodal models the analyst talks to. Gemini is the default backend;
// Anthropic (Claude) and OpenAI can be selected in config for the tasks they
// can handle.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/fleveque/research-analyst/internal/analysis"
	"github.com/fleveque/research-analyst/internal/model"
)

// Part is one piece of user content sent to the model. Exactly one of Text,
// Data or FileURI is set.
type Part struct {
	Text     string
	Data     []byte // inline media bytes
	MIMEType string // MIME type of Data or FileURI
	FileURI  string // a hosted file, e.g. a YouTube URL
}

// TextPart is a shorthand for a text-only Part.
func TextPart(s string) Part { return Part{Text: s} }

// GenerateRequest is a single-turn generation request.
type GenerateRequest struct {
	SystemInstruction string
	Parts             []Part
	// Companies asks the model for a JSON list of companies instead of prose.
	Companies bool
}

// GenerateResult is the model's reply and the tokens it was billed for.
type GenerateResult struct {
	Text      string
	Companies []model.Company // set when the request asked for companies
	Usage     model.TokenUsage
}

// Capabilities lists the media kinds a backend accepts.
type Capabilities struct {
	Image bool
	Audio bool
	Video bool // hosted video URLs
}

// Client is the interface every model backend implements.
//
// Keep it small: the builder only needs to send a request and know who it
// talked to, so that's all that's here.
type Client interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
	Capabilities() Capabilities
	ProviderName() string
	ModelName() string
}

// transportError converts a failure that produced no HTTP response into an
// UpstreamError with Status 0. Context errors are returned unchanged so the
// caller can tell a timeout from an unreachable host.
func transportError(service string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return &analysis.UpstreamError{Service: service, Message: err.Error()}
}
