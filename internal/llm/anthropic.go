package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/fleveque/research-analyst/internal/analysis"
	"github.com/fleveque/research-analyst/internal/model"
)

// AnthropicClient implements the Client interface using Claude.
// Claude reads text and images but not audio or hosted video, so podcast
// and video tasks are refused before any call is made.
type AnthropicClient struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicClient creates a Claude-backed client. baseURL is optional.
func NewAnthropicClient(apiKey, model, baseURL string) *AnthropicClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Failures surface to the user as-is; we never retry.
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicClient{
		client:    &client,
		model:     model,
		maxTokens: 4096,
	}
}

func (a *AnthropicClient) ProviderName() string { return "anthropic" }
func (a *AnthropicClient) ModelName() string    { return a.model }

func (a *AnthropicClient) Capabilities() Capabilities {
	return Capabilities{Image: true}
}

func (a *AnthropicClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(req.Parts))
	for _, p := range req.Parts {
		switch {
		case len(p.Data) > 0 && strings.HasPrefix(p.MIMEType, "image/"):
			blocks = append(blocks, anthropic.NewImageBlockBase64(p.MIMEType, base64.StdEncoding.EncodeToString(p.Data)))
		case len(p.Data) > 0 || p.FileURI != "":
			return nil, analysis.InvalidInput("task", "%s cannot read %s content", a.ProviderName(), p.MIMEType)
		default:
			blocks = append(blocks, anthropic.NewTextBlock(p.Text))
		}
	}

	system := req.SystemInstruction
	if req.Companies {
		system += companiesInstruction
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, anthropicError(err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	if text.Len() == 0 {
		return nil, &analysis.UpstreamError{Service: "anthropic", Status: http.StatusOK, Message: fmt.Sprintf("no text in response (stop reason %s)", message.StopReason)}
	}

	// The Messages API reports input and output counts but no total, so the
	// total is their sum and the usage tracker's consistency check always
	// passes for this backend.
	result := &GenerateResult{
		Text: text.String(),
		Usage: model.TokenUsage{
			Input:  message.Usage.InputTokens,
			Output: message.Usage.OutputTokens,
			Total:  message.Usage.InputTokens + message.Usage.OutputTokens,
		},
	}
	if req.Companies {
		companies, err := decodeCompanies(result.Text)
		if err != nil {
			return nil, &analysis.UpstreamError{Service: "anthropic", Status: http.StatusOK, Message: err.Error()}
		}
		result.Companies = companies
	}
	return result, nil
}

func anthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &analysis.UpstreamError{Service: "anthropic", Status: apiErr.StatusCode, Message: http.StatusText(apiErr.StatusCode)}
	}
	return transportError("anthropic", err)
}
