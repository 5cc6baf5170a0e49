package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fleveque/research-analyst/internal/analysis"
	"github.com/fleveque/research-analyst/internal/model"
)

// OpenAIClient implements the Client interface using OpenAI chat completions.
// Images are sent as data URLs; audio and hosted video are not supported.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates an OpenAI-backed client. baseURL is optional.
func NewOpenAIClient(apiKey, model, baseURL string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (o *OpenAIClient) ProviderName() string { return "openai" }
func (o *OpenAIClient) ModelName() string    { return o.model }

func (o *OpenAIClient) Capabilities() Capabilities {
	return Capabilities{Image: true}
}

func (o *OpenAIClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	content := make([]openai.ChatMessagePart, 0, len(req.Parts))
	for _, p := range req.Parts {
		switch {
		case len(p.Data) > 0 && strings.HasPrefix(p.MIMEType, "image/"):
			content = append(content, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:" + p.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Data),
					Detail: openai.ImageURLDetailAuto,
				},
			})
		case len(p.Data) > 0 || p.FileURI != "":
			return nil, analysis.InvalidInput("task", "%s cannot read %s content", o.ProviderName(), p.MIMEType)
		default:
			content = append(content, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: p.Text})
		}
	}

	system := req.SystemInstruction
	if req.Companies {
		system += companiesInstruction
	}

	var messages []openai.ChatCompletionMessage
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: content})

	chatReq := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	}
	if req.Companies {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, openAIError(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, &analysis.UpstreamError{Service: "openai", Status: http.StatusOK, Message: "no choices in response"}
	}

	result := &GenerateResult{
		Text: resp.Choices[0].Message.Content,
		Usage: model.TokenUsage{
			Input:  int64(resp.Usage.PromptTokens),
			Output: int64(resp.Usage.CompletionTokens),
			Total:  int64(resp.Usage.TotalTokens),
		},
	}
	if req.Companies {
		companies, err := decodeCompanies(result.Text)
		if err != nil {
			return nil, &analysis.UpstreamError{Service: "openai", Status: http.StatusOK, Message: err.Error()}
		}
		result.Companies = companies
	}
	return result, nil
}

func openAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &analysis.UpstreamError{Service: "openai", Status: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &analysis.UpstreamError{Service: "openai", Status: reqErr.HTTPStatusCode, Message: http.StatusText(reqErr.HTTPStatusCode)}
	}
	return transportError("openai", err)
}
