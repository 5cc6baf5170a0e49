package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/fleveque/research-analyst/internal/analysis"
	"github.com/fleveque/research-analyst/internal/model"
)

// DefaultInlineLimit is the largest media payload sent inline. Anything
// bigger goes through the Files API first.
const DefaultInlineLimit = 20 << 20

// fileDeleteTimeout bounds the cleanup of uploaded media after a call.
const fileDeleteTimeout = 10 * time.Second

// fileStore is the part of the Files API the client uses. *genai.Files
// implements it.
type fileStore interface {
	Upload(ctx context.Context, r io.Reader, config *genai.UploadFileConfig) (*genai.File, error)
	Get(ctx context.Context, name string, config *genai.GetFileConfig) (*genai.File, error)
	Delete(ctx context.Context, name string, config *genai.DeleteFileConfig) (*genai.DeleteFileResponse, error)
}

// GeminiClient implements Client with Google's genai SDK. It's the only
// backend that accepts audio and hosted video URLs directly.
type GeminiClient struct {
	client      *genai.Client
	files       fileStore
	model       string
	inlineLimit int
	pollEvery   time.Duration
}

// NewGeminiClient creates a Gemini client. A non-empty baseURL overrides the
// API endpoint, e.g. for a proxy or a test server.
func NewGeminiClient(ctx context.Context, apiKey, model, baseURL string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiClient{
		client:      client,
		files:       client.Files,
		model:       model,
		inlineLimit: DefaultInlineLimit,
		pollEvery:   2 * time.Second,
	}, nil
}

func (g *GeminiClient) ProviderName() string { return "gemini" }
func (g *GeminiClient) ModelName() string    { return g.model }

func (g *GeminiClient) Capabilities() Capabilities {
	return Capabilities{Image: true, Audio: true, Video: true}
}

// companiesSchema mirrors model.Company.
var companiesSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"name":      {Type: genai.TypeString},
			"symbol":    {Type: genai.TypeString, Description: "Ticker symbol, empty if private"},
			"public":    {Type: genai.TypeBoolean},
			"sector":    {Type: genai.TypeString},
			"industry":  {Type: genai.TypeString},
			"sentiment": {Type: genai.TypeInteger, Description: "1 positive, 0 neutral, -1 negative"},
			"note":      {Type: genai.TypeString},
		},
		Required:         []string{"name", "public", "sentiment", "note"},
		PropertyOrdering: []string{"name", "symbol", "public", "sector", "industry", "sentiment", "note"},
	},
}

// Generate sends one prompt. Media uploaded through the Files API for this
// call is deleted before Generate returns, whether or not the call succeeded.
func (g *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	var uploaded []string
	defer func() { g.deleteFiles(ctx, uploaded) }()

	parts := make([]*genai.Part, 0, len(req.Parts))
	for _, p := range req.Parts {
		part, name, err := g.toPart(ctx, p)
		if name != "" {
			uploaded = append(uploaded, name)
		}
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}

	config := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{
			genai.NewPartFromText(req.SystemInstruction),
		}}
	}
	if req.Companies {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = companiesSchema
	}

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, geminiError(err)
	}

	text := resp.Text()
	if text == "" {
		reason := "no candidates"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = "blocked: " + string(resp.PromptFeedback.BlockReason)
		}
		return nil, &analysis.UpstreamError{Service: "gemini", Status: http.StatusOK, Message: "empty response (" + reason + ")"}
	}

	result := &GenerateResult{Text: text, Usage: geminiUsage(resp.UsageMetadata)}
	if req.Companies {
		companies, err := decodeCompanies(text)
		if err != nil {
			return nil, &analysis.UpstreamError{Service: "gemini", Status: http.StatusOK, Message: err.Error()}
		}
		result.Companies = companies
	}
	return result, nil
}

// geminiUsage reports tokens as billed: thinking tokens count as output and
// tool-use prompt tokens as input, so Input + Output matches the reported total.
func geminiUsage(m *genai.GenerateContentResponseUsageMetadata) model.TokenUsage {
	if m == nil {
		return model.TokenUsage{}
	}
	return model.TokenUsage{
		Input:  int64(m.PromptTokenCount) + int64(m.ToolUsePromptTokenCount),
		Output: int64(m.CandidatesTokenCount) + int64(m.ThoughtsTokenCount),
		Total:  int64(m.TotalTokenCount),
	}
}

// toPart converts p for the SDK. name is set when p was uploaded, even if
// the upload later failed, so the caller can delete the file.
func (g *GeminiClient) toPart(ctx context.Context, p Part) (part *genai.Part, name string, err error) {
	switch {
	case p.FileURI != "":
		return genai.NewPartFromURI(p.FileURI, p.MIMEType), "", nil
	case len(p.Data) > g.inlineLimit:
		var file *genai.File
		if file, name, err = g.upload(ctx, p); err != nil {
			return nil, name, err
		}
		return genai.NewPartFromURI(file.URI, file.MIMEType), name, nil
	case len(p.Data) > 0:
		return genai.NewPartFromBytes(p.Data, p.MIMEType), "", nil
	default:
		return genai.NewPartFromText(p.Text), "", nil
	}
}

// upload sends large media through the Files API and waits until it can be
// referenced from a prompt. name is the uploaded file's name once the upload
// itself has succeeded.
func (g *GeminiClient) upload(ctx context.Context, p Part) (file *genai.File, name string, err error) {
	file, err = g.files.Upload(ctx, bytes.NewReader(p.Data), &genai.UploadFileConfig{MIMEType: p.MIMEType})
	if err != nil {
		return nil, "", geminiError(err)
	}
	name = file.Name

	for file.State == genai.FileStateProcessing {
		select {
		case <-ctx.Done():
			return nil, name, ctx.Err()
		case <-time.After(g.pollEvery):
		}
		file, err = g.files.Get(ctx, name, nil)
		if err != nil {
			return nil, name, geminiError(err)
		}
	}
	if file.State == genai.FileStateFailed {
		return nil, name, &analysis.UpstreamError{Service: "gemini", Status: http.StatusOK, Message: "file processing failed for " + name}
	}
	return file, name, nil
}

// deleteFiles removes uploaded media. It runs after ctx is done too. Errors
// are dropped: the Files API expires uploads after 48 hours regardless.
func (g *GeminiClient) deleteFiles(ctx context.Context, names []string) {
	if len(names) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fileDeleteTimeout)
	defer cancel()
	for _, name := range names {
		_, _ = g.files.Delete(ctx, name, nil)
	}
}

// geminiError maps SDK errors onto the analysis error kinds.
func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &analysis.UpstreamError{Service: "gemini", Status: apiErr.Code, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &analysis.UpstreamError{Service: "gemini", Status: apiErrPtr.Code, Message: apiErrPtr.Message}
	}
	return transportError("gemini", err)
}
