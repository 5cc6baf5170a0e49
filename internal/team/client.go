// Package team forwards free-form questions to a remote multi-agent team
// (an Agno AgentOS deployment). The team's internal coordination is opaque:
// we send a message and get back a markdown report and token counts.
package team

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/fleveque/research-analyst/internal/analysis"
	"github.com/fleveque/research-analyst/internal/model"
)

// Runner runs a query against a multi-agent team.
type Runner interface {
	Run(ctx context.Context, query string) (*model.ProviderResponse, error)
}

// Client is the AgentOS implementation of Runner.
type Client struct {
	baseURL    string
	teamID     string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a team client. An empty baseURL yields a client whose
// Run always returns analysis.ErrNotConfigured.
func NewClient(baseURL, teamID, apiKey string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		teamID:     teamID,
		apiKey:     apiKey,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// tokenCount accepts a plain integer or a list of per-member counts, which
// older AgentOS versions report for teams.
type tokenCount int64

func (t *tokenCount) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*t = tokenCount(n)
		return nil
	}
	var list []int64
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("token count is neither a number nor a list: %s", data)
	}
	var sum int64
	for _, v := range list {
		sum += v
	}
	*t = tokenCount(sum)
	return nil
}

type runResponse struct {
	Content any    `json:"content"`
	Model   string `json:"model"`
	Metrics struct {
		InputTokens  tokenCount `json:"input_tokens"`
		OutputTokens tokenCount `json:"output_tokens"`
		TotalTokens  tokenCount `json:"total_tokens"`
	} `json:"metrics"`
}

// Run posts query to the team and waits for the complete (non-streamed) run.
func (c *Client) Run(ctx context.Context, query string) (*model.ProviderResponse, error) {
	if c.baseURL == "" || c.teamID == "" {
		return nil, fmt.Errorf("team: %w", analysis.ErrNotConfigured)
	}
	if strings.TrimSpace(query) == "" {
		return nil, analysis.InvalidInput("query", "query is empty")
	}

	form := url.Values{}
	form.Set("message", query)
	form.Set("stream", "false")

	endpoint := fmt.Sprintf("%s/teams/%s/runs", c.baseURL, url.PathEscape(c.teamID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, transportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &analysis.UpstreamError{Service: "team", Status: resp.StatusCode, Message: errorDetail(body, resp.Status)}
	}

	var run runResponse
	if err := json.Unmarshal(body, &run); err != nil {
		return nil, &analysis.UpstreamError{Service: "team", Status: resp.StatusCode, Message: "decoding response: " + err.Error()}
	}

	content := contentText(run.Content)
	if content == "" {
		return nil, &analysis.UpstreamError{Service: "team", Status: resp.StatusCode, Message: "run returned no content"}
	}

	c.logger.Debug("team run complete",
		zap.String("team_id", c.teamID),
		zap.Int64("total_tokens", int64(run.Metrics.TotalTokens)),
	)

	return &model.ProviderResponse{
		Mode:     model.ModeSummary,
		Text:     content,
		Provider: "team:" + c.teamID,
		Model:    run.Model,
		Usage: model.TokenUsage{
			Input:  int64(run.Metrics.InputTokens),
			Output: int64(run.Metrics.OutputTokens),
			Total:  int64(run.Metrics.TotalTokens),
		},
	}, nil
}

// contentText handles content being a string or structured output.
func contentText(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(c)
	default:
		b, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return ""
		}
		return "```json\n" + string(b) + "\n```"
	}
}

// errorDetail extracts FastAPI's {"detail": ...} error message.
func errorDetail(body []byte, def string) string {
	var e struct {
		Detail any `json:"detail"`
	}
	if json.Unmarshal(body, &e) == nil && e.Detail != nil {
		if s, ok := e.Detail.(string); ok {
			return s
		}
		b, _ := json.Marshal(e.Detail)
		return string(b)
	}
	return def
}

func transportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: team", context.DeadlineExceeded)
	}
	return &analysis.UpstreamError{Service: "team", Message: err.Error()}
}
