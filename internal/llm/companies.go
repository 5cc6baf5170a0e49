package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fleveque/research-analyst/internal/model"
)

// companiesInstruction is appended to the system instruction for backends
// without native response schemas.
const companiesInstruction = `

Respond with JSON only, no prose and no code fences, in exactly this shape:
{"companies": [{"name": "...", "symbol": "...", "public": true, "sector": "...", "industry": "...", "sentiment": 1, "note": "..."}]}
sentiment is 1 for positive, 0 for neutral and -1 for negative. Use an empty string for unknown symbol, sector or industry.`

// decodeCompanies accepts either a bare JSON array of companies or an object
// wrapping it under "companies".
func decodeCompanies(content string) ([]model.Company, error) {
	content = cleanJSONResponse(content)
	if content == "" {
		return nil, fmt.Errorf("empty companies response")
	}

	var companies []model.Company
	if strings.HasPrefix(content, "[") {
		if err := json.Unmarshal([]byte(content), &companies); err != nil {
			return nil, fmt.Errorf("decoding companies: %w", err)
		}
	} else {
		var wrapper struct {
			Companies []model.Company `json:"companies"`
		}
		if err := json.Unmarshal([]byte(content), &wrapper); err != nil {
			return nil, fmt.Errorf("decoding companies: %w", err)
		}
		companies = wrapper.Companies
	}

	for i := range companies {
		companies[i].Sentiment = clampSentiment(companies[i].Sentiment)
		companies[i].Symbol = strings.ToUpper(strings.TrimSpace(companies[i].Symbol))
	}
	return companies, nil
}

func clampSentiment(s int) int {
	switch {
	case s > 0:
		return 1
	case s < 0:
		return -1
	default:
		return 0
	}
}

// cleanJSONResponse strips code fences and any prose around the JSON value.
func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	opening, closing := "{", "}"
	if arr := strings.Index(content, "["); arr >= 0 {
		if obj := strings.Index(content, "{"); obj < 0 || arr < obj {
			opening, closing = "[", "]"
		}
	}
	start := strings.Index(content, opening)
	end := strings.LastIndex(content, closing)
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}
