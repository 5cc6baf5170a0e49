// Package prompt holds the system instructions sent with each task. They are
// configuration rather than logic: any of them can be replaced from the
// config file under prompts.<task>.<mode>.
package prompt

import (
	"fmt"
	"strings"

	"github.com/fleveque/research-analyst/internal/model"
)

const reportStyle = `
Your reporting style:
- Highlight key insights with bullet points
- Use tables for data presentation
- Explain technical terms briefly
- Keep commentary succinct but informative`

const mediaSummary = `You are a financial market analyst. Analyze this %s for financial insights and provide:

1. Executive Summary
A concise overview of the key findings and why they matter.

2. Key Findings
The main points discussed, with expert insights and notable quotes.
` + reportStyle

const companiesBase = `You are a stock market analyst who reads market sentiment from a %s.

- Extract every company mentioned: its name, whether it is publicly traded, its ticker symbol if it has one, and its sector and industry.
- Score the sentiment towards each company: 1 if positive, -1 if negative, 0 if neutral.
- Give a one sentence explanation for each score, restating what was said.`

var defaults = map[model.TaskType]map[model.Mode]string{
	model.TaskTranscript: {
		model.ModeSummary: `You are a stock market analyst who analyzes earnings call transcripts and writes a comprehensive summary.

Cover these sections:
1. Financial Performance Summary
2. Product and Service Breakdown
3. Geographical Breakdown
4. Challenges and Risks
5. Future Outlook
6. Other Topics
` + reportStyle,
		model.ModeCompanies: fmt.Sprintf(companiesBase, "earnings call transcript") +
			"\n\nExclude companies that are only mentioned while introducing analysts.",
	},
	model.TaskPodcast: {
		model.ModeSummary:   fmt.Sprintf(mediaSummary, "podcast"),
		model.ModeCompanies: fmt.Sprintf(companiesBase, "podcast interview"),
	},
	model.TaskVideo: {
		model.ModeSummary:   fmt.Sprintf(mediaSummary, "video"),
		model.ModeCompanies: fmt.Sprintf(companiesBase, "video"),
	},
	model.TaskImage: {
		model.ModeSummary:   fmt.Sprintf(mediaSummary, "image"),
		model.ModeCompanies: fmt.Sprintf(companiesBase, "image"),
	},
	model.TaskChart: {
		model.ModeSummary: `You are an expert technical analyst. Analyze this stock chart (or the technical data provided) and give:

1. Technical Analysis Summary
- Trend analysis
- Pattern identification
- Support and resistance levels

2. Trading Recommendation
- BUY, SELL or HOLD
- The rationale for the recommendation
- Key risk factors
- Suggested entry and exit points for a BUY or SELL; skip this for HOLD

Use bullet points. Be specific about price levels and indicators.`,
		model.ModeCompanies: fmt.Sprintf(companiesBase, "stock chart"),
	},
}

// Set resolves the system instruction for a task and mode.
type Set struct {
	templates map[model.TaskType]map[model.Mode]string
}

// NewSet returns the default instructions with overrides applied. Override
// keys have the form "<task>.<mode>", e.g. "transcript.summary".
func NewSet(overrides map[string]string) (*Set, error) {
	s := &Set{templates: make(map[model.TaskType]map[model.Mode]string, len(defaults))}
	for task, modes := range defaults {
		s.templates[task] = make(map[model.Mode]string, len(modes))
		for mode, text := range modes {
			s.templates[task][mode] = text
		}
	}

	for key, text := range overrides {
		taskName, modeName, ok := strings.Cut(key, ".")
		task, taskOK := model.ParseTaskType(taskName)
		mode, modeOK := model.ParseMode(modeName)
		if !ok || !taskOK || !modeOK || modeName == "" {
			return nil, fmt.Errorf("invalid prompt override key %q, want <task>.<mode>", key)
		}
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("prompt override %q is empty", key)
		}
		s.templates[task][mode] = strings.TrimSpace(text)
	}
	return s, nil
}

// Instruction returns the system instruction for task and mode.
func (s *Set) Instruction(task model.TaskType, mode model.Mode) string {
	return s.templates[task][mode]
}
