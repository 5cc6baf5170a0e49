// Package render turns a provider response and its usage summary into
// displayable output: markdown for the API, HTML for the web page and styled
// text for the terminal.
package render

import (
	"fmt"
	"strings"

	"github.com/fleveque/research-analyst/internal/model"
)

var headings = map[model.TaskType]string{
	model.TaskTranscript: "Earnings Call Summary",
	model.TaskPodcast:    "Podcast Summary",
	model.TaskVideo:      "Video Summary",
	model.TaskImage:      "Image Analysis",
	model.TaskChart:      "Technical Analysis Summary",
}

// Render formats resp and summary. It is a pure function of its inputs.
func Render(resp *model.ProviderResponse, summary model.UsageSummary) model.DisplayResult {
	var b strings.Builder

	if h := heading(resp); h != "" {
		b.WriteString("## ")
		b.WriteString(h)
		b.WriteString("\n\n")
	}

	if resp.Mode == model.ModeCompanies {
		writeCompanies(&b, resp.Structured)
	} else {
		b.WriteString(strings.TrimSpace(resp.Text))
		b.WriteString("\n")
	}

	return model.DisplayResult{
		RenderedText: b.String(),
		UsageSummary: summary.String(),
	}
}

func heading(resp *model.ProviderResponse) string {
	if resp.Mode == model.ModeCompanies {
		if resp.Subject != "" {
			return "Companies Mentioned: " + resp.Subject
		}
		return "Companies Mentioned"
	}

	h, ok := headings[resp.Task]
	if !ok {
		return ""
	}
	switch {
	case resp.Subject == "":
		return h
	case resp.Task == model.TaskTranscript:
		// "AAPL Q1 2024 Earnings Call Summary"
		return resp.Subject + " " + h
	default:
		return h + ": " + resp.Subject
	}
}

func writeCompanies(b *strings.Builder, companies []model.Company) {
	if len(companies) == 0 {
		b.WriteString("_No companies mentioned._\n")
		return
	}

	b.WriteString("| Company | Symbol | Public | Sector | Industry | Sentiment | Note |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for _, c := range companies {
		public := "No"
		if c.Public {
			public = "Yes"
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s | %s | %s |\n",
			cell(c.Name), cell(c.Symbol), public, cell(c.Sector), cell(c.Industry),
			sentiment(c.Sentiment), cell(c.Note))
	}
}

func sentiment(s int) string {
	switch {
	case s > 0:
		return "Positive (1)"
	case s < 0:
		return "Negative (-1)"
	default:
		return "Neutral (0)"
	}
}

// cell makes a value safe inside a markdown table row.
func cell(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "-"
	}
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}
