package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/fleveque/research-analyst/internal/model"
)

// GFM gives us tables, which the companies view and most model reports use.
// Raw HTML in model output is escaped, goldmark's default.
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// HTML converts the rendered markdown for the web page.
func HTML(result model.DisplayResult) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(result.RenderedText), &buf); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

var (
	usageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)
)

// Terminal renders result for a terminal of the given width. style is a
// glamour style name such as "dark", "light" or "notty".
func Terminal(result model.DisplayResult, width int, style string) (string, error) {
	if style == "" {
		style = "notty"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("creating terminal renderer: %w", err)
	}

	body, err := r.Render(result.RenderedText)
	if err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}

	var b strings.Builder
	b.WriteString(body)
	for _, w := range result.Warnings {
		b.WriteString(warningStyle.Render("warning: " + w))
		b.WriteString("\n")
	}
	if result.UsageSummary != "" {
		b.WriteString(usageStyle.Render(result.UsageSummary))
		b.WriteString("\n")
	}
	return b.String(), nil
}
