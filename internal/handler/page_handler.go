package handler

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fleveque/research-analyst/internal/input"
	"github.com/fleveque/research-analyst/internal/model"
	"github.com/fleveque/research-analyst/internal/render"
)

//go:embed templates/page.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/page.html"))

const (
	analysesPath = "/api/v1/analyses"
	teamRunsPath = "/api/v1/team/runs"
)

// pageData feeds templates/page.html.
type pageData struct {
	Action      string
	TeamAction  string
	TeamEnabled bool
	Year        int
	Quarters    []int
	Periods     []string
	Intervals   []string

	Result    template.HTML
	Usage     string
	Warnings  []string
	RequestID string
	Error     string
}

// PageHandler serves the single HTML page and renders results into it.
type PageHandler struct {
	teamEnabled bool
	logger      *zap.Logger
	now         func() time.Time
}

// NewPageHandler creates a PageHandler. teamEnabled shows the team form.
func NewPageHandler(teamEnabled bool, logger *zap.Logger) *PageHandler {
	return &PageHandler{teamEnabled: teamEnabled, logger: logger, now: time.Now}
}

// Index serves the empty page.
// Route: GET /
func (p *PageHandler) Index(c *gin.Context) {
	p.render(c, http.StatusOK, p.data(c))
}

// Result renders a successful analysis into the page.
func (p *PageHandler) Result(c *gin.Context, result *model.DisplayResult) {
	data := p.data(c)
	html, err := render.HTML(*result)
	if err != nil {
		p.Error(c, http.StatusInternalServerError, "could not render the result")
		return
	}
	data.Result = html
	data.Usage = result.UsageSummary
	data.Warnings = result.Warnings
	data.RequestID = result.RequestID
	p.render(c, http.StatusOK, data)
}

// Error renders message at the top of the page.
func (p *PageHandler) Error(c *gin.Context, status int, message string) {
	data := p.data(c)
	data.Error = message
	p.render(c, status, data)
}

func (p *PageHandler) data(c *gin.Context) pageData {
	return pageData{
		Action:      withKey(analysesPath, c.Query("api_key")),
		TeamAction:  withKey(teamRunsPath, c.Query("api_key")),
		TeamEnabled: p.teamEnabled,
		Year:        p.now().Year(),
		Quarters:    []int{1, 2, 3, 4},
		Periods:     input.Periods,
		Intervals:   input.Intervals,
	}
}

func (p *PageHandler) render(c *gin.Context, status int, data pageData) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		p.logger.Error("rendering page", zap.Error(err))
		c.String(http.StatusInternalServerError, "internal error")
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

// withKey carries an api_key query value over to form actions, since HTML
// forms can't set the X-API-Key header.
func withKey(path, key string) string {
	if key == "" {
		return path
	}
	return path + "?" + url.Values{"api_key": {key}}.Encode()
}
