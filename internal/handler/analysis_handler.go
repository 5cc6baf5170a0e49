package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fleveque/research-analyst/internal/input"
	"github.com/fleveque/research-analyst/internal/model"
)

// Analyzer is implemented by *service.AnalysisService.
type Analyzer interface {
	Analyze(ctx context.Context, task, mode string, raw input.RawInput) (*model.DisplayResult, error)
	RunTeam(ctx context.Context, query string) (*model.DisplayResult, error)
}

// analyzeForm is the multipart form accepted by POST /api/v1/analyses.
// The uploaded file arrives separately under "file".
type analyzeForm struct {
	Task       string `form:"task" binding:"required"`
	Mode       string `form:"mode"`
	URL        string `form:"url" binding:"omitempty,max=2048"`
	Symbol     string `form:"symbol" binding:"omitempty,max=10"`
	Year       string `form:"year" binding:"omitempty,numeric,len=4"`
	Quarter    string `form:"quarter" binding:"omitempty,max=2"`
	Period     string `form:"period"`
	Interval   string `form:"interval"`
	Indicators string `form:"indicators"`
}

// multipartOverhead is slack on top of the upload limit for the other form
// fields and multipart boundaries.
const multipartOverhead = 1 << 20

// AnalysisHandler runs analyses submitted by the page or API clients.
type AnalysisHandler struct {
	analyzer       Analyzer
	page           *PageHandler
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewAnalysisHandler creates an AnalysisHandler.
func NewAnalysisHandler(analyzer Analyzer, page *PageHandler, maxUploadBytes int64, logger *zap.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		analyzer:       analyzer,
		page:           page,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Analyze handles one analysis request.
// Route: POST /api/v1/analyses
//
// Responds with the JSON DisplayResult, or with the HTML page when the
// client sends Accept: text/html.
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)

	var form analyzeForm
	if err := c.ShouldBind(&form); err != nil {
		h.fail(c, bindError(err))
		return
	}

	raw := input.RawInput{
		URL:      form.URL,
		Symbol:   form.Symbol,
		Metadata: metadata(form),
	}

	fh, err := c.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		h.fail(c, bindError(err))
		return
	default:
		if raw.Data, err = readUpload(fh); err != nil {
			h.fail(c, err)
			return
		}
		raw.MIMEType = fh.Header.Get("Content-Type")
		raw.Filename = fh.Filename
	}

	result, err := h.analyzer.Analyze(c.Request.Context(), form.Task, form.Mode, raw)
	if err != nil {
		h.fail(c, err)
		return
	}

	if wantsHTML(c) {
		h.page.Result(c, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *AnalysisHandler) fail(c *gin.Context, err error) {
	if wantsHTML(c) {
		status, body := errorResponse(err, h.logger)
		_ = c.Error(err)
		h.page.Error(c, status, body.Message)
		return
	}
	respondError(c, err, h.logger)
}

// metadata keeps only the optional parameters the user actually set.
func metadata(f analyzeForm) map[string]string {
	m := map[string]string{}
	for k, v := range map[string]string{
		model.MetaYear:       f.Year,
		model.MetaQuarter:    f.Quarter,
		model.MetaPeriod:     f.Period,
		model.MetaInterval:   f.Interval,
		model.MetaIndicators: f.Indicators,
	} {
		if v != "" {
			m[k] = v
		}
	}
	return m
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	return data, nil
}
