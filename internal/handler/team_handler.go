package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type teamRunRequest struct {
	Query string `json:"query" form:"query" binding:"required,max=4000"`
}

// TeamHandler forwards free-form questions to the multi-agent team.
type TeamHandler struct {
	analyzer Analyzer
	page     *PageHandler
	logger   *zap.Logger
}

// NewTeamHandler creates a TeamHandler.
func NewTeamHandler(analyzer Analyzer, page *PageHandler, logger *zap.Logger) *TeamHandler {
	return &TeamHandler{analyzer: analyzer, page: page, logger: logger}
}

// Run handles a team question.
// Route: POST /api/v1/team/runs
//
// Takes JSON {"query": "..."} from API clients or a form from the page.
func (h *TeamHandler) Run(c *gin.Context) {
	var req teamRunRequest
	if err := c.ShouldBind(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}

	result, err := h.analyzer.RunTeam(c.Request.Context(), req.Query)
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

func (h *TeamHandler) fail(c *gin.Context, err error) {
	if wantsHTML(c) {
		status, body := errorResponse(err, h.logger)
		_ = c.Error(err)
		h.page.Error(c, status, body.Message)
		return
	}
	respondError(c, err, h.logger)
}
