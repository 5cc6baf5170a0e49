package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fleveque/research-analyst/internal/storage"
)

// AdminHandler handles administrative endpoints over the call log.
type AdminHandler struct {
	calls  storage.CallRepository
	logger *zap.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(calls storage.CallRepository, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{calls: calls, logger: logger}
}

// Stats returns call counts and token totals, overall and per task.
// Route: GET /api/v1/admin/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := h.calls.Stats(ctx)
	if err != nil {
		h.logger.Error("aggregating call stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody{Error: "internal_error", Message: "internal error"})
		return
	}

	byTask, err := h.calls.CountByTask(ctx)
	if err != nil {
		h.logger.Error("counting calls by task", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody{Error: "internal_error", Message: "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"calls":   stats,
		"by_task": byTask,
	})
}

// Calls lists the external calls made for one request.
// Route: GET /api/v1/admin/calls/:request_id
func (h *AdminHandler) Calls(c *gin.Context) {
	requestID := c.Param("request_id")

	calls, err := h.calls.ListByRequestID(c.Request.Context(), requestID)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorBody{Error: "not_found", Message: "no calls recorded for request " + requestID})
		return
	}
	if err != nil {
		h.logger.Error("listing calls", zap.String("request_id", requestID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody{Error: "internal_error", Message: "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"request_id": requestID, "calls": calls})
}
