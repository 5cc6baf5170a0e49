package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/fleveque/research-analyst/internal/analysis"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// errorResponse maps err to a status code and body. Internal errors are
// logged and their details withheld from the client.
func errorResponse(err error, logger *zap.Logger) (int, errorBody) {
	if tooLarge(err) {
		return http.StatusRequestEntityTooLarge, errorBody{
			Error:   "invalid_input",
			Message: "upload exceeds the maximum allowed size",
		}
	}

	kind := analysis.Kind(err)
	status := analysis.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error("internal error", zap.Error(err))
		return status, errorBody{Error: kind, Message: "internal error"}
	}
	return status, errorBody{Error: kind, Message: err.Error()}
}

func respondError(c *gin.Context, err error, logger *zap.Logger) {
	status, body := errorResponse(err, logger)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

// wantsHTML reports whether the client asked for an HTML page, as browser
// form submissions do.
func wantsHTML(c *gin.Context) bool {
	return c.NegotiateFormat(gin.MIMEJSON, gin.MIMEHTML) == gin.MIMEHTML
}

// bindError turns gin binding failures into InvalidInputErrors naming the
// offending form field.
func bindError(err error) error {
	if tooLarge(err) {
		return err
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return analysis.InvalidInput(strings.ToLower(fe.Field()), "failed %q validation", fe.Tag())
	}
	return analysis.InvalidInput("form", "%v", err)
}

// tooLarge reports whether err came from http.MaxBytesReader. The multipart
// parser doesn't always wrap it, so the message is checked as well.
func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}
