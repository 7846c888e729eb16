// Package handlers implements the REST API surface: analysis runs, async
// jobs, layer catalog management, and health probes.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parcelview/geofusion/internal/interfaces/http/middleware"
	"github.com/parcelview/geofusion/pkg/errors"
)

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// respondError maps an application error to its HTTP status.  Server-side
// errors are masked with the code's default message so internals never leak
// to clients.
func respondError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := errors.HTTPStatusForCode(code)

	message := err.Error()
	if errors.IsServerError(code) {
		message = errors.DefaultMessageForCode(code)
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorResponse{
		Code:      code.String(),
		Message:   message,
		RequestID: middleware.GetRequestID(c),
	})
}

// bindJSON decodes the request body, converting bind failures to the
// standard error shape.
func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeBadRequest, "malformed request body"))
		return false
	}
	return true
}

// respondCreated writes a 201 with the created resource.
func respondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}
