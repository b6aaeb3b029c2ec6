package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quorumlabs/quorum/pkg/services"
)

// ErrorResponse is the uniform error envelope for every non-2xx response.
type ErrorResponse struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RunID     string      `json:"run_id,omitempty"`
	Details   interface{} `json:"details,omitempty"`
	RequestID string      `json:"request_id"`
}

// writeError maps a service error onto the error envelope.
func writeError(c *gin.Context, err error) {
	svcErr := services.AsError(err)
	resp := ErrorResponse{
		Code:      string(svcErr.Code),
		Message:   svcErr.Message,
		Details:   svcErr.Details,
		RequestID: c.GetString(requestIDKey),
	}
	if svcErr.RunID != nil {
		resp.RunID = svcErr.RunID.String()
	}
	c.JSON(svcErr.HTTPStatus(), resp)
}

func abortUnsupportedVersion(c *gin.Context, what, got, want string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Code:      string(services.CodeUnsupportedVersion),
		Message:   fmt.Sprintf("unsupported %s %q, this deployment serves %q", what, got, want),
		RequestID: c.GetString(requestIDKey),
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Code:      string(services.CodeValidationError),
		Message:   message,
		RequestID: c.GetString(requestIDKey),
	})
}
