package respond

import (
	"github.com/gin-gonic/gin"

	"github.com/FIipFIop/perp-prediction/internal/shared/telemetry"
)

// ErrorResponse is the error body returned to clients. Error is always a plain string
// so browser clients can surface it directly.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// Error sends a standardized error response.
func Error(c *gin.Context, status int, code, errText string, details interface{}) {
	write(c, status, ErrorResponse{Error: errText, Code: code, Details: details})
}

// ErrorWithMessage sends an error response carrying an extra human readable message.
func ErrorWithMessage(c *gin.Context, status int, code, errText, message string) {
	write(c, status, ErrorResponse{Error: errText, Message: message, Code: code})
}

func write(c *gin.Context, status int, body ErrorResponse) {
	fields := map[string]any{
		"status":     status,
		"code":       body.Code,
		"error":      body.Error,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	}
	if body.Message != "" {
		fields["message"] = body.Message
	}
	if userID := c.GetString("userId"); userID != "" {
		fields["user_id"] = userID
	}
	if status >= 500 {
		telemetry.Error("http.error", fields)
	} else {
		telemetry.Warn("http.error", fields)
	}

	c.AbortWithStatusJSON(status, body)
}
