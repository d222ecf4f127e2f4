package respond

import (
	"github.com/gin-gonic/gin"

	"assessment-backend/internal/shared/telemetry"
)

// ErrorBody is the payload every failed request carries under "error".
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Error aborts the request with the error envelope. Server faults log at
// error level, caller mistakes at warn.
func Error(c *gin.Context, status int, code, message string, details any) {
	log := telemetry.Warn
	if status >= 500 {
		log = telemetry.Error
	}
	log("http.error", errorFields(c, status, code, message))

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorBody{Code: code, Message: message, Details: details},
	})
}

// errorFields reads the request and customer ids straight from the gin
// context; the middleware package sets them and imports this one.
func errorFields(c *gin.Context, status int, code, message string) map[string]any {
	fields := map[string]any{
		"http_status": status,
		"error_code":  code,
		"message":     message,
		"route":       c.FullPath(),
		"method":      c.Request.Method,
	}
	if id := c.GetString("requestId"); id != "" {
		fields["request_id"] = id
	}
	if id := c.GetString("customerId"); id != "" {
		fields["customer_id"] = id
	}
	return fields
}
