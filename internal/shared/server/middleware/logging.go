package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/FIipFIop/perp-prediction/internal/shared/telemetry"
)

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Request.Method, "OPTIONS") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		userID, _ := c.Get(userIDKey)
		telegramID, _ := c.Get(telegramIDKey)
		analysisID, _ := c.Get("analysisId")
		paymentID, _ := c.Get("paymentId")

		telemetry.Info("request.complete", map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": float64(latency.Microseconds()) / 1000.0,
			"user_id":     userID,
			"telegram_id": telegramID,
			"analysis_id": analysisID,
			"payment_id":  paymentID,
			"client_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		})
	}
}
