package httpapi

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	headerRequestID = "X-Request-ID"
	headerUserID    = "X-User-ID"
	ctxKeyRequestID = "requestID"
)

// requestIDMiddleware はリクエストごとに一意のIDを付与する
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(headerRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(ctxKeyRequestID, requestID)
		c.Header(headerRequestID, requestID)
		c.Next()
	}
}

// loggingMiddleware は1リクエスト1行の構造化ログを出力する
func loggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("http request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"request_id", c.GetString(ctxKeyRequestID),
		)
	}
}

// userIDFrom は任意の X-User-ID ヘッダーを返す
func userIDFrom(c *gin.Context) *string {
	userID := c.GetHeader(headerUserID)
	if userID == "" {
		return nil
	}
	return &userID
}
