package logger

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// GinContextKey is where GinMiddleware stores the request logger
const GinContextKey = "logger"

// quietPaths are logged at debug level when they succeed
var quietPaths = map[string]bool{"/health": true, "/api/v1/system/ping": true}

// GinMiddleware attaches a request-scoped logger to the gin and request
// contexts and writes one access log line per request. The line's level
// follows the status class.
func GinMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		req := c.Request

		ctx, reqLog := WithRequestID(req.Context(), logger.With(
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
		), c.GetString("request_id"))
		if storeID := c.GetHeader("X-Store-ID"); storeID != "" {
			ctx, reqLog = WithStoreID(ctx, reqLog, storeID)
		}
		c.Request = req.WithContext(ctx)
		c.Set(GinContextKey, reqLog)

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("body_size", c.Writer.Size()),
		}
		if req.URL.RawQuery != "" {
			fields = append(fields, zap.String("query", req.URL.RawQuery))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}
		if ce := WithTraceContext(c.Request.Context(), reqLog).Check(accessLevel(req.URL.Path, status), "HTTP Request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

func accessLevel(path string, status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status >= http.StatusBadRequest:
		return zapcore.WarnLevel
	case quietPaths[path]:
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

// Recovery turns a handler panic into a logged 500 response
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error("Panic recovered",
				zap.String("request_id", c.GetString("request_id")),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Any("error", r),
				zap.Stack("stacktrace"),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   gin.H{"code": "INTERNAL_ERROR", "message": "internal server error"},
			})
		}()
		c.Next()
	}
}

// GetGinLogger returns the request logger, or a no-op logger outside a request
func GetGinLogger(c *gin.Context) *zap.Logger {
	if zl, ok := c.Value(GinContextKey).(*zap.Logger); ok {
		return zl
	}
	return zap.NewNop()
}
