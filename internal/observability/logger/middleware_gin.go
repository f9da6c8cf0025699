package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/sygmef/internal/observability/context"
	"github.com/smallbiznis/sygmef/pkg/telemetry/correlation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const requestIDHeader = "X-Request-Id"

type MiddlewareConfig struct {
	Debug bool
	// ErrorClassifier returns the client-facing error type and a code for
	// the last handler error.
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware assigns a request id and writes one http_request entry per
// request. Only route parameters are logged, never bodies or query strings.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := ensureRequestID(c)
		ctx := obscontext.WithRequestID(c.Request.Context(), requestID)
		ctx = correlation.FromHeader(ctx, c.Request.Header)
		if id := correlation.ID(ctx); id != "" {
			c.Header(correlation.Header, id)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		for _, name := range []string{"uid", "id", "action", "kind"} {
			if value := strings.TrimSpace(c.Param(name)); value != "" {
				fields = append(fields, zap.String(name, value))
			}
		}

		var errorType string
		if lastErr := c.Errors.Last(); lastErr != nil {
			errorCode := ""
			if cfg.ErrorClassifier != nil {
				errorType, errorCode = cfg.ErrorClassifier(lastErr.Err)
			}
			fields = append(fields,
				zap.String("error_type", errorType),
				zap.String("error_code", errorCode),
			)
			if cfg.Debug {
				fields = append(fields, zap.Stack("stack"))
			}
		}

		if ce := FromContext(c.Request.Context()).Check(requestLevel(route, status, errorType), "http_request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

func ensureRequestID(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set("request_id", requestID)
	c.Header(requestIDHeader, requestID)
	return requestID
}

// requestLevel keeps probes and caller mistakes out of the info stream and
// raises fiscal rejections to warn.
func requestLevel(route string, status int, errorType string) zapcore.Level {
	switch {
	case route == "/health" || route == "/metrics":
		return zapcore.DebugLevel
	case status >= http.StatusInternalServerError:
		if errorType == "transport" {
			return zapcore.WarnLevel
		}
		return zapcore.ErrorLevel
	case errorType == "validation_error":
		return zapcore.DebugLevel
	case errorType == "remote_validation", errorType == "unauthorized", errorType == "terminal_state":
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
