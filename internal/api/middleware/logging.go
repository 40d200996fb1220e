package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
)

// LoggingMiddleware is a middleware for logging requests and responses
type LoggingMiddleware struct {
	// LogBodies adds request and response bodies to the log, for dev environments
	LogBodies bool
}

// NewLoggingMiddleware creates a new logging middleware
func NewLoggingMiddleware(logBodies bool) LoggingMiddleware {
	return LoggingMiddleware{LogBodies: logBodies}
}

// Handle handles the logging middleware
func (m LoggingMiddleware) Handle(next APIGatewayHandler) APIGatewayHandler {
	return func(ctx context.Context, logger *slog.Logger, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		startTime := time.Now()
		logger = logger.With("requestId", request.RequestContext.RequestID)

		logger.Info("REQUEST",
			"method", request.HTTPMethod,
			"path", request.Path,
			"sourceIP", request.RequestContext.Identity.SourceIP,
			"headers", maskSensitiveHeaders(request.Headers))
		if m.LogBodies && request.Body != "" {
			logger.Info("REQUEST", "body", request.Body)
		}

		response, err := next(ctx, logger, request)

		if err != nil {
			logger.Error("ERROR", "error", err)
		}
		logger.Info("RESPONSE",
			"status", response.StatusCode,
			"duration", time.Since(startTime))
		if m.LogBodies && response.Body != "" {
			logger.Info("RESPONSE", "body", response.Body)
		}

		return response, err
	}
}

// statusRecorder captures the status code written by an http.Handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// HTTP logs requests served by a plain HTTP handler
func (m LoggingMiddleware) HTTP(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(recorder, r)

			logger.Info("REQUEST",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr,
				"status", recorder.status,
				"duration", time.Since(startTime))
		})
	}
}

// maskSensitiveHeaders masks sensitive headers
func maskSensitiveHeaders(headers map[string]string) map[string]string {
	maskedHeaders := make(map[string]string, len(headers))
	for k, v := range headers {
		maskedHeaders[k] = v
	}

	sensitiveHeaders := []string{
		"Authorization",
		"authorization",
		"X-Api-Key",
		"x-api-key",
		"Cookie",
		"cookie",
	}
	for _, header := range sensitiveHeaders {
		if _, ok := maskedHeaders[header]; ok {
			maskedHeaders[header] = "***"
		}
	}

	return maskedHeaders
}
