package middleware

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/aws/aws-lambda-go/events"

	"github.com/tometh04/maxevagestion-sub002/internal/api/response"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
)

// RecoveryMiddleware turns panics and returned errors into error responses
type RecoveryMiddleware struct{}

// NewRecoveryMiddleware creates a new recovery middleware
func NewRecoveryMiddleware() RecoveryMiddleware {
	return RecoveryMiddleware{}
}

// Handle handles the recovery middleware
func (m RecoveryMiddleware) Handle(next APIGatewayHandler) APIGatewayHandler {
	return func(ctx context.Context, logger *slog.Logger, request events.APIGatewayProxyRequest) (resp events.APIGatewayProxyResponse, err error) {
		requestID := request.RequestContext.RequestID
		defer func() {
			if r := recover(); r != nil {
				logger.Error("PANIC", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
				resp = response.Error(errors.NewInternalError("An unexpected error occurred", nil), requestID)
				err = nil
			}
		}()

		resp, err = next(ctx, logger, request)
		if err != nil {
			var appErr errors.AppError
			if !stderrors.As(err, &appErr) {
				appErr = errors.NewInternalError("An unexpected error occurred", err)
			}
			logger.Error("request failed", "code", appErr.Code, "error", err)
			return response.Error(appErr, requestID), nil
		}
		return resp, nil
	}
}

// HTTP recovers from panics in a plain HTTP handler
func (m RecoveryMiddleware) HTTP(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("PANIC", "panic", fmt.Sprint(rec), "stack", string(debug.Stack()))
					response.WriteError(w, errors.NewInternalError("An unexpected error occurred", nil))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
