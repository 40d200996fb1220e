package response

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Success          bool             `json:"success"`
	Error            string           `json:"error"`
	ErrorDescription ErrorDescription `json:"error_description"`
	Metadata         ResponseMetadata `json:"metadata"`
}

// ErrorDescription represents the error details
type ErrorDescription struct {
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// AsAppError returns err as an AppError, wrapping unknown errors as internal
func AsAppError(err error) errors.AppError {
	var appErr errors.AppError
	if stderrors.As(err, &appErr) {
		if appErr.StatusCode == 0 {
			appErr.StatusCode = http.StatusInternalServerError
		}
		return appErr
	}
	return errors.NewInternalError("An unexpected error occurred", err)
}

func newErrorResponse(appErr errors.AppError, requestID string) ErrorResponse {
	return ErrorResponse{
		Success: false,
		Error:   appErr.Code,
		ErrorDescription: ErrorDescription{
			Message: appErr.Message,
			Details: appErr.Details,
		},
		Metadata: ResponseMetadata{
			Version:   "1.0",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			RequestID: requestID,
		},
	}
}

// Error creates an error response
func Error(appErr errors.AppError, requestID string) events.APIGatewayProxyResponse {
	body, err := json.Marshal(newErrorResponse(appErr, requestID))
	if err != nil {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Body:       `{"success":false,"error":"INTERNAL_ERROR","error_description":{"message":"Failed to marshal error response"}}`,
			Headers:    DefaultHeaders(),
		}
	}

	return events.APIGatewayProxyResponse{
		StatusCode: appErr.StatusCode,
		Body:       string(body),
		Headers:    DefaultHeaders(),
	}
}

// NotFound creates a not found error response
func NotFound(message string, requestID string) events.APIGatewayProxyResponse {
	return Error(errors.NewNotFoundError(message), requestID)
}

// MethodNotAllowed creates a 405 response advertising the allowed methods
func MethodNotAllowed(allow string, requestID string) events.APIGatewayProxyResponse {
	resp := Error(errors.AppError{
		Code:       "METHOD_NOT_ALLOWED",
		Message:    "Method Not Allowed",
		StatusCode: http.StatusMethodNotAllowed,
	}, requestID)
	resp.Headers["Allow"] = allow
	return resp
}

// WriteError writes an error response to an HTTP response writer
func WriteError(w http.ResponseWriter, err error) {
	appErr := AsAppError(err)
	WriteJSON(w, appErr.StatusCode, newErrorResponse(appErr, ""))
}
