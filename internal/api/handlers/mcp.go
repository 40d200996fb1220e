package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/tometh04/maxevagestion-sub002/internal/api/response"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/mcp"
)

// maxBodyBytes bounds a JSON-RPC request body
const maxBodyBytes = 1 << 20

// MCPHandler serves JSON-RPC requests for the MCP service over API Gateway or plain HTTP
type MCPHandler struct {
	mcpService *mcp.Service
	logger     *slog.Logger
}

// NewMCPHandler creates a new MCP request handler
func NewMCPHandler(mcpService *mcp.Service, logger *slog.Logger) *MCPHandler {
	return &MCPHandler{
		mcpService: mcpService,
		logger:     logger,
	}
}

// HandleAPIGateway handles an API Gateway proxy request. MCP clients post to the root path.
func (h *MCPHandler) HandleAPIGateway(ctx context.Context, logger *slog.Logger, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	requestID := request.RequestContext.RequestID

	if request.HTTPMethod == http.MethodOptions {
		return response.NoContent(), nil
	}
	if request.Path != "/" && request.Path != "/mcp" {
		return response.NotFound("Endpoint not found", requestID), nil
	}
	if request.HTTPMethod != http.MethodPost {
		return response.MethodNotAllowed(http.MethodPost, requestID), nil
	}

	status, body := h.dispatch(ctx, logger, []byte(request.Body))
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    response.DefaultHeaders(),
		Body:       string(body),
	}, nil
}

// ServeHTTP handles a JSON-RPC request posted over plain HTTP
func (h *MCPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Error("Failed to read request body", "error", err)
		h.writeRaw(w, http.StatusBadRequest, errorBody(mcp.ParseError, "Parse error", err.Error()))
		return
	}

	status, body := h.dispatch(r.Context(), h.logger, payload)
	h.writeRaw(w, status, body)
}

func (h *MCPHandler) dispatch(ctx context.Context, logger *slog.Logger, payload []byte) (int, []byte) {
	var jsonRPCRequest mcp.JSONRPCRequest
	if err := json.Unmarshal(payload, &jsonRPCRequest); err != nil {
		logger.Error("Failed to parse JSON-RPC request", "error", err)
		return http.StatusOK, errorBody(mcp.ParseError, "Parse error", err.Error())
	}

	httpResponse := h.mcpService.HandleRequest(ctx, jsonRPCRequest)

	body, err := json.Marshal(httpResponse.JSONRPCResponse)
	if err != nil {
		logger.Error("Failed to marshal JSON-RPC response", "error", err)
		return http.StatusOK, errorBody(mcp.InternalError, "Internal error", "Failed to marshal response")
	}
	return httpResponse.StatusCode, body
}

func (h *MCPHandler) writeRaw(w http.ResponseWriter, status int, body []byte) {
	for key, value := range response.DefaultHeaders() {
		w.Header().Set(key, value)
	}
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("Failed to write response", "error", err)
	}
}

// errorBody builds a JSON-RPC error without a request ID. JSON-RPC errors still return 200.
func errorBody(code int, message string, data string) []byte {
	body, _ := json.Marshal(mcp.JSONRPCResponse{
		JSONRPC: "2.0",
		Error: &mcp.JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	})
	return body
}
