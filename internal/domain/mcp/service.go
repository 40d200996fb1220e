package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	jsonRPCVersion  = "2.0"
	protocolVersion = "2024-11-05"
)

const instructions = "Use this MCP server to run the treasury ledger of a travel agency: " +
	"record ledger movements in ARS or USD, read derived account balances, check funds before paying, " +
	"maintain daily exchange rates and settle operator payables in bulk. " +
	"Amounts are decimal strings with two decimals; dates are YYYY-MM-DD."

// HTTPResponse encapsulates both JSON-RPC response and HTTP status code
type HTTPResponse struct {
	JSONRPCResponse JSONRPCResponse
	StatusCode      int
}

// NewSuccessHTTPResponse creates a successful HTTP response with JSON-RPC result
func NewSuccessHTTPResponse(id json.RawMessage, result interface{}, statusCode int) HTTPResponse {
	return HTTPResponse{
		JSONRPCResponse: JSONRPCResponse{
			JSONRPC: jsonRPCVersion,
			ID:      id,
			Result:  result,
		},
		StatusCode: statusCode,
	}
}

// NewErrorHTTPResponse creates an error HTTP response with JSON-RPC error
func NewErrorHTTPResponse(id json.RawMessage, code int, message string, data interface{}, statusCode int) HTTPResponse {
	return HTTPResponse{
		JSONRPCResponse: JSONRPCResponse{
			JSONRPC: jsonRPCVersion,
			ID:      id,
			Error: &JSONRPCError{
				Code:    code,
				Message: message,
				Data:    data,
			},
		},
		StatusCode: statusCode,
	}
}

// Observer is notified after every tool call
type Observer interface {
	ToolCalled(tool string, isError bool, duration time.Duration)
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithObserver reports tool calls to observer
func WithObserver(observer Observer) ServiceOption {
	return func(s *Service) {
		s.observer = observer
	}
}

// WithVersion overrides the version advertised in serverInfo
func WithVersion(version string) ServiceOption {
	return func(s *Service) {
		s.serverInfo.Version = version
	}
}

// Service handles MCP protocol operations
type Service struct {
	logger     *slog.Logger
	serverInfo ServerInfo
	registry   *HandlerRegistry
	observer   Observer
}

// NewService creates a new MCP service
func NewService(logger *slog.Logger, registry *HandlerRegistry, opts ...ServiceOption) *Service {
	s := &Service{
		logger: logger,
		serverInfo: ServerInfo{
			Name:    "treasury-ledger-mcp-server",
			Title:   "Multi-currency treasury ledger and balance engine.",
			Version: "1.0.0",
		},
		registry: registry,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleRequest processes a JSON-RPC request
func (s *Service) HandleRequest(ctx context.Context, request JSONRPCRequest) HTTPResponse {
	s.logger.Info("MCP request received", "method", request.Method)

	if request.JSONRPC != "" && request.JSONRPC != jsonRPCVersion {
		return NewErrorHTTPResponse(request.ID, InvalidRequest, fmt.Sprintf("Unsupported jsonrpc version: %s", request.JSONRPC), nil, http.StatusOK)
	}

	switch request.Method {
	case "initialize":
		return s.handleInitialize(ctx, request)
	case "initialized", "ping":
		return NewSuccessHTTPResponse(request.ID, map[string]any{}, http.StatusOK)
	case "notifications/initialized":
		return NewSuccessHTTPResponse(request.ID, map[string]any{}, http.StatusAccepted)
	case "resources/list":
		return s.handleListResources(ctx, request)
	case "resources/read":
		return s.handleReadResource(ctx, request)
	case "tools/list":
		return s.handleListTools(ctx, request)
	case "tools/call":
		return s.handleCallTool(ctx, request)
	default:
		return NewErrorHTTPResponse(request.ID, MethodNotFound, fmt.Sprintf("Method not found: %s", request.Method), nil, http.StatusOK)
	}
}

func (s *Service) handleInitialize(ctx context.Context, request JSONRPCRequest) HTTPResponse {
	var params InitializeParams
	if err := json.Unmarshal(request.Params, &params); err != nil {
		return NewErrorHTTPResponse(request.ID, InvalidParams, "Invalid initialize params", err.Error(), http.StatusOK)
	}
	s.logger.Info("MCP client initialized", "client", params.ClientInfo.Name, "clientVersion", params.ClientInfo.Version)

	result := InitializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities: ServerCapability{
			Resources: ResourcesCapability{
				ListChanged: false,
				Subscribe:   false,
			},
			Tools: ToolsCapability{
				ListChanged: false,
				Subscribe:   false,
			},
		},
		Instructions: instructions,
		ServerInfo:   s.serverInfo,
	}

	return NewSuccessHTTPResponse(request.ID, result, http.StatusOK)
}

func (s *Service) handleListResources(ctx context.Context, request JSONRPCRequest) HTTPResponse {
	result := ListResourcesResult{
		Resources: s.registry.ListResources(),
	}
	return NewSuccessHTTPResponse(request.ID, result, http.StatusOK)
}

func (s *Service) handleReadResource(ctx context.Context, request JSONRPCRequest) HTTPResponse {
	var params ReadResourceParams
	if err := json.Unmarshal(request.Params, &params); err != nil {
		return NewErrorHTTPResponse(request.ID, InvalidParams, "Invalid read resource params", err.Error(), http.StatusOK)
	}

	handler, ok := s.registry.GetResource(params.URI)
	if !ok {
		return NewErrorHTTPResponse(request.ID, InvalidParams, fmt.Sprintf("Resource not found: %s", params.URI), nil, http.StatusOK)
	}

	result, err := handler.Read(ctx)
	if err != nil {
		s.logger.Error("Failed to read resource", "uri", params.URI, "error", err)
		return NewErrorHTTPResponse(request.ID, InternalError, "Failed to read resource", err.Error(), http.StatusOK)
	}

	return NewSuccessHTTPResponse(request.ID, result, http.StatusOK)
}

func (s *Service) handleListTools(ctx context.Context, request JSONRPCRequest) HTTPResponse {
	result := ListToolsResult{
		Tools: s.registry.ListTools(),
	}
	return NewSuccessHTTPResponse(request.ID, result, http.StatusOK)
}

func (s *Service) handleCallTool(ctx context.Context, request JSONRPCRequest) HTTPResponse {
	var params CallToolParams
	if err := json.Unmarshal(request.Params, &params); err != nil {
		return NewErrorHTTPResponse(request.ID, InvalidParams, "Invalid call tool params", err.Error(), http.StatusOK)
	}

	handler, ok := s.registry.GetTool(params.Name)
	if !ok {
		return NewErrorHTTPResponse(request.ID, InvalidParams, fmt.Sprintf("Tool not found: %s", params.Name), nil, http.StatusOK)
	}

	arguments := params.Arguments
	if len(arguments) == 0 {
		arguments = json.RawMessage(`{}`)
	}

	start := time.Now()
	result, err := handler.Execute(ctx, arguments)
	if err != nil {
		s.logger.Error("Failed to execute tool", "tool", params.Name, "error", err)
		// Return error in tool result format
		result = NewTextResult(err.Error(), true)
	}
	if result == nil {
		result = NewTextResult("", false)
	}
	if s.observer != nil {
		s.observer.ToolCalled(params.Name, result.IsError, time.Since(start))
	}

	return NewSuccessHTTPResponse(request.ID, result, http.StatusOK)
}
