package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock tool for testing
type mockTool struct {
	name        string
	description string
	schema      JSONSchema
	result      *CallToolResult
	err         error
	arguments   json.RawMessage
}

func (m *mockTool) GetName() string            { return m.name }
func (m *mockTool) GetDescription() string     { return m.description }
func (m *mockTool) GetInputSchema() JSONSchema { return m.schema }
func (m *mockTool) Execute(ctx context.Context, arguments json.RawMessage) (*CallToolResult, error) {
	m.arguments = arguments
	return m.result, m.err
}

// Mock resource for testing
type mockResource struct {
	uri         string
	name        string
	description string
	mimeType    string
	result      *ReadResourceResult
	err         error
}

func (m *mockResource) GetURI() string         { return m.uri }
func (m *mockResource) GetName() string        { return m.name }
func (m *mockResource) GetDescription() string { return m.description }
func (m *mockResource) GetMimeType() string    { return m.mimeType }
func (m *mockResource) Read(ctx context.Context) (*ReadResourceResult, error) {
	return m.result, m.err
}

type recordingObserver struct {
	calls map[string]bool
}

func (r *recordingObserver) ToolCalled(tool string, isError bool, duration time.Duration) {
	r.calls[tool] = isError
}

func setupService(opts ...ServiceOption) (*Service, *HandlerRegistry) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	registry := NewHandlerRegistry()
	return NewService(logger, registry, opts...), registry
}

func call(t *testing.T, service *Service, method string, params interface{}) HTTPResponse {
	t.Helper()
	request := JSONRPCRequest{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		require.NoError(t, err)
		request.Params = raw
	}
	return service.HandleRequest(context.Background(), request)
}

func decodeResult(t *testing.T, response HTTPResponse, out interface{}) {
	t.Helper()
	require.Nil(t, response.JSONRPCResponse.Error)
	raw, err := json.Marshal(response.JSONRPCResponse.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func TestService_HandleInitialize(t *testing.T) {
	// Setup
	service, _ := setupService(WithVersion("2.3.4"))

	// Act
	response := call(t, service, "initialize", InitializeParams{
		ProtocolVersion: "2024-11-05",
		ClientInfo:      ClientInfo{Name: "test-client", Version: "1.0.0"},
	})

	// Assert
	assert.Equal(t, 200, response.StatusCode)
	var result InitializeResult
	decodeResult(t, response, &result)
	assert.Equal(t, "2024-11-05", result.ProtocolVersion)
	assert.Equal(t, "treasury-ledger-mcp-server", result.ServerInfo.Name)
	assert.Equal(t, "2.3.4", result.ServerInfo.Version)
	assert.Contains(t, result.Instructions, "ledger movements")
}

func TestService_Lifecycle(t *testing.T) {
	service, _ := setupService()

	t.Run("ping", func(t *testing.T) {
		response := call(t, service, "ping", nil)

		assert.Nil(t, response.JSONRPCResponse.Error)
		assert.Equal(t, 200, response.StatusCode)
	})

	t.Run("initialized notification is accepted", func(t *testing.T) {
		response := call(t, service, "notifications/initialized", nil)

		assert.Equal(t, 202, response.StatusCode)
	})

	t.Run("unknown method", func(t *testing.T) {
		response := call(t, service, "prompts/list", nil)

		require.NotNil(t, response.JSONRPCResponse.Error)
		assert.Equal(t, MethodNotFound, response.JSONRPCResponse.Error.Code)
	})

	t.Run("wrong jsonrpc version", func(t *testing.T) {
		response := service.HandleRequest(context.Background(), JSONRPCRequest{JSONRPC: "1.0", Method: "ping"})

		require.NotNil(t, response.JSONRPCResponse.Error)
		assert.Equal(t, InvalidRequest, response.JSONRPCResponse.Error.Code)
	})
}

func TestService_Resources(t *testing.T) {
	// Setup
	service, registry := setupService()
	registry.RegisterResource(&mockResource{uri: "ledger://b", name: "B", mimeType: "application/json"})
	registry.RegisterResource(&mockResource{
		uri:  "ledger://a",
		name: "A",
		result: &ReadResourceResult{Contents: []ResourceContent{
			{URI: "ledger://a", MimeType: "application/json", Text: `{"ok":true}`},
		}},
	})
	registry.RegisterResource(&mockResource{uri: "ledger://broken", err: assert.AnError})

	t.Run("list is ordered by uri", func(t *testing.T) {
		var result ListResourcesResult
		decodeResult(t, call(t, service, "resources/list", nil), &result)

		require.Len(t, result.Resources, 3)
		assert.Equal(t, "ledger://a", result.Resources[0].URI)
	})

	t.Run("read", func(t *testing.T) {
		var result ReadResourceResult
		decodeResult(t, call(t, service, "resources/read", ReadResourceParams{URI: "ledger://a"}), &result)

		require.Len(t, result.Contents, 1)
		assert.JSONEq(t, `{"ok":true}`, result.Contents[0].Text)
	})

	t.Run("unknown resource", func(t *testing.T) {
		response := call(t, service, "resources/read", ReadResourceParams{URI: "ledger://nope"})

		require.NotNil(t, response.JSONRPCResponse.Error)
		assert.Equal(t, InvalidParams, response.JSONRPCResponse.Error.Code)
	})

	t.Run("failing resource", func(t *testing.T) {
		response := call(t, service, "resources/read", ReadResourceParams{URI: "ledger://broken"})

		require.NotNil(t, response.JSONRPCResponse.Error)
		assert.Equal(t, InternalError, response.JSONRPCResponse.Error.Code)
	})
}

func TestService_Tools(t *testing.T) {
	// Setup
	observer := &recordingObserver{calls: map[string]bool{}}
	service, registry := setupService(WithObserver(observer))
	ok := &mockTool{name: "get_account_balance", schema: JSONSchema{Type: "object"}, result: NewTextResult("1300.00", false)}
	failing := &mockTool{name: "create_ledger_movement", schema: JSONSchema{Type: "object"}, err: assert.AnError}
	registry.RegisterTool(ok)
	registry.RegisterTool(failing)

	t.Run("list is ordered by name", func(t *testing.T) {
		var result ListToolsResult
		decodeResult(t, call(t, service, "tools/list", nil), &result)

		require.Len(t, result.Tools, 2)
		assert.Equal(t, "create_ledger_movement", result.Tools[0].Name)
		assert.Equal(t, "get_account_balance", result.Tools[1].Name)
	})

	t.Run("call returns the tool result", func(t *testing.T) {
		var result CallToolResult
		decodeResult(t, call(t, service, "tools/call", CallToolParams{Name: "get_account_balance"}), &result)

		require.Len(t, result.Content, 1)
		assert.Equal(t, "1300.00", result.Content[0].Text)
		assert.False(t, result.IsError)
		assert.JSONEq(t, `{}`, string(ok.arguments))
		assert.False(t, observer.calls["get_account_balance"])
	})

	t.Run("tool failure becomes an error result", func(t *testing.T) {
		var result CallToolResult
		decodeResult(t, call(t, service, "tools/call", CallToolParams{Name: "create_ledger_movement"}), &result)

		assert.True(t, result.IsError)
		assert.Equal(t, assert.AnError.Error(), result.Content[0].Text)
		assert.True(t, observer.calls["create_ledger_movement"])
	})

	t.Run("unknown tool", func(t *testing.T) {
		response := call(t, service, "tools/call", CallToolParams{Name: "nope"})

		require.NotNil(t, response.JSONRPCResponse.Error)
		assert.Equal(t, InvalidParams, response.JSONRPCResponse.Error.Code)
	})
}

func TestHandlerRegistry_Duplicates(t *testing.T) {
	registry := NewHandlerRegistry()
	registry.RegisterTool(&mockTool{name: "get_account_balance"})
	registry.RegisterResource(&mockResource{uri: "ledger://accounts"})

	assert.Panics(t, func() { registry.RegisterTool(&mockTool{name: "get_account_balance"}) })
	assert.Panics(t, func() { registry.RegisterResource(&mockResource{uri: "ledger://accounts"}) })
	assert.Len(t, registry.ListTools(), 1)
	assert.Len(t, registry.ListResources(), 1)
}
