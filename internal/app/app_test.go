package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	envconfig "github.com/tometh04/maxevagestion-sub002/internal/common/config"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/account"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/commission"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/ledger"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/mcp"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
	"github.com/tometh04/maxevagestion-sub002/internal/platform/memory"
)

func testConfig() *envconfig.Config {
	return &envconfig.Config{
		Environment:    "test",
		StorageBackend: envconfig.StorageMemory,
		CacheBackend:   envconfig.CacheMemory,
		LockBackend:    envconfig.LockLocal,
		Pair:           money.DefaultPair(),
		FallbackRate:   decimal.NewFromInt(1000),
		CostAccountID:  "costs",
		LogLevel:       "error",
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func call(t *testing.T, a *App, method string, params interface{}) mcp.HTTPResponse {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	return a.MCP.HandleRequest(context.Background(), mcp.JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  method,
		Params:  raw,
	})
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("memory backends", func(t *testing.T) {
		// Act
		a, err := New(ctx, testConfig(), discardLogger())

		// Assert
		require.NoError(t, err)
		defer a.Close()
		assert.NotNil(t, a.Treasury)
		assert.NotNil(t, a.Settlements)
		assert.NotNil(t, a.MCP)
	})

	t.Run("no cache", func(t *testing.T) {
		cfg := testConfig()
		cfg.CacheBackend = envconfig.CacheNone

		a, err := New(ctx, cfg, discardLogger())

		require.NoError(t, err)
		assert.NoError(t, a.Close())
	})

	t.Run("redis lock", func(t *testing.T) {
		// Setup
		server := miniredis.RunT(t)
		cfg := testConfig()
		cfg.LockBackend = envconfig.LockRedis
		cfg.RedisAddr = server.Addr()

		// Act
		a, err := New(ctx, cfg, discardLogger())

		// Assert
		require.NoError(t, err)
		assert.NoError(t, a.Close())
	})

	t.Run("redis lock unreachable", func(t *testing.T) {
		// Setup
		server := miniredis.RunT(t)
		cfg := testConfig()
		cfg.LockBackend = envconfig.LockRedis
		cfg.RedisAddr = server.Addr()
		server.Close()

		// Act
		_, err := New(ctx, cfg, discardLogger())

		// Assert
		assert.ErrorContains(t, err, "redis")
	})

	t.Run("unknown storage backend", func(t *testing.T) {
		cfg := testConfig()
		cfg.StorageBackend = "sqlite"

		_, err := New(ctx, cfg, discardLogger())

		assert.ErrorContains(t, err, "sqlite")
	})

	t.Run("platform logger reads its format from the environment", func(t *testing.T) {
		t.Setenv("LOG_FORMAT", "yaml")

		_, err := New(ctx, testConfig(), discardLogger())

		assert.ErrorContains(t, err, "logger")
	})

	t.Run("unknown cache backend", func(t *testing.T) {
		cfg := testConfig()
		cfg.CacheBackend = "memcached"

		_, err := New(ctx, cfg, discardLogger())

		assert.ErrorContains(t, err, "memcached")
	})
}

func TestNewWithRepositories(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) *App {
		t.Helper()
		a := NewWithRepositories(testConfig(), discardLogger(), storeRepositories(memory.NewStore()))
		_, err := a.Accounts.CreateAccount(ctx, &account.CreateAccountRequest{
			AccountID: "bank", Name: "Banco", Kind: account.Checking, Currency: money.ARS, OpeningBalance: decimal.NewFromInt(1000),
		})
		require.NoError(t, err)
		return a
	}

	t.Run("registers every tool and resource", func(t *testing.T) {
		// Setup
		a := setup(t)

		// Act
		tools := call(t, a, "tools/list", map[string]interface{}{})
		resources := call(t, a, "resources/list", map[string]interface{}{})

		// Assert
		require.Nil(t, tools.JSONRPCResponse.Error)
		toolList, ok := tools.JSONRPCResponse.Result.(mcp.ListToolsResult)
		require.True(t, ok)
		assert.Len(t, toolList.Tools, 16)

		require.Nil(t, resources.JSONRPCResponse.Error)
		resourceList, ok := resources.JSONRPCResponse.Result.(mcp.ListResourcesResult)
		require.True(t, ok)
		assert.Len(t, resourceList.Resources, 2)
	})

	t.Run("tool calls flow through the ledger and metrics", func(t *testing.T) {
		// Setup
		a := setup(t)

		// Act
		resp := call(t, a, "tools/call", map[string]interface{}{
			"name": "create_ledger_movement",
			"arguments": map[string]interface{}{
				"accountId": "bank", "type": "EXPENSE", "currency": "ARS", "amount": "250",
			},
		})

		// Assert
		require.Nil(t, resp.JSONRPCResponse.Error)
		result, ok := resp.JSONRPCResponse.Result.(*mcp.CallToolResult)
		require.True(t, ok)
		assert.False(t, result.IsError, result.Content[0].Text)

		bal, err := a.Calculator.GetAccountBalance(ctx, "bank")
		require.NoError(t, err)
		assert.Equal(t, "750.00", bal.Balance.StringFixed(2))

		appended, err := testutil.GatherAndCount(a.Registry, "ledger_ledger_movements_appended_total")
		require.NoError(t, err)
		assert.Equal(t, 1, appended)
		toolCalls, err := testutil.GatherAndCount(a.Registry, "ledger_mcp_tool_calls_total")
		require.NoError(t, err)
		assert.Equal(t, 1, toolCalls)
	})

	t.Run("commission movements settle the operation's commissions", func(t *testing.T) {
		// Setup
		a := setup(t)
		_, err := a.Commissions.CreateCommission(ctx, &commission.CreateCommissionRequest{
			OperationID: "op-9", SellerID: "seller", Currency: money.ARS, Amount: decimal.NewFromInt(30),
		})
		require.NoError(t, err)

		// Act
		_, err = a.Treasury.CreateLedgerMovement(ctx, &ledger.Draft{
			AccountID:      "bank",
			Type:           ledger.Commission,
			Currency:       money.ARS,
			OriginalAmount: decimal.NewFromInt(100),
			OperationID:    "op-9",
		})

		// Assert
		require.NoError(t, err)
		commissions, err := a.Commissions.ListByOperation(ctx, "op-9")
		require.NoError(t, err)
		require.Len(t, commissions, 1)
		assert.NotNil(t, commissions[0].PaidAt)
	})
}

func TestNewWithRepositories_SharedStore(t *testing.T) {
	ctx := context.Background()

	// Setup
	store := memory.NewStore()
	first := NewWithRepositories(testConfig(), discardLogger(), storeRepositories(store))
	second := NewWithRepositories(testConfig(), discardLogger(), storeRepositories(store))
	_, err := first.Accounts.CreateAccount(ctx, &account.CreateAccountRequest{
		AccountID: "bank", Name: "Banco", Kind: account.Checking, Currency: money.ARS, OpeningBalance: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)
	for _, a := range []*App{first, second} {
		bal, err := a.Calculator.GetAccountBalance(ctx, "bank")
		require.NoError(t, err)
		require.Equal(t, "1000.00", bal.Balance.StringFixed(2))
	}
	expense := func() *ledger.Draft {
		return &ledger.Draft{AccountID: "bank", Type: ledger.Expense, Currency: money.ARS, OriginalAmount: decimal.NewFromInt(800)}
	}

	// Act
	_, errFirst := first.Treasury.CreateLedgerMovement(ctx, expense())
	_, errSecond := second.Treasury.CreateLedgerMovement(ctx, expense())

	// Assert
	require.NoError(t, errFirst)
	assert.ErrorIs(t, errSecond, errors.ErrInsufficientBalance)
	bal, err := second.Calculator.RecomputeAccountBalance(ctx, "bank")
	require.NoError(t, err)
	assert.Equal(t, "200.00", bal.Balance.StringFixed(2))
}
