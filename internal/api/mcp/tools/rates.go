package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tometh04/maxevagestion-sub002/internal/common/utils"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/currency"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/mcp"
)

// ResolveExchangeRateTool returns the rate that applies to a date
type ResolveExchangeRateTool struct {
	rates *currency.Service
}

func NewResolveExchangeRateTool(rates *currency.Service) *ResolveExchangeRateTool {
	return &ResolveExchangeRateTool{rates: rates}
}

func (t *ResolveExchangeRateTool) GetName() string {
	return "resolve_exchange_rate"
}

func (t *ResolveExchangeRateTool) GetDescription() string {
	return "Returns the rate (reporting-currency units per secondary-currency unit) for a date: the rate of that date, else the most recent earlier rate, else the configured fallback"
}

func (t *ResolveExchangeRateTool) GetInputSchema() mcp.JSONSchema {
	return mcp.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"date": dateProp("Date to resolve"),
		},
		Required: []string{"date"},
	}
}

func (t *ResolveExchangeRateTool) Execute(ctx context.Context, arguments json.RawMessage) (*mcp.CallToolResult, error) {
	var args struct {
		Date string `json:"date"`
	}
	if res := decodeArgs(arguments, &args); res != nil {
		return res, nil
	}
	if err := utils.ValidateISODate(args.Date); err != nil {
		return errorResult("resolving exchange rate", err)
	}
	date, _ := time.Parse(currency.DateLayout, args.Date)

	resolution := t.rates.Resolve(ctx, date)
	return jsonResult(fmt.Sprintf("Rate for %s: %s (%s)", args.Date, resolution.Rate, resolution.Source), resolution)
}

// LatestExchangeRateTool returns the rate that applies today
type LatestExchangeRateTool struct {
	rates *currency.Service
}

func NewLatestExchangeRateTool(rates *currency.Service) *LatestExchangeRateTool {
	return &LatestExchangeRateTool{rates: rates}
}

func (t *LatestExchangeRateTool) GetName() string {
	return "latest_exchange_rate"
}

func (t *LatestExchangeRateTool) GetDescription() string {
	return "Returns the most recent rate between the secondary and the reporting currency, or the configured fallback when none is stored"
}

func (t *LatestExchangeRateTool) GetInputSchema() mcp.JSONSchema {
	return mcp.JSONSchema{
		Type:       "object",
		Properties: map[string]interface{}{},
	}
}

func (t *LatestExchangeRateTool) Execute(ctx context.Context, arguments json.RawMessage) (*mcp.CallToolResult, error) {
	resolution := t.rates.Resolve(ctx, clock())
	return jsonResult(fmt.Sprintf("Latest rate: %s (%s)", resolution.Rate, resolution.Source), resolution)
}

// SetExchangeRateTool records the rate of a date
type SetExchangeRateTool struct {
	rates *currency.Service
}

func NewSetExchangeRateTool(rates *currency.Service) *SetExchangeRateTool {
	return &SetExchangeRateTool{rates: rates}
}

func (t *SetExchangeRateTool) GetName() string {
	return "set_exchange_rate"
}

func (t *SetExchangeRateTool) GetDescription() string {
	return "Records the rate between the secondary and the reporting currency for a date, replacing any rate already stored for it"
}

func (t *SetExchangeRateTool) GetInputSchema() mcp.JSONSchema {
	return mcp.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"date":   dateProp("Rate date"),
			"rate":   amountProp("Reporting-currency units paid for one secondary-currency unit"),
			"source": stringProp("Optional origin of the rate, e.g. BNA"),
		},
		Required: []string{"date", "rate"},
	}
}

func (t *SetExchangeRateTool) Execute(ctx context.Context, arguments json.RawMessage) (*mcp.CallToolResult, error) {
	var args struct {
		Date   string          `json:"date"`
		Rate   decimal.Decimal `json:"rate"`
		Source string          `json:"source"`
	}
	if res := decodeArgs(arguments, &args); res != nil {
		return res, nil
	}

	rate, err := t.rates.SetRate(ctx, args.Date, args.Rate, args.Source)
	if err != nil {
		return errorResult("setting exchange rate", err)
	}
	return jsonResult("Exchange rate recorded", rate)
}
