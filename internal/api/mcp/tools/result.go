package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	commonErrors "github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/mcp"
)

// decodeArgs unmarshals tool arguments; a non-nil result is the error to return
func decodeArgs(arguments json.RawMessage, out interface{}) *mcp.CallToolResult {
	if err := json.Unmarshal(arguments, out); err != nil {
		return mcp.NewTextResult(fmt.Sprintf("Error parsing arguments: %v", err), true)
	}
	return nil
}

// jsonResult formats data as indented JSON after a one-line summary
func jsonResult(summary string, data interface{}) (*mcp.CallToolResult, error) {
	responseData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return mcp.NewTextResult(fmt.Sprintf("%s but error formatting response: %v", summary, err), true), nil
	}
	return mcp.NewTextResult(fmt.Sprintf("%s:\n%s", summary, string(responseData)), false), nil
}

// errorResult reports a failed operation. The error code and details of an
// application error are kept so callers can branch on them.
func errorResult(action string, err error) (*mcp.CallToolResult, error) {
	text := fmt.Sprintf("Error %s: %v", action, err)
	var appErr commonErrors.AppError
	if errors.As(err, &appErr) && len(appErr.Details) > 0 {
		if details, marshalErr := json.Marshal(appErr.Details); marshalErr == nil {
			text += "\nDetails: " + string(details)
		}
	}
	return mcp.NewTextResult(text, true), nil
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

func amountProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description + " (decimal string, e.g. \"1500.50\")",
		"pattern":     `^-?[0-9]+(\.[0-9]+)?$`,
	}
}

func dateProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description + " in YYYY-MM-DD format",
		"pattern":     "^[0-9]{4}-[0-9]{2}-[0-9]{2}$",
	}
}

func currencyProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description + " (the configured reporting or secondary currency code)",
		"pattern":     "^[A-Z]{3}$",
	}
}

// optionalRate returns nil for a zero rate so the service resolves one
func optionalRate(rate decimal.Decimal) *decimal.Decimal {
	if rate.IsZero() {
		return nil
	}
	return &rate
}

// clock is overridden in tests
var clock = time.Now
