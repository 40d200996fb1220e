package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/currency"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/mcp"
)

// LatestExchangeRateResource exposes the rate that applies today
type LatestExchangeRateResource struct {
	rates *currency.Service
	now   func() time.Time
}

func NewLatestExchangeRateResource(rates *currency.Service) *LatestExchangeRateResource {
	return &LatestExchangeRateResource{
		rates: rates,
		now:   time.Now,
	}
}

func (r *LatestExchangeRateResource) GetURI() string {
	return "ledger://exchange-rates/latest"
}

func (r *LatestExchangeRateResource) GetName() string {
	return "Latest Exchange Rate"
}

func (r *LatestExchangeRateResource) GetDescription() string {
	return "The rate between the secondary and the reporting currency used for today's movements, and where it came from"
}

func (r *LatestExchangeRateResource) GetMimeType() string {
	return "application/json"
}

func (r *LatestExchangeRateResource) Read(ctx context.Context) (*mcp.ReadResourceResult, error) {
	pair := r.rates.Pair()
	payload := struct {
		*currency.Resolution
		Reporting string `json:"reportingCurrency"`
		Secondary string `json:"secondaryCurrency"`
	}{
		Resolution: r.rates.Resolve(ctx, r.now()),
		Reporting:  string(pair.Reporting),
		Secondary:  string(pair.Secondary),
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal exchange rate: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []mcp.ResourceContent{
			{
				URI:      r.GetURI(),
				MimeType: r.GetMimeType(),
				Text:     string(data),
			},
		},
	}, nil
}
