package currency

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the ISO date format used for rate dates
const DateLayout = "2006-01-02"

// RateSource tells which step of the fallback chain produced a rate
type RateSource string

const (
	// SourceExact means a rate was recorded for the requested date
	SourceExact RateSource = "EXACT"
	// SourcePrevious means the most recent rate before the requested date was used
	SourcePrevious RateSource = "PREVIOUS"
	// SourceFallback means no rate was stored and the configured constant was used
	SourceFallback RateSource = "FALLBACK"
)

// ExchangeRate represents the number of reporting-currency units paid for one
// unit of the secondary currency on a given date
type ExchangeRate struct {
	Date      string          `json:"date"` // ISO date format
	Rate      decimal.Decimal `json:"rate"`
	Source    string          `json:"source,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Resolution is the outcome of a rate lookup
type Resolution struct {
	RequestedDate string          `json:"requestedDate"`
	RateDate      string          `json:"rateDate,omitempty"`
	Rate          decimal.Decimal `json:"rate"`
	Source        RateSource      `json:"source"`
}

// Degraded reports whether the lookup fell back to the configured constant
func (r Resolution) Degraded() bool {
	return r.Source == SourceFallback
}
