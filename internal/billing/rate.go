package billing

import (
	internalsettings "github.com/flyashdesk/dashboard/internal/settings"
	"github.com/shopspring/decimal"
)

// DefaultRatePerTon is the price of one ton when nothing else is configured.
var DefaultRatePerTon = decimal.NewFromInt(180)

// RateSource supplies the current price per ton.
type RateSource interface {
	RatePerTon() decimal.Decimal
}

// Resolver picks the rate from the DB settings snapshot, falling back to the
// configured default.
type Resolver struct {
	fallback decimal.Decimal
}

// NewResolver builds a Resolver. A non-positive fallback uses DefaultRatePerTon.
func NewResolver(fallback decimal.Decimal) *Resolver {
	if !fallback.IsPositive() {
		fallback = DefaultRatePerTon
	}
	return &Resolver{fallback: fallback}
}

// RatePerTon returns the effective rate.
func (r *Resolver) RatePerTon() decimal.Decimal {
	if override, ok := internalsettings.DBConfigDecimal(internalsettings.RatePerTonKey); ok && override.IsPositive() {
		return override
	}
	if r == nil {
		return DefaultRatePerTon
	}
	return r.fallback
}

// FixedRate is a RateSource that always returns the same value.
type FixedRate decimal.Decimal

// RatePerTon implements RateSource.
func (f FixedRate) RatePerTon() decimal.Decimal { return decimal.Decimal(f) }
