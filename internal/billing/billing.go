package billing

import (
	"fmt"

	"github.com/flyashdesk/dashboard/internal/ledger"
	"github.com/shopspring/decimal"
)

// ComputeTotal prices a weighed token: weight x rate + commission, rounded to
// currency precision.
func ComputeTotal(weight, ratePerTon, commission decimal.Decimal) decimal.Decimal {
	return ledger.RoundMoney(weight.Mul(ratePerTon).Add(commission))
}

// TonsFor converts a currency amount into tons at ratePerTon, rounded to
// three decimal places.
func TonsFor(amount, ratePerTon decimal.Decimal) (decimal.Decimal, error) {
	if !ratePerTon.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: rate per ton must be positive", ledger.ErrValidation)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: amount must not be negative", ledger.ErrValidation)
	}
	return amount.DivRound(ratePerTon, ledger.TonPlaces+2).Round(ledger.TonPlaces), nil
}
