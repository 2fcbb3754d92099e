package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Account is the per-user, per-material ton balance.
type Account struct {
	UserID        uint64
	Material      Material
	TotalTons     decimal.Decimal
	UsedTons      decimal.Decimal
	RemainingTons decimal.Decimal
}

// NewAccount returns an empty account.
func NewAccount(userID uint64, material Material) Account {
	return Account{UserID: userID, Material: material}
}

// Consistent reports whether Total = Used + Remaining.
func (a Account) Consistent() bool {
	return a.TotalTons.Equal(a.UsedTons.Add(a.RemainingTons))
}

// Adjust moves delta tons from remaining to used. A negative delta returns
// tons to the remaining balance. Both sides are floored at zero.
func Adjust(a Account, delta decimal.Decimal) (Account, error) {
	delta = RoundTons(delta)
	if delta.IsPositive() && delta.GreaterThan(a.RemainingTons) {
		return a, fmt.Errorf("%w: need %s tons of %s, %s remaining", ErrInsufficientBalance, delta, a.Material, a.RemainingTons)
	}
	out := a
	out.UsedTons = clampZero(a.UsedTons.Add(delta))
	out.RemainingTons = clampZero(a.RemainingTons.Sub(delta))
	return out, nil
}

// Credit adds purchased tons.
func Credit(a Account, tons decimal.Decimal) (Account, error) {
	tons = RoundTons(tons)
	if tons.IsNegative() {
		return a, fmt.Errorf("%w: credit must not be negative", ErrValidation)
	}
	out := a
	out.TotalTons = a.TotalTons.Add(tons)
	out.RemainingTons = a.RemainingTons.Add(tons)
	return out, nil
}

// Debit removes purchased tons. Tons already consumed by tokens cannot be
// removed.
func Debit(a Account, tons decimal.Decimal) (Account, error) {
	tons = RoundTons(tons)
	if tons.IsNegative() {
		return a, fmt.Errorf("%w: debit must not be negative", ErrValidation)
	}
	if tons.GreaterThan(a.RemainingTons) {
		return a, fmt.Errorf("%w: cannot remove %s tons of %s, only %s unused", ErrInvalidState, tons, a.Material, a.RemainingTons)
	}
	out := a
	out.TotalTons = clampZero(a.TotalTons.Sub(tons))
	out.RemainingTons = a.RemainingTons.Sub(tons)
	return out, nil
}

func clampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
