package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Material identifies the product a balance or token is denominated in.
type Material string

const (
	// MaterialFlyash is fly ash, the default material.
	MaterialFlyash Material = "flyash"
	// MaterialBedash is bed ash.
	MaterialBedash Material = "bedash"
)

// Materials lists every material in display order.
func Materials() []Material {
	return []Material{MaterialFlyash, MaterialBedash}
}

// ParseMaterial normalizes s into a Material.
func ParseMaterial(s string) (Material, error) {
	switch Material(strings.ToLower(strings.TrimSpace(s))) {
	case MaterialFlyash:
		return MaterialFlyash, nil
	case MaterialBedash:
		return MaterialBedash, nil
	default:
		return "", fmt.Errorf("%w: unknown material type %q", ErrValidation, s)
	}
}

// Status is the lifecycle state of a token.
type Status string

const (
	// StatusPending is a freshly created, unweighed token.
	StatusPending Status = "pending"
	// StatusUpdated is a billed token that is not fully paid.
	StatusUpdated Status = "updated"
	// StatusCompleted is a fully paid token.
	StatusCompleted Status = "completed"
)

// Editable reports whether weight and commission may still change.
func (s Status) Editable() bool {
	return s == StatusPending || s == StatusUpdated
}

// Rounding scales for persisted quantities.
const (
	MoneyPlaces = 2
	TonPlaces   = 3
)

// RoundMoney rounds an amount to currency precision.
func RoundMoney(d decimal.Decimal) decimal.Decimal { return d.Round(MoneyPlaces) }

// RoundTons rounds a quantity to ton precision.
func RoundTons(d decimal.Decimal) decimal.Decimal { return d.Round(TonPlaces) }
