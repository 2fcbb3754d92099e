package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaterialAccount holds a user's purchased tons of one material.
type MaterialAccount struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID       uint64 `gorm:"not null;uniqueIndex:idx_material_accounts_user_material,priority:1"`                  // Owning user.
	User         *User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`                                        // Owning user record.
	MaterialType string `gorm:"type:varchar(20);not null;uniqueIndex:idx_material_accounts_user_material,priority:2"` // flyash or bedash.

	TotalTons     decimal.Decimal `gorm:"type:decimal(20,3);not null;default:0"` // Tons purchased.
	UsedTons      decimal.Decimal `gorm:"type:decimal(20,3);not null;default:0"` // Tons consumed by tokens.
	RemainingTons decimal.Decimal `gorm:"type:decimal(20,3);not null;default:0"` // Tons still available.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
