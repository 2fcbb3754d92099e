package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Token is a delivery token issued to a customer of a user.
type Token struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID       uint64 `gorm:"not null;index:idx_tokens_user_customer,priority:1"`           // Owning user.
	User         *User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`                // Owning user record.
	CustomerName string `gorm:"type:text;not null;index:idx_tokens_user_customer,priority:2"` // Customer the token was issued to.
	TruckNumber  string `gorm:"type:text"`                                                    // Vehicle registration, optional.
	MaterialType string `gorm:"type:varchar(20);not null;default:'flyash'"`                   // flyash or bedash.

	Weight       decimal.Decimal `gorm:"type:decimal(20,3);not null;default:0"` // Weighed tons.
	RatePerTon   decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0"` // Rate used for the total.
	Commission   decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0"` // Flat commission.
	TotalAmount  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0"` // Weight x rate + commission.
	PaidAmount   decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0"` // Amount settled so far.
	CarryForward decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0"` // Negative owed, positive advance.

	Status string `gorm:"type:varchar(20);not null;default:'pending';index"` // pending, updated or completed.

	CreatedAt   time.Time  `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt   time.Time  `gorm:"not null;autoUpdateTime"` // Last update timestamp.
	ConfirmedAt *time.Time // Time the token was fully paid.
}
