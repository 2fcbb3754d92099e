package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// BankDetails describes an online payment.
type BankDetails struct {
	BankName        string `json:"bank_name,omitempty"`
	AccountHolder   string `json:"account_holder,omitempty"`
	ReferenceNumber string `json:"reference_number,omitempty"`
}

// Transaction records one balance purchase.
type Transaction struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`                                // Purchasing user.
	User   *User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"` // Purchasing user record.

	TotalAmount  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0"` // Flyash + bedash amount.
	FlyashAmount decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0"` // Currency spent on flyash.
	BedashAmount decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0"` // Currency spent on bedash.
	FlyashTons   decimal.Decimal `gorm:"type:decimal(20,3);not null;default:0"` // Tons credited to flyash.
	BedashTons   decimal.Decimal `gorm:"type:decimal(20,3);not null;default:0"` // Tons credited to bedash.
	RatePerTon   decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0"` // Rate used for the conversion.

	PaymentMode string                           `gorm:"type:varchar(10);not null;default:'cash'"` // cash or online.
	BankDetails *datatypes.JSONType[BankDetails] `gorm:"type:jsonb"`                               // Online payment details.

	CreatedBy *uint64 `gorm:"index"` // Actor that recorded the purchase.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
