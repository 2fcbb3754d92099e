package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// BedashMessage is a delivery reminder for a user's material.
type BedashMessage struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID       uint64          `gorm:"not null;index"`                                // User the delivery is for.
	User         *User           `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"` // User record.
	Amount       decimal.Decimal `gorm:"type:decimal(20,3);not null"`                   // Tons to deliver.
	MaterialType string          `gorm:"type:varchar(20);not null;default:'bedash'"`    // flyash or bedash.

	CustomDate *datatypes.Date // Date entered by the author.
	TargetDate *datatypes.Date // Planned delivery date.

	Status    string `gorm:"type:varchar(20);not null;default:'pending';index"` // pending or completed.
	CreatedBy uint64 `gorm:"not null;index"`                                    // Author.

	CreatedAt   time.Time  `gorm:"not null;autoCreateTime"` // Creation timestamp.
	CompletedAt *time.Time // Completion time.
}
