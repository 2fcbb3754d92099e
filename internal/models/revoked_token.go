package models

import "time"

// RevokedToken marks a signed-out JWT by its id until it expires.
type RevokedToken struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	JTI       string    `gorm:"type:varchar(64);not null;uniqueIndex"` // JWT id claim.
	UserID    uint64    `gorm:"not null;index"`                        // Token owner.
	ExpiresAt time.Time `gorm:"not null;index"`                        // Original token expiry.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Revocation timestamp.
}
