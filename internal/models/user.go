package models

import "time"

// User is a dashboard account. Role is one of user, admin or superadmin.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name     string `gorm:"type:text;not null;default:'Unknown'"` // Display name.
	Email    string `gorm:"type:text;not null;uniqueIndex"`       // Unique login email.
	Password string `gorm:"type:text;not null"`                   // Hashed password.
	Role     string `gorm:"type:varchar(20);not null;index"`      // Authorization role.

	IsActive bool `gorm:"not null;default:true"` // Inactive users cannot sign in.

	CreatedBy *uint64 `gorm:"index"` // Admin that created the account.

	TOTPSecret string `gorm:"type:text"` // TOTP secret for MFA.

	PasskeyID             []byte  `gorm:"column:passkey_id"`         // WebAuthn credential ID.
	PasskeyPublicKey      []byte  `gorm:"column:passkey_public_key"` // WebAuthn COSE public key.
	PasskeySignCount      *uint32 `gorm:"type:bigint"`               // WebAuthn signature counter.
	PasskeyBackupEligible *bool   `gorm:"type:boolean"`              // WebAuthn backup eligibility flag.
	PasskeyBackupState    *bool   `gorm:"type:boolean"`              // WebAuthn backup state flag.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
