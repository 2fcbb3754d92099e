package models

import (
	"encoding/json"
	"time"
)

// Setting is a runtime-tunable key/value pair; Value holds JSON.
type Setting struct {
	Key       string          `gorm:"type:varchar(255);primaryKey"`                      // Setting key, e.g. RATE_PER_TON.
	Value     json.RawMessage `gorm:"type:jsonb"`                                        // JSON-encoded value.
	UpdatedAt time.Time       `gorm:"not null;autoUpdateTime;default:CURRENT_TIMESTAMP"` // Last write.
}
