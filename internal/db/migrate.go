package db

import (
	"fmt"

	"github.com/flyashdesk/dashboard/internal/models"
	"gorm.io/gorm"
)

// Models lists every table in dependency order.
func Models() []any {
	return []any{
		&models.User{},
		&models.MaterialAccount{},
		&models.Token{},
		&models.Transaction{},
		&models.BedashMessage{},
		&models.RevokedToken{},
		&models.Setting{},
	}
}

// Migrate creates or updates the schema.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	for _, model := range Models() {
		if errMigrate := conn.AutoMigrate(model); errMigrate != nil {
			return fmt.Errorf("db: migrate %T: %w", model, errMigrate)
		}
	}
	return nil
}
