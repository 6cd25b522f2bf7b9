package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/charlesng35/notely/internal/models"
)

// AutoMigrate creates or updates the schema for all persistent models.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	return db.AutoMigrate(
		&models.User{},
		&models.Note{},
		&models.CacheEntry{},
	)
}
