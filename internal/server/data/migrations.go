package data

import (
	"gorm.io/gorm"

	"github.com/keyfobhq/keyfob/internal/server/models"
)

func initializeSchema(db *gorm.DB) error {
	tables := []interface{}{
		&models.Session{},
		&models.AccessKey{},
	}

	for _, table := range tables {
		if err := db.AutoMigrate(table); err != nil {
			return err
		}
	}

	return nil
}
