package database

import (
	"log"

	"github.com/Luigii1506/ohara-catalog/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the sqlite database and migrates the schema. The returned
// handle is wired into the store at startup; nothing else touches gorm
// directly.
func Open(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	log.Println("Database connected successfully")

	if err := cleanupLegacyDuplicates(db); err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&models.Event{},
		&models.Set{},
		&models.Card{},
		&models.EventSet{},
		&models.EventCard{},
		&models.MissingSet{},
		&models.MissingCard{},
		&models.EventMissingCard{},
		&models.MissingProduct{},
	)
	if err != nil {
		return nil, err
	}

	log.Println("Database migration completed")
	return db, nil
}
