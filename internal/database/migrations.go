package database

import (
	"log"

	"gorm.io/gorm"
)

// cleanupLegacyDuplicates removes rows that would violate the composite unique
// indexes before AutoMigrate adds them. Earlier scrape builds wrote missing
// candidates without the uniqueness constraints, so a database that predates
// them can hold duplicates.
func cleanupLegacyDuplicates(db *gorm.DB) error {
	if db.Migrator().HasTable("missing_sets") {
		result := db.Exec(`
			DELETE FROM missing_sets
			WHERE id NOT IN (
				SELECT MAX(id)
				FROM missing_sets
				GROUP BY event_id, title, version_signature
			)
		`)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			log.Printf("Cleaned up %d duplicate missing_sets entries", result.RowsAffected)
		}
	}

	if db.Migrator().HasTable("missing_cards") {
		result := db.Exec(`
			DELETE FROM missing_cards
			WHERE id NOT IN (
				SELECT MAX(id)
				FROM missing_cards
				GROUP BY code, title, image_url
			)
		`)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			log.Printf("Cleaned up %d duplicate missing_cards entries", result.RowsAffected)
		}
	}

	if db.Migrator().HasTable("event_missing_cards") {
		result := db.Exec(`
			DELETE FROM event_missing_cards
			WHERE id NOT IN (
				SELECT MAX(id)
				FROM event_missing_cards
				GROUP BY event_id, missing_card_id
			)
		`)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			log.Printf("Cleaned up %d duplicate event_missing_cards entries", result.RowsAffected)
		}
	}

	return nil
}
