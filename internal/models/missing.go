package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ImageList stores an ordered list of image URLs as a JSON column.
type ImageList []string

func (l ImageList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *ImageList) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported image list type %T", value)
	}
}

// MissingSet is an event-scoped set candidate that did not match any catalog
// set. Identity within an event is (title, version_signature).
type MissingSet struct {
	ID               uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	EventID          string    `json:"event_id" gorm:"not null;index;uniqueIndex:idx_event_missing_set"`
	Title            string    `json:"title" gorm:"not null;uniqueIndex:idx_event_missing_set"`
	TranslatedTitle  string    `json:"translated_title"`
	VersionSignature string    `json:"version_signature" gorm:"uniqueIndex:idx_event_missing_set"`
	Images           ImageList `json:"images" gorm:"type:text"`
	Approved         bool      `json:"approved" gorm:"default:false"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// MissingCard is a global card candidate shared across events, keyed by the
// (code, title, image_url) composite.
type MissingCard struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Code      string    `json:"code" gorm:"not null;uniqueIndex:idx_missing_card"`
	Title     string    `json:"title" gorm:"not null;uniqueIndex:idx_missing_card"`
	ImageURL  string    `json:"image_url" gorm:"uniqueIndex:idx_missing_card"`
	Images    ImageList `json:"images" gorm:"type:text"`
	Approved  bool      `json:"approved" gorm:"default:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EventMissingCard records which events reference a missing card candidate.
type EventMissingCard struct {
	ID            uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	EventID       string `json:"event_id" gorm:"not null;index;uniqueIndex:idx_event_missing_card"`
	MissingCardID uint   `json:"missing_card_id" gorm:"not null;index;uniqueIndex:idx_event_missing_card"`
}

// MissingProduct is a non-card product candidate (boxes, sleeves, playmats).
// It is not event-scoped, so the orphan sweep leaves it alone.
type MissingProduct struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Title     string    `json:"title" gorm:"not null;uniqueIndex"`
	Category  string    `json:"category"`
	Images    ImageList `json:"images" gorm:"type:text"`
	Approved  bool      `json:"approved" gorm:"default:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
