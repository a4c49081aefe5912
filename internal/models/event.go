package models

import (
	"time"
)

type Region string

const (
	RegionJapan Region = "jp"
	RegionWest  Region = "en"
	RegionChina Region = "cn"
	RegionEU    Region = "fr"
)

// EventStatus is derived from the event's start date, never stored, so a
// re-scrape cannot leave a stale value behind.
type EventStatus string

const (
	EventUpcoming  EventStatus = "upcoming"
	EventOngoing   EventStatus = "ongoing"
	EventCompleted EventStatus = "completed"
)

// Event is a tournament or store event discovered on an external listing page.
type Event struct {
	ID        string     `json:"id" gorm:"primaryKey"`
	Slug      string     `json:"slug" gorm:"uniqueIndex;not null"`
	Title     string     `json:"title" gorm:"not null"`
	Locale    string     `json:"locale"`
	Region    Region     `json:"region" gorm:"index"`
	SourceURL string     `json:"source_url" gorm:"index"`
	StartDate *time.Time `json:"start_date"`
	Location  string     `json:"location"`
	ImageURL  string     `json:"image_url"`
	Approved  bool       `json:"approved" gorm:"default:false"`
	SortOrder int        `json:"sort_order"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Status derives the lifecycle phase from the start date. Events run for a
// single day; anything older than a day is completed.
func (e *Event) Status(now time.Time) EventStatus {
	if e.StartDate == nil {
		return EventUpcoming
	}
	start := *e.StartDate
	switch {
	case start.After(now):
		return EventUpcoming
	case now.Sub(start) < 24*time.Hour:
		return EventOngoing
	default:
		return EventCompleted
	}
}

// EventSet links an event to a canonical set it features.
type EventSet struct {
	ID      uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	EventID string `json:"event_id" gorm:"not null;index;uniqueIndex:idx_event_set"`
	SetID   string `json:"set_id" gorm:"not null;index;uniqueIndex:idx_event_set"`
}

// EventCard links an event to a canonical card it distributes.
type EventCard struct {
	ID      uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	EventID string `json:"event_id" gorm:"not null;index;uniqueIndex:idx_event_card"`
	CardID  string `json:"card_id" gorm:"not null;index;uniqueIndex:idx_event_card"`
}
