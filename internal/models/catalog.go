package models

import (
	"time"
)

// Set is a canonical released product (booster, starter deck, promo pack).
// The matcher treats the set catalog as an immutable lookup universe during a
// scrape run.
type Set struct {
	ID               string     `json:"id" gorm:"primaryKey"`
	Title            string     `json:"title" gorm:"not null;index"`
	Code             string     `json:"code" gorm:"index"`
	VersionSignature string     `json:"version_signature"`
	Region           Region     `json:"region"`
	ImageURL         string     `json:"image_url"`
	ReleaseDate      *time.Time `json:"release_date"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Card is a canonical catalog card. The marketplace reference fields hold the
// chosen best match from the product matcher.
type Card struct {
	ID           string `json:"id" gorm:"primaryKey"`
	Code         string `json:"code" gorm:"not null;index"`
	Name         string `json:"name" gorm:"not null;index"`
	SetID        string `json:"set_id" gorm:"index"`
	SetName      string `json:"set_name"`
	Rarity       string `json:"rarity"`
	FirstEdition bool   `json:"first_edition"`
	ImageURL     string `json:"image_url"`
	Locale       string `json:"locale"`

	// External marketplace reference, populated by the product matcher.
	MarketProductID string     `json:"market_product_id" gorm:"index"`
	MarketGroupID   string     `json:"market_group_id"`
	MarketPriceUSD  float64    `json:"market_price_usd"`
	MarketMatchedAt *time.Time `json:"market_matched_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
