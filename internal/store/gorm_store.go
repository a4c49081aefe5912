package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Luigii1506/ohara-catalog/internal/models"
)

// GormStore implements EventStore on the sqlite database.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx EventStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) UpsertEvent(ctx context.Context, ev *models.Event) (*models.Event, error) {
	if ev.Title == "" {
		return nil, fmt.Errorf("%w: event title is required", ErrValidation)
	}

	db := s.db.WithContext(ctx)

	var existing models.Event
	var err error
	if ev.SourceURL != "" {
		err = db.Where("source_url = ?", ev.SourceURL).First(&existing).Error
	} else {
		err = db.Where("slug = ?", slugify(ev.Title)).First(&existing).Error
	}

	if err == nil {
		// Re-scrape of a known event: refresh the mutable fields, keep the
		// identity and approval state.
		// Sort order always follows the latest listing; position 0 is a real
		// position, not an unset value.
		updates := map[string]interface{}{
			"title":      ev.Title,
			"locale":     ev.Locale,
			"region":     ev.Region,
			"sort_order": ev.SortOrder,
		}
		if ev.StartDate != nil {
			updates["start_date"] = ev.StartDate
		}
		if ev.Location != "" {
			updates["location"] = ev.Location
		}
		if ev.ImageURL != "" {
			updates["image_url"] = ev.ImageURL
		}
		if err := db.Model(&existing).Updates(updates).Error; err != nil {
			return nil, err
		}
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	ev.ID = uuid.NewString()
	ev.Slug = uniqueSlug(slugify(ev.Title), func(slug string) bool {
		var n int64
		db.Model(&models.Event{}).Where("slug = ?", slug).Count(&n)
		return n > 0
	})
	if err := db.Create(ev).Error; err != nil {
		return nil, err
	}
	return ev, nil
}

func (s *GormStore) LinkEventSet(ctx context.Context, eventID, setID string) error {
	if eventID == "" || setID == "" {
		return fmt.Errorf("%w: event id and set id are required", ErrValidation)
	}
	db := s.db.WithContext(ctx)
	var n int64
	if err := db.Model(&models.EventSet{}).
		Where("event_id = ? AND set_id = ?", eventID, setID).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	return db.Create(&models.EventSet{EventID: eventID, SetID: setID}).Error
}

func (s *GormStore) LinkEventCard(ctx context.Context, eventID, cardID string) (bool, error) {
	if eventID == "" || cardID == "" {
		return false, fmt.Errorf("%w: event id and card id are required", ErrValidation)
	}
	db := s.db.WithContext(ctx)
	var n int64
	if err := db.Model(&models.EventCard{}).
		Where("event_id = ? AND card_id = ?", eventID, cardID).Count(&n).Error; err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	if err := db.Create(&models.EventCard{EventID: eventID, CardID: cardID}).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (s *GormStore) UpsertMissingSet(ctx context.Context, eventID, title, translatedTitle, versionSignature string, images []string) (*models.MissingSet, error) {
	if eventID == "" || title == "" {
		return nil, fmt.Errorf("%w: event id and title are required", ErrValidation)
	}

	db := s.db.WithContext(ctx)

	var existing models.MissingSet
	err := db.Where("event_id = ? AND title = ? AND version_signature = ?",
		eventID, title, versionSignature).First(&existing).Error
	if err == nil {
		existing.Images = mergeImages(existing.Images, images)
		if translatedTitle != "" && existing.TranslatedTitle == "" {
			existing.TranslatedTitle = translatedTitle
		}
		if err := db.Save(&existing).Error; err != nil {
			return nil, err
		}
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	ms := models.MissingSet{
		EventID:          eventID,
		Title:            title,
		TranslatedTitle:  translatedTitle,
		VersionSignature: versionSignature,
		Images:           mergeImages(nil, images),
	}
	if err := db.Create(&ms).Error; err != nil {
		return nil, err
	}
	return &ms, nil
}

func (s *GormStore) UpsertMissingCard(ctx context.Context, code, title, imageURL string, images []string) (*models.MissingCard, error) {
	if code == "" && title == "" {
		return nil, fmt.Errorf("%w: card code or title is required", ErrValidation)
	}

	db := s.db.WithContext(ctx)

	var existing models.MissingCard
	err := db.Where("code = ? AND title = ? AND image_url = ?", code, title, imageURL).
		First(&existing).Error
	if err == nil {
		existing.Images = mergeImages(existing.Images, images)
		if err := db.Save(&existing).Error; err != nil {
			return nil, err
		}
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	mc := models.MissingCard{
		Code:     code,
		Title:    title,
		ImageURL: imageURL,
		Images:   mergeImages(nil, images),
	}
	if err := db.Create(&mc).Error; err != nil {
		return nil, err
	}
	return &mc, nil
}

func (s *GormStore) LinkEventMissingCard(ctx context.Context, eventID string, missingCardID uint) error {
	if eventID == "" || missingCardID == 0 {
		return fmt.Errorf("%w: event id and missing card id are required", ErrValidation)
	}
	db := s.db.WithContext(ctx)
	var n int64
	if err := db.Model(&models.EventMissingCard{}).
		Where("event_id = ? AND missing_card_id = ?", eventID, missingCardID).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	return db.Create(&models.EventMissingCard{EventID: eventID, MissingCardID: missingCardID}).Error
}

func (s *GormStore) UpsertMissingProduct(ctx context.Context, title, category string, images []string) (*models.MissingProduct, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: product title is required", ErrValidation)
	}

	db := s.db.WithContext(ctx)

	var existing models.MissingProduct
	err := db.Where("title = ?", title).First(&existing).Error
	if err == nil {
		existing.Images = mergeImages(existing.Images, images)
		if category != "" {
			existing.Category = category
		}
		if err := db.Save(&existing).Error; err != nil {
			return nil, err
		}
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	mp := models.MissingProduct{Title: title, Category: category, Images: mergeImages(nil, images)}
	if err := db.Create(&mp).Error; err != nil {
		return nil, err
	}
	return &mp, nil
}

func (s *GormStore) ResolveMissingSet(ctx context.Context, eventID string, missingSetID uint, setID string) error {
	return s.Transaction(ctx, func(tx EventStore) error {
		if err := tx.LinkEventSet(ctx, eventID, setID); err != nil {
			return err
		}

		g := tx.(*GormStore)
		var ms models.MissingSet
		err := g.db.WithContext(ctx).First(&ms, missingSetID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		// Missing sets are event-scoped, so linking the set consumes the
		// candidate unless an approval already claimed it.
		if ms.EventID == eventID && !ms.Approved {
			return g.db.WithContext(ctx).Delete(&ms).Error
		}
		return nil
	})
}

func (s *GormStore) ApproveMissingCard(ctx context.Context, missingCardID uint, cardID string) (*CardApproval, error) {
	if cardID == "" {
		return nil, fmt.Errorf("%w: card id is required", ErrValidation)
	}

	approval := &CardApproval{}
	err := s.Transaction(ctx, func(tx EventStore) error {
		g := tx.(*GormStore)
		db := g.db.WithContext(ctx)

		var mc models.MissingCard
		if err := db.First(&mc, missingCardID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var links []models.EventMissingCard
		if err := db.Where("missing_card_id = ?", missingCardID).Find(&links).Error; err != nil {
			return err
		}
		approval.EventsReferenced = len(links)

		for _, link := range links {
			created, err := tx.LinkEventCard(ctx, link.EventID, cardID)
			if err != nil {
				return err
			}
			if created {
				approval.LinksCreated++
			}
		}

		if err := db.Where("missing_card_id = ?", missingCardID).
			Delete(&models.EventMissingCard{}).Error; err != nil {
			return err
		}
		return db.Delete(&mc).Error
	})
	if err != nil {
		return nil, err
	}
	return approval, nil
}

func (s *GormStore) RejectMissingCard(ctx context.Context, missingCardID uint) error {
	return s.Transaction(ctx, func(tx EventStore) error {
		db := tx.(*GormStore).db.WithContext(ctx)
		if err := db.Where("missing_card_id = ?", missingCardID).
			Delete(&models.EventMissingCard{}).Error; err != nil {
			return err
		}
		result := db.Delete(&models.MissingCard{}, missingCardID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *GormStore) UpdateMissingSetTitle(ctx context.Context, missingSetID uint, title string) error {
	if title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	result := s.db.WithContext(ctx).Model(&models.MissingSet{}).
		Where("id = ?", missingSetID).Update("title", title)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListMissingSets(ctx context.Context, eventID string) ([]models.MissingSet, error) {
	var sets []models.MissingSet
	q := s.db.WithContext(ctx).Order("id")
	if eventID != "" {
		q = q.Where("event_id = ?", eventID)
	}
	if err := q.Find(&sets).Error; err != nil {
		return nil, err
	}
	return sets, nil
}

func (s *GormStore) ListMissingCards(ctx context.Context) ([]models.MissingCard, error) {
	var cards []models.MissingCard
	if err := s.db.WithContext(ctx).Order("id").Find(&cards).Error; err != nil {
		return nil, err
	}
	return cards, nil
}

func (s *GormStore) AllSets(ctx context.Context) ([]models.Set, error) {
	var sets []models.Set
	if err := s.db.WithContext(ctx).Find(&sets).Error; err != nil {
		return nil, err
	}
	return sets, nil
}

func (s *GormStore) AllCards(ctx context.Context) ([]models.Card, error) {
	var cards []models.Card
	if err := s.db.WithContext(ctx).Find(&cards).Error; err != nil {
		return nil, err
	}
	return cards, nil
}

func (s *GormStore) GetCard(ctx context.Context, id string) (*models.Card, error) {
	var card models.Card
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &card, nil
}

func (s *GormStore) UpdateCardMarketplaceRef(ctx context.Context, cardID, productID, groupID string, priceUSD float64) error {
	now := time.Now()
	result := s.db.WithContext(ctx).Model(&models.Card{}).Where("id = ?", cardID).
		Updates(map[string]interface{}{
			"market_product_id": productID,
			"market_group_id":   groupID,
			"market_price_usd":  priceUSD,
			"market_matched_at": &now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) CleanupOrphanCandidates(ctx context.Context) (int64, error) {
	db := s.db.WithContext(ctx)
	var removed int64

	// Missing sets whose event was deleted.
	result := db.Exec(`
		DELETE FROM missing_sets
		WHERE event_id NOT IN (SELECT id FROM events)
	`)
	if result.Error != nil {
		return removed, result.Error
	}
	removed += result.RowsAffected

	// Event links pointing at deleted events.
	result = db.Exec(`
		DELETE FROM event_missing_cards
		WHERE event_id NOT IN (SELECT id FROM events)
	`)
	if result.Error != nil {
		return removed, result.Error
	}

	// Unapproved missing cards with no event references left.
	result = db.Exec(`
		DELETE FROM missing_cards
		WHERE approved = false
		AND id NOT IN (SELECT missing_card_id FROM event_missing_cards)
	`)
	if result.Error != nil {
		return removed, result.Error
	}
	removed += result.RowsAffected

	return removed, nil
}

// mergeImages unions image URLs preserving first-seen order.
func mergeImages(existing []string, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, lists := range [][]string{existing, incoming} {
		for _, u := range lists {
			if u == "" {
				continue
			}
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	return out
}
