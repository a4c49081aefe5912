package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Luigii1506/ohara-catalog/internal/database"
	"github.com/Luigii1506/ohara-catalog/internal/models"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	return NewGormStore(db)
}

func mustEvent(t *testing.T, st *GormStore, title, sourceURL string) *models.Event {
	t.Helper()
	ev, err := st.UpsertEvent(context.Background(), &models.Event{
		Title:     title,
		Locale:    "en",
		Region:    models.RegionWest,
		SourceURL: sourceURL,
	})
	if err != nil {
		t.Fatalf("upsert event %q: %v", title, err)
	}
	return ev
}

func TestUpsertEventCreateAndUpdate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	ev := mustEvent(t, st, "Championship Osaka", "https://example.test/events/1")
	if ev.ID == "" || ev.Slug != "championship-osaka" {
		t.Fatalf("created event = %+v", ev)
	}

	// Re-scrape of the same source URL updates in place.
	again, err := st.UpsertEvent(ctx, &models.Event{
		Title:     "Championship Osaka 2024",
		Locale:    "en",
		Region:    models.RegionWest,
		SourceURL: "https://example.test/events/1",
		Location:  "Intex Osaka",
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if again.ID != ev.ID {
		t.Errorf("id changed on re-scrape: %s -> %s", ev.ID, again.ID)
	}

	var events []models.Event
	if err := st.db.Find(&events).Error; err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].Title != "Championship Osaka 2024" || events[0].Location != "Intex Osaka" {
		t.Errorf("updated event = %+v", events[0])
	}
}

func TestUpsertEventRefreshesSortOrderToZero(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if _, err := st.UpsertEvent(ctx, &models.Event{
		Title:     "Championship Osaka",
		SourceURL: "https://example.test/events/1",
		SortOrder: 3,
	}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// The event moved to the top of the listing; position 0 must stick.
	if _, err := st.UpsertEvent(ctx, &models.Event{
		Title:     "Championship Osaka",
		SourceURL: "https://example.test/events/1",
		SortOrder: 0,
	}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var ev models.Event
	if err := st.db.Where("source_url = ?", "https://example.test/events/1").First(&ev).Error; err != nil {
		t.Fatalf("load event: %v", err)
	}
	if ev.SortOrder != 0 {
		t.Errorf("sort order = %d, want 0 after re-scrape", ev.SortOrder)
	}
}

func TestUpsertEventSlugCollision(t *testing.T) {
	st := newTestStore(t)

	first := mustEvent(t, st, "Treasure Cup", "https://example.test/events/1")
	second := mustEvent(t, st, "Treasure Cup", "https://example.test/events/2")

	if first.Slug != "treasure-cup" {
		t.Errorf("first slug = %q", first.Slug)
	}
	if second.Slug != "treasure-cup-2" {
		t.Errorf("second slug = %q, want numeric suffix", second.Slug)
	}
}

func TestUpsertEventRequiresTitle(t *testing.T) {
	st := newTestStore(t)
	_, err := st.UpsertEvent(context.Background(), &models.Event{SourceURL: "https://example.test/x"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestLinkEventCardReportsCreation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ev := mustEvent(t, st, "Championship Osaka", "https://example.test/events/1")

	created, err := st.LinkEventCard(ctx, ev.ID, "card-1")
	if err != nil {
		t.Fatalf("first link: %v", err)
	}
	if !created {
		t.Error("first link not reported as created")
	}

	created, err = st.LinkEventCard(ctx, ev.ID, "card-1")
	if err != nil {
		t.Fatalf("second link: %v", err)
	}
	if created {
		t.Error("duplicate link reported as created")
	}
}

func TestUpsertMissingSetMergesImages(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ev := mustEvent(t, st, "Championship Osaka", "https://example.test/events/1")

	first, err := st.UpsertMissingSet(ctx, ev.ID, "Mystery Promo Pack", "", "", []string{"https://img/a.png"})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second, err := st.UpsertMissingSet(ctx, ev.ID, "Mystery Promo Pack", "Mystery Promo Pack EN", "",
		[]string{"https://img/b.png", "https://img/a.png"})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("ids differ: %d vs %d", first.ID, second.ID)
	}
	if len(second.Images) != 2 {
		t.Errorf("images = %v, want union of 2", second.Images)
	}
	if second.TranslatedTitle != "Mystery Promo Pack EN" {
		t.Errorf("translated title = %q, want filled in", second.TranslatedTitle)
	}

	// A different version signature is a distinct candidate.
	v2, err := st.UpsertMissingSet(ctx, ev.ID, "Mystery Promo Pack", "", "Ver.2", nil)
	if err != nil {
		t.Fatalf("v2 upsert: %v", err)
	}
	if v2.ID == first.ID {
		t.Error("version signature did not separate candidates")
	}
}

func TestApproveMissingCard(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	ev1 := mustEvent(t, st, "Event One", "https://example.test/events/1")
	ev2 := mustEvent(t, st, "Event Two", "https://example.test/events/2")
	ev3 := mustEvent(t, st, "Event Three", "https://example.test/events/3")

	mc, err := st.UpsertMissingCard(ctx, "P-044", "Nami", "", nil)
	if err != nil {
		t.Fatalf("upsert missing card: %v", err)
	}
	for _, ev := range []*models.Event{ev1, ev2, ev3} {
		if err := st.LinkEventMissingCard(ctx, ev.ID, mc.ID); err != nil {
			t.Fatalf("link missing card: %v", err)
		}
	}
	// One event already carries the real card link.
	if _, err := st.LinkEventCard(ctx, ev1.ID, "card-nami"); err != nil {
		t.Fatalf("pre-link card: %v", err)
	}

	approval, err := st.ApproveMissingCard(ctx, mc.ID, "card-nami")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approval.EventsReferenced != 3 {
		t.Errorf("events referenced = %d, want 3", approval.EventsReferenced)
	}
	if approval.LinksCreated != 2 {
		t.Errorf("links created = %d, want 2 (one event was already linked)", approval.LinksCreated)
	}

	// The candidate and its event links are consumed.
	cards, err := st.ListMissingCards(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cards) != 0 {
		t.Errorf("missing cards left = %d, want 0", len(cards))
	}
}

func TestApproveMissingCardNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.ApproveMissingCard(context.Background(), 999, "card-1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestResolveMissingSetConsumesCandidate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ev := mustEvent(t, st, "Championship Osaka", "https://example.test/events/1")

	ms, err := st.UpsertMissingSet(ctx, ev.ID, "Mystery Promo Pack", "", "", nil)
	if err != nil {
		t.Fatalf("upsert missing set: %v", err)
	}

	if err := st.ResolveMissingSet(ctx, ev.ID, ms.ID, "set-1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	sets, err := st.ListMissingSets(ctx, ev.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sets) != 0 {
		t.Errorf("missing sets left = %d, want 0", len(sets))
	}

	var n int64
	st.db.Model(&models.EventSet{}).Where("event_id = ? AND set_id = ?", ev.ID, "set-1").Count(&n)
	if n != 1 {
		t.Errorf("event-set links = %d, want 1", n)
	}
}

func TestRejectMissingCard(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ev := mustEvent(t, st, "Championship Osaka", "https://example.test/events/1")

	mc, err := st.UpsertMissingCard(ctx, "P-044", "Nami", "", nil)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := st.LinkEventMissingCard(ctx, ev.ID, mc.ID); err != nil {
		t.Fatalf("link: %v", err)
	}

	if err := st.RejectMissingCard(ctx, mc.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}

	cards, _ := st.ListMissingCards(ctx)
	if len(cards) != 0 {
		t.Errorf("missing cards left = %d, want 0", len(cards))
	}
	var n int64
	st.db.Model(&models.EventMissingCard{}).Where("missing_card_id = ?", mc.ID).Count(&n)
	if n != 0 {
		t.Errorf("event links left = %d, want 0", n)
	}
}

func TestRejectMissingCardNotFound(t *testing.T) {
	st := newTestStore(t)
	err := st.RejectMissingCard(context.Background(), 999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCleanupOrphanCandidates(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	kept := mustEvent(t, st, "Kept Event", "https://example.test/events/1")
	doomed := mustEvent(t, st, "Doomed Event", "https://example.test/events/2")

	if _, err := st.UpsertMissingSet(ctx, kept.ID, "Live Candidate", "", "", nil); err != nil {
		t.Fatalf("upsert kept set: %v", err)
	}
	if _, err := st.UpsertMissingSet(ctx, doomed.ID, "Orphan Candidate", "", "", nil); err != nil {
		t.Fatalf("upsert doomed set: %v", err)
	}

	orphanCard, err := st.UpsertMissingCard(ctx, "P-001", "Orphan", "", nil)
	if err != nil {
		t.Fatalf("upsert orphan card: %v", err)
	}
	if err := st.LinkEventMissingCard(ctx, doomed.ID, orphanCard.ID); err != nil {
		t.Fatalf("link orphan card: %v", err)
	}

	liveCard, err := st.UpsertMissingCard(ctx, "P-002", "Live", "", nil)
	if err != nil {
		t.Fatalf("upsert live card: %v", err)
	}
	if err := st.LinkEventMissingCard(ctx, kept.ID, liveCard.ID); err != nil {
		t.Fatalf("link live card: %v", err)
	}

	if err := st.db.Delete(&models.Event{}, "id = ?", doomed.ID).Error; err != nil {
		t.Fatalf("delete event: %v", err)
	}

	removed, err := st.CleanupOrphanCandidates(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2 (one set, one card)", removed)
	}

	sets, _ := st.ListMissingSets(ctx, "")
	if len(sets) != 1 || sets[0].Title != "Live Candidate" {
		t.Errorf("sets left = %+v", sets)
	}
	cards, _ := st.ListMissingCards(ctx)
	if len(cards) != 1 || cards[0].Code != "P-002" {
		t.Errorf("cards left = %+v", cards)
	}
}
