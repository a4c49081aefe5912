package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Luigii1506/ohara-catalog/internal/models"
	"github.com/Luigii1506/ohara-catalog/internal/store"
)

// fakeEventStore is an in-memory store.EventStore for pipeline tests.
type fakeEventStore struct {
	mu           sync.Mutex
	sets         []models.Set
	cards        []models.Card
	events       map[string]*models.Event // keyed by source URL
	eventSets    map[string]bool          // eventID + "\x00" + setID
	eventCards   map[string]bool
	missingSets  map[string]*models.MissingSet // eventID + "\x00" + title + "\x00" + sig
	missingCards map[string]*models.MissingCard
	cardLinks    map[string]bool // eventID + "\x00" + missingCardID
	nextID       int
}

func newFakeEventStore(sets []models.Set, cards []models.Card) *fakeEventStore {
	return &fakeEventStore{
		sets:         sets,
		cards:        cards,
		events:       map[string]*models.Event{},
		eventSets:    map[string]bool{},
		eventCards:   map[string]bool{},
		missingSets:  map[string]*models.MissingSet{},
		missingCards: map[string]*models.MissingCard{},
		cardLinks:    map[string]bool{},
	}
}

func (f *fakeEventStore) Transaction(_ context.Context, fn func(tx store.EventStore) error) error {
	return fn(f)
}

func (f *fakeEventStore) UpsertEvent(_ context.Context, ev *models.Event) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.events[ev.SourceURL]; ok {
		ev.ID = existing.ID
		f.events[ev.SourceURL] = ev
		return ev, nil
	}
	f.nextID++
	ev.ID = fmt.Sprintf("evt-%d", f.nextID)
	f.events[ev.SourceURL] = ev
	return ev, nil
}

func (f *fakeEventStore) LinkEventSet(_ context.Context, eventID, setID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eventSets[eventID+"\x00"+setID] = true
	return nil
}

func (f *fakeEventStore) LinkEventCard(_ context.Context, eventID, cardID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := eventID + "\x00" + cardID
	if f.eventCards[key] {
		return false, nil
	}
	f.eventCards[key] = true
	return true, nil
}

func (f *fakeEventStore) UpsertMissingSet(_ context.Context, eventID, title, translatedTitle, versionSignature string, images []string) (*models.MissingSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := eventID + "\x00" + title + "\x00" + versionSignature
	if ms, ok := f.missingSets[key]; ok {
		return ms, nil
	}
	f.nextID++
	ms := &models.MissingSet{
		ID:               uint(f.nextID),
		EventID:          eventID,
		Title:            title,
		TranslatedTitle:  translatedTitle,
		VersionSignature: versionSignature,
		Images:           images,
	}
	f.missingSets[key] = ms
	return ms, nil
}

func (f *fakeEventStore) UpsertMissingCard(_ context.Context, code, title, imageURL string, images []string) (*models.MissingCard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := code + "\x00" + title + "\x00" + imageURL
	if mc, ok := f.missingCards[key]; ok {
		return mc, nil
	}
	f.nextID++
	mc := &models.MissingCard{ID: uint(f.nextID), Code: code, Title: title, ImageURL: imageURL, Images: images}
	f.missingCards[key] = mc
	return mc, nil
}

func (f *fakeEventStore) LinkEventMissingCard(_ context.Context, eventID string, missingCardID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cardLinks[fmt.Sprintf("%s\x00%d", eventID, missingCardID)] = true
	return nil
}

func (f *fakeEventStore) UpsertMissingProduct(_ context.Context, title, category string, images []string) (*models.MissingProduct, error) {
	return &models.MissingProduct{Title: title, Category: category, Images: images}, nil
}

func (f *fakeEventStore) ResolveMissingSet(context.Context, string, uint, string) error { return nil }

func (f *fakeEventStore) ApproveMissingCard(context.Context, uint, string) (*store.CardApproval, error) {
	return &store.CardApproval{}, nil
}

func (f *fakeEventStore) RejectMissingCard(context.Context, uint) error { return nil }

func (f *fakeEventStore) UpdateMissingSetTitle(context.Context, uint, string) error { return nil }

func (f *fakeEventStore) ListMissingSets(context.Context, string) ([]models.MissingSet, error) {
	return nil, nil
}

func (f *fakeEventStore) ListMissingCards(context.Context) ([]models.MissingCard, error) {
	return nil, nil
}

func (f *fakeEventStore) AllSets(context.Context) ([]models.Set, error)   { return f.sets, nil }
func (f *fakeEventStore) AllCards(context.Context) ([]models.Card, error) { return f.cards, nil }

func (f *fakeEventStore) GetCard(_ context.Context, id string) (*models.Card, error) {
	for i := range f.cards {
		if f.cards[i].ID == id {
			return &f.cards[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeEventStore) UpdateCardMarketplaceRef(context.Context, string, string, string, float64) error {
	return nil
}

func (f *fakeEventStore) CleanupOrphanCandidates(context.Context) (int64, error) { return 0, nil }

// newScrapeSite serves two listing pages and their detail pages. Listing A has
// three events, listing B one; detail /a/events/2 answers 503 so that event
// fails at the fetch stage. The returned map counts requests per path.
func newScrapeSite(t *testing.T) (*httptest.Server, map[string]int) {
	t.Helper()

	hits := map[string]int{}
	var mu sync.Mutex

	detail := func(title string) string {
		return fmt.Sprintf(`<html><body><article>
<h1>%s</h1>
<dl><dt>日時</dt><dd>2024年5月3日</dd><dt>会場</dt><dd>東京</dd></dl>
<div class="set-list">
  <div class="set-item"><span class="set-title">Romance Dawn</span></div>
  <div class="set-item"><span class="set-title">Mystery Promo Pack</span></div>
</div>
<ul class="cardList">
  <li>OP01-001 Roronoa Zoro</li>
  <li>P-044 Nami</li>
</ul>
</article></body></html>`, title)
	}

	list := func(base string, n int) string {
		var b strings.Builder
		b.WriteString(`<html><body><ul class="eventList">`)
		for i := 1; i <= n; i++ {
			fmt.Fprintf(&b, `<li><a href="%s/%d"><h3>Event %s %d</h3></a></li>`, base, i, base, i)
		}
		b.WriteString(`</ul></body></html>`)
		return b.String()
	}

	mux := http.NewServeMux()
	handle := func(path, body string) {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			hits[r.URL.Path]++
			mu.Unlock()
			fmt.Fprint(w, body)
		})
	}

	handle("/a/events", list("/a/events", 3))
	handle("/b/events", list("/b/events", 1))
	handle("/a/events/1", detail("Championship Osaka"))
	handle("/a/events/3", detail("Championship Nagoya"))
	mux.HandleFunc("/a/events/2", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})
	handle("/b/events/1", detail("Treasure Cup Tokyo"))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, hits
}

func testCatalogStore() *fakeEventStore {
	return newFakeEventStore(
		[]models.Set{{ID: "set-1", Title: "Romance Dawn", Code: "OP01"}},
		[]models.Card{{ID: "card-1", Code: "OP01-001", Name: "Roronoa Zoro"}},
	)
}

func scrapeOptsFor(srv *httptest.Server) ScrapeOptions {
	return ScrapeOptions{
		Sources: []EventListSource{
			{Name: "a", URL: srv.URL + "/a/events", Locale: "jp", Region: models.RegionJapan},
			{Name: "b", URL: srv.URL + "/b/events", Locale: "en", Region: models.RegionWest},
		},
		PerSourceLimit: 2,
		DelayMs:        1,
	}
}

func TestScrapeEventsRespectsPerSourceLimit(t *testing.T) {
	srv, hits := newScrapeSite(t)
	st := testCatalogStore()
	s := NewScraper(st, "")

	result, err := s.ScrapeEvents(context.Background(), scrapeOptsFor(srv))
	if err != nil {
		t.Fatalf("ScrapeEvents: %v", err)
	}

	// Two sources at two events each is at most four; listing A only carries
	// its first two past the limit.
	if len(result.Events) != 3 {
		t.Fatalf("events walked = %d, want 3: %+v", len(result.Events), result.Events)
	}
	if hits["/a/events/3"] != 0 {
		t.Error("event beyond per-source limit was fetched")
	}

	// /a/events/2 answers 503 and fails; the run keeps going.
	if result.EventsProcessed != 2 {
		t.Errorf("events processed = %d, want 2", result.EventsProcessed)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "fetch failed") {
		t.Errorf("errors = %v, want one fetch failure", result.Errors)
	}
	if result.Success {
		t.Error("success = true despite a per-event failure")
	}

	if len(st.events) != 2 {
		t.Errorf("persisted events = %d, want 2", len(st.events))
	}
	if result.SetsLinked != 2 || len(st.eventSets) != 2 {
		t.Errorf("sets linked = %d / rows %d, want 2 each", result.SetsLinked, len(st.eventSets))
	}
	// Each persisted event queues the unmatched set and the unmatched card.
	if result.MissingSets != 2 || len(st.missingSets) != 2 {
		t.Errorf("missing sets = %d / rows %d, want 2 each", result.MissingSets, len(st.missingSets))
	}
	// P-044 is global: two rows would mean the shared candidate leaked per
	// event. One row, two event links.
	if len(st.missingCards) != 1 {
		t.Errorf("missing card rows = %d, want 1", len(st.missingCards))
	}
	if len(st.cardLinks) != 2 {
		t.Errorf("missing card links = %d, want 2", len(st.cardLinks))
	}
}

func TestScrapeEventsRerunIsIdempotent(t *testing.T) {
	srv, _ := newScrapeSite(t)
	st := testCatalogStore()
	s := NewScraper(st, "")
	opts := scrapeOptsFor(srv)

	if _, err := s.ScrapeEvents(context.Background(), opts); err != nil {
		t.Fatalf("first run: %v", err)
	}
	events, setLinks, missSets, missCards, cardLinks :=
		len(st.events), len(st.eventSets), len(st.missingSets), len(st.missingCards), len(st.cardLinks)

	if _, err := s.ScrapeEvents(context.Background(), opts); err != nil {
		t.Fatalf("second run: %v", err)
	}

	if len(st.events) != events || len(st.eventSets) != setLinks ||
		len(st.missingSets) != missSets || len(st.missingCards) != missCards ||
		len(st.cardLinks) != cardLinks {
		t.Errorf("re-run changed row counts: events %d->%d, set links %d->%d, missing sets %d->%d, missing cards %d->%d, card links %d->%d",
			events, len(st.events), setLinks, len(st.eventSets), missSets, len(st.missingSets),
			missCards, len(st.missingCards), cardLinks, len(st.cardLinks))
	}
}

func TestScrapeEventsDryRunSkipsPersistence(t *testing.T) {
	srv, _ := newScrapeSite(t)
	st := testCatalogStore()
	s := NewScraper(st, "")

	opts := scrapeOptsFor(srv)
	opts.DryRun = true

	result, err := s.ScrapeEvents(context.Background(), opts)
	if err != nil {
		t.Fatalf("ScrapeEvents: %v", err)
	}
	if !result.DryRun {
		t.Error("result not flagged as dry run")
	}
	if result.SetsLinked != 2 || result.MissingSets != 2 {
		t.Errorf("dry run still reports matches: linked=%d missing=%d", result.SetsLinked, result.MissingSets)
	}
	if len(st.events) != 0 || len(st.eventSets) != 0 || len(st.missingSets) != 0 {
		t.Errorf("dry run wrote rows: events=%d links=%d missing=%d",
			len(st.events), len(st.eventSets), len(st.missingSets))
	}
}

func TestScrapeEventsMaxEventsCap(t *testing.T) {
	srv, _ := newScrapeSite(t)
	s := NewScraper(testCatalogStore(), "")

	opts := scrapeOptsFor(srv)
	opts.MaxEvents = 1

	result, err := s.ScrapeEvents(context.Background(), opts)
	if err != nil {
		t.Fatalf("ScrapeEvents: %v", err)
	}
	if len(result.Events) != 1 {
		t.Errorf("events walked = %d, want 1", len(result.Events))
	}
}

func TestScrapeEventsRejectsOverlappingRun(t *testing.T) {
	s := NewScraper(testCatalogStore(), "")
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	_, err := s.ScrapeEvents(context.Background(), ScrapeOptions{IncludeCurrent: true})
	if !errors.Is(err, ErrScrapeRunning) {
		t.Errorf("err = %v, want ErrScrapeRunning", err)
	}
}

func TestScrapeSingleEvent(t *testing.T) {
	srv, _ := newScrapeSite(t)
	st := testCatalogStore()
	s := NewScraper(st, "")

	ev, detail, err := s.ScrapeSingleEvent(context.Background(), srv.URL+"/b/events/1", ScrapeOptions{})
	if err != nil {
		t.Fatalf("ScrapeSingleEvent: %v", err)
	}
	if ev.Stage != StagePersisted {
		t.Errorf("stage = %q, want %q (error: %s)", ev.Stage, StagePersisted, ev.Error)
	}
	if detail == nil || detail.Title != "Treasure Cup Tokyo" {
		t.Errorf("detail = %+v", detail)
	}
	if len(st.events) != 1 {
		t.Errorf("persisted events = %d, want 1", len(st.events))
	}
}

func TestResolveSources(t *testing.T) {
	tests := []struct {
		name string
		opts ScrapeOptions
		want []string
	}{
		{"default is current only", ScrapeOptions{}, []string{"jp-current", "en-current", "fr-current", "cn-current"}},
		{"language filter", ScrapeOptions{Languages: []string{"jp"}, IncludeCurrent: true, IncludePast: true}, []string{"jp-current", "jp-past"}},
		{"past only", ScrapeOptions{IncludePast: true}, []string{"jp-past", "en-past"}},
	}

	s := NewScraper(testCatalogStore(), "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, src := range s.resolveSources(tt.opts) {
				got = append(got, src.Name)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("sources = %v, want %v", got, tt.want)
			}
		})
	}
}
