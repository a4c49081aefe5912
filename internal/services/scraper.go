package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Luigii1506/ohara-catalog/internal/metrics"
	"github.com/Luigii1506/ohara-catalog/internal/models"
	"github.com/Luigii1506/ohara-catalog/internal/store"
)

// Pipeline stages, recorded per event in the run summary.
const (
	StageDiscovered   = "discovered"
	StageDetail       = "detail-fetched"
	StageExtracted    = "extracted"
	StageMatched      = "matched"
	StageDeduplicated = "deduplicated"
	StagePersisted    = "persisted"
	StageFailed       = "failed"
)

const defaultScrapeDelay = 1500 * time.Millisecond

// ErrScrapeRunning reports an overlapping trigger; only one run executes at a
// time.
var ErrScrapeRunning = errors.New("a scrape run is already in progress")

// EventListSource is one listing page to walk.
type EventListSource struct {
	Name   string        `json:"name"`
	URL    string        `json:"url"`
	Locale string        `json:"locale"`
	Region models.Region `json:"region"`
	Past   bool          `json:"past"`
}

// defaultSources lists the official event pages per locale, current and past.
var defaultSources = []EventListSource{
	{Name: "jp-current", URL: "https://www.onepiece-cardgame.com/events/", Locale: "jp", Region: models.RegionJapan},
	{Name: "jp-past", URL: "https://www.onepiece-cardgame.com/events/past/", Locale: "jp", Region: models.RegionJapan, Past: true},
	{Name: "en-current", URL: "https://en.onepiece-cardgame.com/events/", Locale: "en", Region: models.RegionWest},
	{Name: "en-past", URL: "https://en.onepiece-cardgame.com/events/past/", Locale: "en", Region: models.RegionWest, Past: true},
	{Name: "fr-current", URL: "https://fr.onepiece-cardgame.com/events/", Locale: "fr", Region: models.RegionEU},
	{Name: "cn-current", URL: "https://www.onepiece-cardgame.cn/events/", Locale: "cn", Region: models.RegionChina},
}

// ScrapeOptions configure one run of the discovery pipeline.
type ScrapeOptions struct {
	// Sources overrides the default per-locale listing pages.
	Sources []EventListSource `json:"sources,omitempty"`
	// Languages filters the default sources when Sources is empty.
	Languages      []string   `json:"languages,omitempty"`
	IncludeCurrent bool       `json:"include_current"`
	IncludePast    bool       `json:"include_past"`
	PerSourceLimit int        `json:"per_source_limit"`
	MaxEvents      int        `json:"max_events"`
	RenderMode     RenderMode `json:"render_mode"`
	RenderWaitMs   int        `json:"render_wait_ms"`
	DelayMs        int        `json:"delay_ms"`
	DryRun         bool       `json:"dry_run"`
}

// EventRunSummary records how far one event got through the pipeline.
type EventRunSummary struct {
	URL          string `json:"url"`
	Title        string `json:"title,omitempty"`
	Stage        string `json:"stage"`
	MatchedSets  int    `json:"matched_sets"`
	MissingSets  int    `json:"missing_sets"`
	MissingCards int    `json:"missing_cards"`
	Error        string `json:"error,omitempty"`
}

// ScrapeRunResult is the structured summary of a full run.
type ScrapeRunResult struct {
	Success         bool              `json:"success"`
	DryRun          bool              `json:"dry_run"`
	EventsProcessed int               `json:"events_processed"`
	SetsLinked      int               `json:"sets_linked"`
	CardsLinked     int               `json:"cards_linked"`
	MissingSets     int               `json:"missing_sets"`
	MissingCards    int               `json:"missing_cards"`
	Errors          []string          `json:"errors"`
	Events          []EventRunSummary `json:"events"`
	Duration        time.Duration     `json:"duration"`
}

// Scraper drives the full discovery pipeline: list pages, detail pages,
// extraction, matching, dedup, persistence. Events are processed strictly
// sequentially with an inter-request delay so the source sites never see a
// request burst.
type Scraper struct {
	store        store.EventStore
	chromeRemote string

	mu      sync.Mutex
	running bool
}

func NewScraper(st store.EventStore, chromeRemoteURL string) *Scraper {
	return &Scraper{store: st, chromeRemote: chromeRemoteURL}
}

// IsRunning reports whether a scrape run is in progress.
func (s *Scraper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// ScrapeEvents runs the pipeline across the configured sources. Per-event
// failures are recorded in the result's error list and never abort the run;
// the overall wall-clock budget is the caller's context deadline.
func (s *Scraper) ScrapeEvents(ctx context.Context, opts ScrapeOptions) (*ScrapeRunResult, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrScrapeRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	start := time.Now()
	result := &ScrapeRunResult{
		DryRun: opts.DryRun,
		Errors: []string{},
		Events: []EventRunSummary{},
	}

	sources := s.resolveSources(opts)
	if len(sources) == 0 {
		return nil, fmt.Errorf("no event sources selected")
	}

	fetcher := fetcherFor(opts.RenderMode, s.chromeRemote, time.Duration(opts.RenderWaitMs)*time.Millisecond)
	extractor := NewExtractor(fetcher)

	catalogSets, err := s.store.AllSets(ctx)
	if err != nil {
		return nil, fmt.Errorf("load set catalog: %w", err)
	}
	catalogCards, err := s.store.AllCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("load card catalog: %w", err)
	}
	matcher := NewSetMatcher(catalogSets)

	delay := defaultScrapeDelay
	if opts.DelayMs > 0 {
		delay = time.Duration(opts.DelayMs) * time.Millisecond
	}
	limiter := rate.NewLimiter(rate.Every(delay), 1)

	log.Printf("Scraper: starting run across %d sources (dry_run=%v)", len(sources), opts.DryRun)

	total := 0
	for _, src := range sources {
		if opts.MaxEvents > 0 && total >= opts.MaxEvents {
			break
		}
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, "run cancelled: "+err.Error())
			break
		}

		summaries, err := extractor.ScrapeEventList(ctx, src.URL)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: list fetch failed: %v", src.URL, err))
			metrics.ScrapeEventErrors.WithLabelValues(StageDiscovered).Inc()
			continue
		}
		log.Printf("Scraper: source %s listed %d events", src.Name, len(summaries))

		if opts.PerSourceLimit > 0 && len(summaries) > opts.PerSourceLimit {
			summaries = summaries[:opts.PerSourceLimit]
		}

		for i := range summaries {
			if opts.MaxEvents > 0 && total >= opts.MaxEvents {
				break
			}
			if err := limiter.Wait(ctx); err != nil {
				result.Errors = append(result.Errors, "run cancelled: "+err.Error())
				break
			}

			summary, _ := s.processEvent(ctx, extractor, matcher, catalogCards, src, &summaries[i], opts.DryRun, result)
			result.Events = append(result.Events, summary)
			total++

			if summary.Stage == StageFailed {
				metrics.ScrapeEventErrors.WithLabelValues(StageFailed).Inc()
			} else {
				result.EventsProcessed++
				metrics.ScrapeEventsProcessed.Inc()
			}
		}
	}

	result.Duration = time.Since(start)
	result.Success = len(result.Errors) == 0
	metrics.ScrapeRunsTotal.WithLabelValues("completed").Inc()
	metrics.ScrapeRunDuration.Observe(result.Duration.Seconds())

	log.Printf("Scraper: run finished in %v - %d events, %d sets linked, %d missing sets, %d missing cards, %d errors",
		result.Duration, result.EventsProcessed, result.SetsLinked, result.MissingSets, result.MissingCards, len(result.Errors))

	return result, nil
}

// processEvent runs one event through detail fetch, extraction, matching,
// dedup, and persistence. A failure at any stage is recorded and the run
// moves on.
func (s *Scraper) processEvent(ctx context.Context, extractor *Extractor, matcher *SetMatcher,
	catalogCards []models.Card, src EventListSource, summary *EventSummary, dryRun bool,
	result *ScrapeRunResult) (EventRunSummary, *EventDetail) {

	ev := EventRunSummary{URL: summary.URL, Title: summary.Title, Stage: StageDiscovered}

	detail, err := extractor.ScrapeEventDetail(ctx, summary.URL, DetailOptions{
		Locale:  src.Locale,
		Region:  src.Region,
		Summary: summary,
	})
	if err != nil {
		ev.Stage = StageFailed
		// Distinct reason strings let operators tell "site down" from
		// "site changed markup".
		reason := "fetch failed"
		if errors.Is(err, ErrParse) {
			reason = "parse failed"
		}
		ev.Error = fmt.Sprintf("%s: %v", reason, err)
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", summary.URL, ev.Error))
		return ev, nil
	}
	ev.Stage = StageDetail
	ev.Title = detail.Title

	ev.Stage = StageExtracted

	setMatches := matcher.FindMatchingSets(detail.Sets)
	cardMatches := MatchCards(detail.Cards, catalogCards)
	ev.Stage = StageMatched
	ev.MatchedSets = len(setMatches.Matches)
	for _, m := range setMatches.Matches {
		if m.LowConfidence {
			metrics.MatcherLowConfidenceTotal.Inc()
			log.Printf("Scraper: low-confidence set match %q -> %q (score %.2f) at %s",
				m.Candidate.Title, m.Set.Title, m.Score, summary.URL)
		}
	}

	missingSets := DedupeMissingSets(setMatches.Unmatched)
	missingCards := DedupeCardCandidates(cardMatches.Unmatched)
	ev.Stage = StageDeduplicated
	ev.MissingSets = len(missingSets)
	ev.MissingCards = len(missingCards)

	result.SetsLinked += len(setMatches.Matches)
	result.CardsLinked += len(cardMatches.Matches)
	result.MissingSets += len(missingSets)
	result.MissingCards += len(missingCards)

	if dryRun {
		return ev, detail
	}

	err = s.store.Transaction(ctx, func(tx store.EventStore) error {
		event, err := tx.UpsertEvent(ctx, &models.Event{
			Title:     detail.Title,
			Locale:    detail.Locale,
			Region:    detail.Region,
			SourceURL: detail.SourceURL,
			StartDate: detail.StartDate,
			Location:  detail.Location,
			ImageURL:  detail.ImageURL,
			SortOrder: summary.Position,
		})
		if err != nil {
			return fmt.Errorf("upsert event: %w", err)
		}

		for _, m := range setMatches.Matches {
			if err := tx.LinkEventSet(ctx, event.ID, m.Set.ID); err != nil {
				return fmt.Errorf("link set %s: %w", m.Set.ID, err)
			}
		}
		for _, m := range cardMatches.Matches {
			if _, err := tx.LinkEventCard(ctx, event.ID, m.Card.ID); err != nil {
				return fmt.Errorf("link card %s: %w", m.Card.ID, err)
			}
		}
		for _, cand := range missingSets {
			if _, err := tx.UpsertMissingSet(ctx, event.ID, cand.Title, cand.TranslatedTitle,
				cand.VersionSignature, cand.Images); err != nil {
				return fmt.Errorf("upsert missing set %q: %w", cand.Title, err)
			}
		}
		for _, cand := range missingCards {
			mc, err := tx.UpsertMissingCard(ctx, cand.Code, cand.Title, cand.Image, imageListFor(cand))
			if err != nil {
				return fmt.Errorf("upsert missing card %s: %w", cand.Code, err)
			}
			if err := tx.LinkEventMissingCard(ctx, event.ID, mc.ID); err != nil {
				return fmt.Errorf("link missing card %s: %w", cand.Code, err)
			}
		}
		return nil
	})
	if err != nil {
		ev.Stage = StageFailed
		ev.Error = "persist failed: " + err.Error()
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", summary.URL, ev.Error))
		return ev, detail
	}

	metrics.ScrapeSetsLinked.Add(float64(len(setMatches.Matches)))
	metrics.ScrapeMissingSetsQueued.Add(float64(len(missingSets)))
	metrics.ScrapeMissingCardsQueued.Add(float64(len(missingCards)))

	ev.Stage = StagePersisted
	return ev, detail
}

// ScrapeSingleEvent runs the pipeline for one event URL, outside any listing
// walk. Used by the admin detail endpoint.
func (s *Scraper) ScrapeSingleEvent(ctx context.Context, pageURL string, opts ScrapeOptions) (*EventRunSummary, *EventDetail, error) {
	fetcher := fetcherFor(opts.RenderMode, s.chromeRemote, time.Duration(opts.RenderWaitMs)*time.Millisecond)
	extractor := NewExtractor(fetcher)

	catalogSets, err := s.store.AllSets(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load set catalog: %w", err)
	}
	catalogCards, err := s.store.AllCards(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load card catalog: %w", err)
	}

	locale := "en"
	region := models.RegionWest
	if len(opts.Languages) > 0 {
		locale = opts.Languages[0]
		region = regionForLocale(locale)
	}

	result := &ScrapeRunResult{Errors: []string{}, DryRun: opts.DryRun}
	summary := EventSummary{URL: pageURL}
	ev, detail := s.processEvent(ctx, extractor, NewSetMatcher(catalogSets), catalogCards,
		EventListSource{Locale: locale, Region: region}, &summary, opts.DryRun, result)
	return &ev, detail, nil
}

func (s *Scraper) resolveSources(opts ScrapeOptions) []EventListSource {
	if len(opts.Sources) > 0 {
		return opts.Sources
	}

	includeCurrent := opts.IncludeCurrent
	includePast := opts.IncludePast
	if !includeCurrent && !includePast {
		includeCurrent = true
	}

	langs := make(map[string]bool, len(opts.Languages))
	for _, l := range opts.Languages {
		langs[strings.ToLower(l)] = true
	}

	var out []EventListSource
	for _, src := range defaultSources {
		if len(langs) > 0 && !langs[src.Locale] {
			continue
		}
		if src.Past && !includePast {
			continue
		}
		if !src.Past && !includeCurrent {
			continue
		}
		out = append(out, src)
	}
	return out
}

func regionForLocale(locale string) models.Region {
	switch strings.ToLower(locale) {
	case "jp", "ja":
		return models.RegionJapan
	case "cn", "zh":
		return models.RegionChina
	case "fr":
		return models.RegionEU
	default:
		return models.RegionWest
	}
}

func imageListFor(cand CardCandidate) []string {
	if cand.Image == "" {
		return nil
	}
	return []string{cand.Image}
}
