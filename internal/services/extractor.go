package services

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Luigii1506/ohara-catalog/internal/models"
)

// EventSummary holds the fields available on a listing page before the detail
// page is fetched. The extractor merges them into the detail when the detail
// page is sparser than the listing.
type EventSummary struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	ImageURL string `json:"image_url"`
	DateText string `json:"date_text"`
	Location string `json:"location"`
	Position int    `json:"position"`
}

// EventDetail is the typed projection of one event page. Raw scraped data
// never flows past this boundary.
type EventDetail struct {
	Title     string          `json:"title"`
	StartDate *time.Time      `json:"start_date"`
	Location  string          `json:"location"`
	ImageURL  string          `json:"image_url"`
	Locale    string          `json:"locale"`
	Region    models.Region   `json:"region"`
	SourceURL string          `json:"source_url"`
	Sets      []SetCandidate  `json:"sets"`
	Cards     []CardCandidate `json:"cards"`
}

// DetailOptions configure a single detail-page scrape.
type DetailOptions struct {
	Locale  string        `json:"locale"`
	Region  models.Region `json:"region"`
	Summary *EventSummary `json:"summary,omitempty"`
}

// Extractor parses event listing and detail pages into typed candidates.
type Extractor struct {
	fetcher PageFetcher
}

func NewExtractor(fetcher PageFetcher) *Extractor {
	return &Extractor{fetcher: fetcher}
}

// cardCodeRe matches printed card identifiers: OP01-001, ST05-012, EB01-006,
// P-044.
var cardCodeRe = regexp.MustCompile(`\b([A-Z]{1,4}\d{0,2}-\d{3})\b`)

// versionSignatureRe picks up printing qualifiers that distinguish same-title
// sets: "Ver.2", "2nd Anniversary ver.", bracketed variants.
var versionSignatureRe = regexp.MustCompile(`(?i)\b(ver\.?\s*\d+|v\d+|reprint|2nd|1st)\b`)

// ScrapeEventList fetches a listing page and extracts event summaries in page
// order. An empty page yields an empty slice, not an error.
func (e *Extractor) ScrapeEventList(ctx context.Context, listURL string) ([]EventSummary, error) {
	html, err := e.fetcher.FetchHTML(ctx, listURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	var summaries []EventSummary
	doc.Find(".event-list .event-item, ul.eventList > li, article.event, .eventsPage a.event-card").
		Each(func(i int, sel *goquery.Selection) {
			summary := EventSummary{Position: i}

			link := sel
			if !sel.Is("a") {
				link = sel.Find("a").First()
			}
			if href, ok := link.Attr("href"); ok {
				summary.URL = resolveURL(listURL, href)
			}

			summary.Title = firstText(sel, "h2", "h3", ".event-title", ".title")
			if summary.Title == "" {
				summary.Title = strings.TrimSpace(link.Text())
			}
			summary.DateText = firstText(sel, ".event-date", ".date", "time")
			summary.Location = firstText(sel, ".event-location", ".location", ".venue")
			if img := sel.Find("img").First(); img.Length() > 0 {
				summary.ImageURL = resolveURL(listURL, imageSrc(img))
			}

			if summary.Title != "" && summary.URL != "" {
				summaries = append(summaries, summary)
			}
		})

	return summaries, nil
}

// ScrapeEventDetail fetches one event page and extracts its metadata plus the
// set and card references it lists. Missing sections come back as empty
// slices; an unreachable or unrecognizable page is an ErrFetch/ErrParse the
// orchestrator records as a recoverable per-event error.
func (e *Extractor) ScrapeEventDetail(ctx context.Context, pageURL string, opts DetailOptions) (*EventDetail, error) {
	html, err := e.fetcher.FetchHTML(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	detail := &EventDetail{
		Locale:    opts.Locale,
		Region:    opts.Region,
		SourceURL: pageURL,
		Sets:      []SetCandidate{},
		Cards:     []CardCandidate{},
	}

	detail.Title = firstText(doc.Selection, "h1", ".event-title", "article h2")
	if detail.Title == "" {
		if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
			detail.Title = strings.TrimSpace(og)
		}
	}

	dateText := firstText(doc.Selection, ".event-date", ".date", "time")
	if dateText == "" {
		dateText = labeledValue(doc, "日時", "開催日", "Date", "日期", "Fecha")
	}
	detail.Location = firstText(doc.Selection, ".event-location", ".location", ".venue")
	if detail.Location == "" {
		detail.Location = labeledValue(doc, "会場", "Location", "Lieu", "地点")
	}
	if img := doc.Find(".event-hero img, article img").First(); img.Length() > 0 {
		detail.ImageURL = resolveURL(pageURL, imageSrc(img))
	}

	// Merge listing-page fields in when the detail page is sparser.
	if s := opts.Summary; s != nil {
		if detail.Title == "" {
			detail.Title = s.Title
		}
		if dateText == "" {
			dateText = s.DateText
		}
		if detail.Location == "" {
			detail.Location = s.Location
		}
		if detail.ImageURL == "" {
			detail.ImageURL = s.ImageURL
		}
	}

	if detail.Title == "" {
		return nil, fmt.Errorf("%w: no event title found at %s", ErrParse, pageURL)
	}

	if t, ok := parseEventDate(dateText, opts.Locale); ok {
		detail.StartDate = &t
	}

	detail.Sets = e.extractSets(doc, pageURL, opts.Locale)
	detail.Cards = e.extractCards(doc, pageURL)

	return detail, nil
}

// extractSets scans the document for set references: named image blocks or
// links whose visible text is a set title.
func (e *Extractor) extractSets(doc *goquery.Document, pageURL, locale string) []SetCandidate {
	candidates := []SetCandidate{}

	collect := func(title string, sel *goquery.Selection) {
		title = strings.TrimSpace(title)
		if title == "" {
			return
		}
		cand := SetCandidate{Title: title, Images: []string{}}
		sel.Find("img").Each(func(_ int, img *goquery.Selection) {
			if src := resolveURL(pageURL, imageSrc(img)); src != "" {
				cand.Images = append(cand.Images, src)
			}
		})
		if sig := versionSignatureRe.FindString(title); sig != "" {
			cand.VersionSignature = strings.TrimSpace(sig)
		}
		if translated, ok := NormalizeTitle(title, locale); ok {
			cand.TranslatedTitle = translated
		}
		candidates = append(candidates, cand)
	}

	doc.Find(".set-list .set-item, ul.setList > li, .prize-set, section.sets li").
		Each(func(_ int, sel *goquery.Selection) {
			title := firstText(sel, ".set-title", ".title", "figcaption", "h3", "h4")
			if title == "" {
				title = strings.TrimSpace(sel.Find("a").First().Text())
			}
			if title == "" {
				title = strings.TrimSpace(sel.Text())
			}
			collect(title, sel)
		})

	// Figure blocks with a caption are the other common rendering.
	doc.Find("figure").Each(func(_ int, sel *goquery.Selection) {
		caption := strings.TrimSpace(sel.Find("figcaption").Text())
		if caption == "" || cardCodeRe.MatchString(caption) {
			return
		}
		collect(caption, sel)
	})

	return candidates
}

// extractCards scans "included cards" listings for card codes with their
// titles and images.
func (e *Extractor) extractCards(doc *goquery.Document, pageURL string) []CardCandidate {
	candidates := []CardCandidate{}

	doc.Find(".card-list .card-item, ul.cardList > li, section.cards li, figure").
		Each(func(_ int, sel *goquery.Selection) {
			text := strings.TrimSpace(sel.Text())
			code := cardCodeRe.FindString(text)
			if code == "" {
				return
			}

			title := firstText(sel, ".card-title", ".title", "figcaption", "h4")
			if title == "" {
				title = text
			}
			// The visible text usually renders "OP01-001 Roronoa Zoro"; strip
			// the code and separators out of the title.
			title = strings.TrimSpace(cardCodeRe.ReplaceAllString(title, ""))
			title = strings.Trim(title, " -–:|")

			cand := CardCandidate{Code: code, Title: title}
			if img := sel.Find("img").First(); img.Length() > 0 {
				cand.Image = resolveURL(pageURL, imageSrc(img))
			}
			candidates = append(candidates, cand)
		})

	return candidates
}

// firstText returns the first non-empty trimmed text among the selectors.
func firstText(sel *goquery.Selection, selectors ...string) string {
	for _, s := range selectors {
		if text := strings.TrimSpace(sel.Find(s).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// labeledValue reads dt/dd and th/td definition pairs whose label matches one
// of the given names.
func labeledValue(doc *goquery.Document, labels ...string) string {
	var value string
	doc.Find("dt, th").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := strings.TrimSpace(sel.Text())
		for _, label := range labels {
			if strings.Contains(text, label) {
				value = strings.TrimSpace(sel.Next().Text())
				return false
			}
		}
		return true
	})
	return value
}

// imageSrc prefers the lazy-load attribute over src, which on hydrated pages
// often holds a placeholder.
func imageSrc(img *goquery.Selection) string {
	if src, ok := img.Attr("data-src"); ok && src != "" {
		return src
	}
	src, _ := img.Attr("src")
	return src
}

func resolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return b.ResolveReference(r).String()
}

var (
	kanjiDateRe   = regexp.MustCompile(`(\d{4})年\s*(\d{1,2})月\s*(\d{1,2})日`)
	isoDateRe     = regexp.MustCompile(`(\d{4})[-/](\d{1,2})[-/](\d{1,2})`)
	dayFirstRe    = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`)
	monthNameRe   = regexp.MustCompile(`([A-Z][a-z]+)\.?\s+(\d{1,2}),?\s+(\d{4})`)
	englishMonths = map[string]time.Month{
		"jan": time.January, "feb": time.February, "mar": time.March,
		"apr": time.April, "may": time.May, "jun": time.June,
		"jul": time.July, "aug": time.August, "sep": time.September,
		"oct": time.October, "nov": time.November, "dec": time.December,
	}
)

// parseEventDate extracts a date from free-form text, tolerating the formats
// each locale's sources actually use. ok is false when no date is found.
func parseEventDate(text, locale string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}

	// Japanese and Chinese sources both write 2024年5月3日.
	if m := kanjiDateRe.FindStringSubmatch(text); m != nil {
		return makeDate(m[1], m[2], m[3])
	}

	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		return makeDate(m[1], m[2], m[3])
	}

	// French sources write day-first numeric dates.
	if strings.HasPrefix(strings.ToLower(locale), "fr") {
		if m := dayFirstRe.FindStringSubmatch(text); m != nil {
			return makeDate(m[3], m[2], m[1])
		}
	}

	if m := monthNameRe.FindStringSubmatch(text); m != nil && len(m[1]) >= 3 {
		if month, ok := englishMonths[strings.ToLower(m[1][:3])]; ok {
			year, _ := strconv.Atoi(m[3])
			day, _ := strconv.Atoi(m[2])
			return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
		}
	}

	return time.Time{}, false
}

func makeDate(y, m, d string) (time.Time, bool) {
	year, err1 := strconv.Atoi(y)
	month, err2 := strconv.Atoi(m)
	day, err3 := strconv.Atoi(d)
	if err1 != nil || err2 != nil || err3 != nil || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}
