package services

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/sahilm/fuzzy"

	"github.com/Luigii1506/ohara-catalog/internal/models"
)

const (
	// matchThreshold is the minimum similarity for a candidate to link to a
	// catalog set. Chosen so real containment matches (floor 0.72) always
	// clear it while token-overlap matches need well over half their tokens
	// shared.
	matchThreshold = 0.60

	// containmentFloor keeps a genuine substring containment above the
	// acceptance threshold even when the lengths differ a lot.
	containmentFloor = 0.72

	// ambiguityMargin flags a match as low confidence when the runner-up set
	// scored within this distance of the winner.
	ambiguityMargin = 0.05

	// fuzzyPrefilterMin is the catalog size above which the matcher narrows
	// the scan with a fuzzy prefilter instead of scoring every set.
	fuzzyPrefilterMin = 200
)

// SetCandidate is a set reference extracted from an event page.
type SetCandidate struct {
	Title            string   `json:"title"`
	TranslatedTitle  string   `json:"translated_title,omitempty"`
	VersionSignature string   `json:"version_signature,omitempty"`
	Images           []string `json:"images"`
}

// CardCandidate is a card reference extracted from an event page.
type CardCandidate struct {
	Code  string `json:"code"`
	Title string `json:"title"`
	Image string `json:"image"`
}

// SetMatch links a candidate to the catalog set it matched.
type SetMatch struct {
	Set           models.Set   `json:"set"`
	Candidate     SetCandidate `json:"candidate"`
	Score         float64      `json:"score"`
	LowConfidence bool         `json:"low_confidence"`
}

// SetMatchResult splits candidates into matched and unmatched.
type SetMatchResult struct {
	Matches   []SetMatch     `json:"matches"`
	Unmatched []SetCandidate `json:"unmatched_candidates"`
}

// CardMatch links a candidate to the catalog card with the same code.
type CardMatch struct {
	Card      models.Card   `json:"card"`
	Candidate CardCandidate `json:"candidate"`
}

// CardMatchResult splits card candidates into matched and unmatched.
type CardMatchResult struct {
	Matches   []CardMatch     `json:"matches"`
	Unmatched []CardCandidate `json:"unmatched_candidates"`
}

// normalizeForMatch strips punctuation and case and collapses whitespace so
// title comparison survives the rendering differences between sources.
func normalizeForMatch(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r), unicode.IsPunct(r), unicode.IsSymbol(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Similarity scores two raw titles in [0, 1]. Exact normalized equality is
// 1.0; containment in either direction scores by length ratio with a floor of
// containmentFloor; otherwise the score is the Jaccard overlap of the token
// sets, so word order does not matter. Scores below matchThreshold are
// non-matches.
func Similarity(a, b string) float64 {
	na, nb := normalizeForMatch(a), normalizeForMatch(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}

	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		shorter, longer := len(na), len(nb)
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		ratio := float64(shorter) / float64(longer)
		return math.Max(ratio, containmentFloor)
	}

	return tokenJaccard(na, nb)
}

func tokenJaccard(na, nb string) float64 {
	ta := strings.Fields(na)
	tb := strings.Fields(nb)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(ta))
	for _, t := range ta {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(tb))
	for _, t := range tb {
		setB[t] = struct{}{}
	}
	shared := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			shared++
		}
	}
	union := len(setA) + len(setB) - shared
	return float64(shared) / float64(union)
}

// setSource adapts the catalog to sahilm/fuzzy for prefiltering.
type setSource []string

func (s setSource) String(i int) string { return s[i] }
func (s setSource) Len() int            { return len(s) }

// SetMatcher matches extracted set candidates against the catalog.
type SetMatcher struct {
	catalog    []models.Set
	normalized []string
	tokenIndex map[string][]int
}

// NewSetMatcher snapshots the set catalog for a scrape run. The catalog is
// treated as immutable for the matcher's lifetime.
func NewSetMatcher(catalog []models.Set) *SetMatcher {
	normalized := make([]string, len(catalog))
	tokenIndex := make(map[string][]int)
	for i, s := range catalog {
		normalized[i] = normalizeForMatch(s.Title)
		for _, tok := range strings.Fields(normalized[i]) {
			tokenIndex[tok] = append(tokenIndex[tok], i)
		}
	}
	return &SetMatcher{catalog: catalog, normalized: normalized, tokenIndex: tokenIndex}
}

// FindMatchingSets scores every candidate against the catalog. Candidates
// clearing the threshold land in Matches; the rest are carried forward
// untouched, never dropped. Ties go to the catalog set whose title length is
// closest to the candidate's, which penalizes overly generic partial matches.
func (m *SetMatcher) FindMatchingSets(candidates []SetCandidate) SetMatchResult {
	result := SetMatchResult{
		Matches:   []SetMatch{},
		Unmatched: []SetCandidate{},
	}

	for _, cand := range candidates {
		best, runnerUp := m.bestMatch(cand)
		if best == nil {
			result.Unmatched = append(result.Unmatched, cand)
			continue
		}
		best.Candidate = cand
		best.LowConfidence = runnerUp != nil && best.Score-runnerUp.Score < ambiguityMargin
		result.Matches = append(result.Matches, *best)
	}

	return result
}

// bestMatch returns the top and runner-up catalog matches above threshold,
// or nil when nothing clears it. Both the raw and the translated title are
// tried; the better score wins.
func (m *SetMatcher) bestMatch(cand SetCandidate) (*SetMatch, *SetMatch) {
	titles := []string{cand.Title}
	if cand.TranslatedTitle != "" && cand.TranslatedTitle != cand.Title {
		titles = append(titles, cand.TranslatedTitle)
	}

	type scored struct {
		idx     int
		score   float64
		lenDiff int
	}
	var hits []scored

	for _, idx := range m.candidateIndices(titles) {
		var bestScore float64
		var bestLenDiff int
		for _, title := range titles {
			score := Similarity(title, m.catalog[idx].Title)
			if score > bestScore {
				bestScore = score
				bestLenDiff = absInt(len(normalizeForMatch(title)) - len(m.normalized[idx]))
			}
		}
		if bestScore >= matchThreshold {
			hits = append(hits, scored{idx: idx, score: bestScore, lenDiff: bestLenDiff})
		}
	}

	if len(hits) == 0 {
		return nil, nil
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		if hits[i].lenDiff != hits[j].lenDiff {
			return hits[i].lenDiff < hits[j].lenDiff
		}
		return m.catalog[hits[i].idx].Title < m.catalog[hits[j].idx].Title
	})

	best := &SetMatch{Set: m.catalog[hits[0].idx], Score: hits[0].score}
	if len(hits) == 1 {
		return best, nil
	}
	return best, &SetMatch{Set: m.catalog[hits[1].idx], Score: hits[1].score}
}

// candidateIndices narrows the catalog scan for large catalogs; small
// catalogs are scanned in full. The narrowed set is the union of the fuzzy
// subsequence hits and every catalog set sharing at least one title token, so
// a token reordering of a catalog title is never filtered out before scoring.
func (m *SetMatcher) candidateIndices(titles []string) []int {
	if len(m.catalog) <= fuzzyPrefilterMin {
		all := make([]int, len(m.catalog))
		for i := range all {
			all[i] = i
		}
		return all
	}

	seen := make(map[int]struct{})
	var out []int
	add := func(idx int) {
		if _, ok := seen[idx]; ok {
			return
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}

	for _, title := range titles {
		normalized := normalizeForMatch(title)
		for _, match := range fuzzy.FindFrom(normalized, setSource(m.normalized)) {
			add(match.Index)
		}
		for _, tok := range strings.Fields(normalized) {
			for _, idx := range m.tokenIndex[tok] {
				add(idx)
			}
		}
	}
	sort.Ints(out)
	return out
}

// MatchCards links card candidates to catalog cards by exact code,
// case-insensitive. Card codes are printed identifiers (OP01-001), so fuzzy
// comparison would only invent false links.
func MatchCards(candidates []CardCandidate, catalog []models.Card) CardMatchResult {
	byCode := make(map[string]models.Card, len(catalog))
	for _, c := range catalog {
		byCode[strings.ToUpper(strings.TrimSpace(c.Code))] = c
	}

	result := CardMatchResult{
		Matches:   []CardMatch{},
		Unmatched: []CardCandidate{},
	}
	for _, cand := range candidates {
		code := strings.ToUpper(strings.TrimSpace(cand.Code))
		if card, ok := byCode[code]; ok && code != "" {
			result.Matches = append(result.Matches, CardMatch{Card: card, Candidate: cand})
		} else {
			result.Unmatched = append(result.Unmatched, cand)
		}
	}
	return result
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
