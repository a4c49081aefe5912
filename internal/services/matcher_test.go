package services

import (
	"fmt"
	"testing"

	"github.com/Luigii1506/ohara-catalog/internal/models"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want float64
	}{
		{"identical", "Romance Dawn", "Romance Dawn", 1.0},
		{"case and punctuation", "ROMANCE DAWN!", "romance dawn", 1.0},
		{"whitespace runs", "Romance  Dawn", "Romance Dawn", 1.0},
		{"empty", "", "Romance Dawn", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Similarity(tt.a, tt.b); got != tt.want {
				t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSimilarityContainment(t *testing.T) {
	got := Similarity("Romance Dawn", "Booster Pack Romance Dawn")
	if got < containmentFloor {
		t.Errorf("containment score %v below floor %v", got, containmentFloor)
	}
	if got >= 1.0 {
		t.Errorf("containment score %v should not equal exact match", got)
	}
}

func TestSimilarityTokenOverlap(t *testing.T) {
	// Word-order-independent comparison.
	got := Similarity("Dawn Romance Pack", "Pack Romance Dawn")
	if got != 1.0 && got < matchThreshold {
		t.Errorf("reordered tokens scored %v, want >= %v", got, matchThreshold)
	}

	if got := Similarity("Romance Dawn", "Kingdoms of Intrigue"); got >= matchThreshold {
		t.Errorf("disjoint titles scored %v, want < %v", got, matchThreshold)
	}
}

func testCatalog() []models.Set {
	return []models.Set{
		{ID: "set-op01", Title: "Romance Dawn"},
		{ID: "set-op02", Title: "Paramount War"},
		{ID: "set-op03", Title: "Pillars of Strength"},
		{ID: "set-st01", Title: "Straw Hat Crew Starter Deck"},
	}
}

func TestFindMatchingSetsExact(t *testing.T) {
	matcher := NewSetMatcher(testCatalog())

	result := matcher.FindMatchingSets([]SetCandidate{
		{Title: "ROMANCE DAWN", Images: []string{"https://img/op01.png"}},
	})

	if len(result.Matches) != 1 {
		t.Fatalf("Matches = %d, want 1 (unmatched: %v)", len(result.Matches), result.Unmatched)
	}
	if result.Matches[0].Set.ID != "set-op01" {
		t.Errorf("matched %s, want set-op01", result.Matches[0].Set.ID)
	}
	if result.Matches[0].Score != 1.0 {
		t.Errorf("exact match score = %v, want 1.0", result.Matches[0].Score)
	}
	if len(result.Unmatched) != 0 {
		t.Errorf("Unmatched = %d, want 0", len(result.Unmatched))
	}
}

func TestFindMatchingSetsNoOverlap(t *testing.T) {
	matcher := NewSetMatcher(testCatalog())

	candidate := SetCandidate{
		Title:  "全く関係ないタイトル",
		Images: []string{"https://img/unknown-1.png", "https://img/unknown-2.png"},
	}
	result := matcher.FindMatchingSets([]SetCandidate{candidate})

	if len(result.Matches) != 0 {
		t.Fatalf("Matches = %d, want 0", len(result.Matches))
	}
	if len(result.Unmatched) != 1 {
		t.Fatalf("Unmatched = %d, want 1", len(result.Unmatched))
	}
	got := result.Unmatched[0]
	if got.Title != candidate.Title {
		t.Errorf("unmatched title = %q, want original %q", got.Title, candidate.Title)
	}
	if len(got.Images) != 2 || got.Images[0] != candidate.Images[0] {
		t.Errorf("unmatched images mutated: %v", got.Images)
	}
}

func TestFindMatchingSetsUsesTranslatedTitle(t *testing.T) {
	matcher := NewSetMatcher(testCatalog())

	result := matcher.FindMatchingSets([]SetCandidate{
		{Title: "ロマンスドーン", TranslatedTitle: "Romance Dawn"},
	})

	if len(result.Matches) != 1 || result.Matches[0].Set.ID != "set-op01" {
		t.Fatalf("translated title did not match: %+v", result)
	}
}

func TestFindMatchingSetsTieBreakPrefersCloserLength(t *testing.T) {
	catalog := []models.Set{
		{ID: "generic", Title: "Booster Pack"},
		{ID: "specific", Title: "Booster Pack Romance Dawn"},
	}
	matcher := NewSetMatcher(catalog)

	result := matcher.FindMatchingSets([]SetCandidate{
		{Title: "Booster Pack Romance Dawn"},
	})

	if len(result.Matches) != 1 {
		t.Fatalf("Matches = %d, want 1", len(result.Matches))
	}
	if result.Matches[0].Set.ID != "specific" {
		t.Errorf("tie-break chose %s, want the set with closest title length", result.Matches[0].Set.ID)
	}
}

func TestFindMatchingSetsLowConfidenceFlag(t *testing.T) {
	catalog := []models.Set{
		{ID: "a", Title: "Treasure Cup Osaka Final"},
		{ID: "b", Title: "Treasure Cup Tokyo Final"},
	}
	matcher := NewSetMatcher(catalog)

	result := matcher.FindMatchingSets([]SetCandidate{
		{Title: "Treasure Cup Final"},
	})

	if len(result.Matches) != 1 {
		t.Fatalf("Matches = %d, want 1", len(result.Matches))
	}
	if !result.Matches[0].LowConfidence {
		t.Error("expected a low-confidence flag when the runner-up scores within the margin")
	}
	if result.Matches[0].Set.ID != "a" {
		t.Errorf("deterministic tie-break chose %s, want a", result.Matches[0].Set.ID)
	}
}

func TestFindMatchingSetsLargeCatalogReorderedTitle(t *testing.T) {
	// Past the prefilter threshold the narrowed scan must still reach a
	// catalog title that is a token reordering of the candidate.
	catalog := make([]models.Set, 0, fuzzyPrefilterMin+11)
	for i := 0; i < fuzzyPrefilterMin+10; i++ {
		catalog = append(catalog, models.Set{
			ID:    fmt.Sprintf("filler-%03d", i),
			Title: fmt.Sprintf("Kingdoms of Intrigue %03d", i),
		})
	}
	catalog = append(catalog, models.Set{ID: "set-op01", Title: "Booster Pack Romance Dawn"})
	matcher := NewSetMatcher(catalog)

	result := matcher.FindMatchingSets([]SetCandidate{
		{Title: "Romance Dawn Booster Pack"},
	})

	if len(result.Matches) != 1 {
		t.Fatalf("Matches = %d, want 1 (unmatched: %v)", len(result.Matches), result.Unmatched)
	}
	if result.Matches[0].Set.ID != "set-op01" {
		t.Errorf("matched %s, want set-op01", result.Matches[0].Set.ID)
	}
	if result.Matches[0].Score != 1.0 {
		t.Errorf("reordered token score = %v, want 1.0", result.Matches[0].Score)
	}
}

func TestMatchCards(t *testing.T) {
	catalog := []models.Card{
		{ID: "card-1", Code: "OP01-001", Name: "Roronoa Zoro"},
		{ID: "card-2", Code: "OP01-002", Name: "Monkey D. Luffy"},
	}

	result := MatchCards([]CardCandidate{
		{Code: "op01-001", Title: "Roronoa Zoro"},
		{Code: "OP99-001", Title: "Unknown"},
		{Code: "", Title: "No Code"},
	}, catalog)

	if len(result.Matches) != 1 {
		t.Fatalf("Matches = %d, want 1", len(result.Matches))
	}
	if result.Matches[0].Card.ID != "card-1" {
		t.Errorf("matched %s, want card-1", result.Matches[0].Card.ID)
	}
	if len(result.Unmatched) != 2 {
		t.Errorf("Unmatched = %d, want 2", len(result.Unmatched))
	}
}
