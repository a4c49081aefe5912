package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/Luigii1506/ohara-catalog/internal/metrics"
	"github.com/Luigii1506/ohara-catalog/internal/models"
)

// Scoring weights. An exact card-code match dominates everything else;
// set/group agreement and edition markers only separate products that share
// the code (or break near-ties when no code is printed in the listing name).
const (
	scoreCodeMatch    = 100
	scoreGroupMatch   = 30
	scoreEditionMatch = 10

	// minAcceptScore is the floor below which no best match is returned: a
	// candidate matching only edition markers never wins.
	minAcceptScore = 40

	productSearchLimit = 50
	productCategoryID  = 68 // marketplace category for this card game
)

// ProductCandidate is one scored marketplace listing.
type ProductCandidate struct {
	Product        MarketProduct `json:"product"`
	Score          int           `json:"score"`
	CodeMatched    bool          `json:"code_matched"`
	GroupMatched   bool          `json:"group_matched"`
	EditionMatched bool          `json:"edition_matched"`
}

// ProductMatchResult is the outcome of one match attempt: the best candidate
// (nil when nothing clears the acceptance floor) plus the full ranked list so
// a reviewer can override.
type ProductMatchResult struct {
	BestMatch  *ProductCandidate  `json:"best_match"`
	Candidates []ProductCandidate `json:"candidates"`
	PriceUSD   float64            `json:"price_usd,omitempty"`
}

// ProductMatcher finds the marketplace product for a catalog card.
type ProductMatcher struct {
	api MarketplaceAPI
}

func NewProductMatcher(api MarketplaceAPI) *ProductMatcher {
	return &ProductMatcher{api: api}
}

// FindBestProductMatch searches the marketplace for the card's name and
// scores every result against the card's code, set, and edition markers.
// Ties break toward the most recently listed product.
func (m *ProductMatcher) FindBestProductMatch(ctx context.Context, card *models.Card) (*ProductMatchResult, error) {
	if card == nil || card.Name == "" {
		return nil, fmt.Errorf("card with a name is required")
	}

	products, err := m.api.SearchProductsByName(ctx, card.Name, productCategoryID, productSearchLimit, 0)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}

	result := &ProductMatchResult{Candidates: make([]ProductCandidate, 0, len(products))}
	for _, p := range products {
		result.Candidates = append(result.Candidates, scoreProduct(card, p))
	}

	sort.SliceStable(result.Candidates, func(i, j int) bool {
		a, b := result.Candidates[i], result.Candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Product.ModifiedOn.After(b.Product.ModifiedOn)
	})

	if len(result.Candidates) > 0 && result.Candidates[0].Score >= minAcceptScore {
		best := result.Candidates[0]
		result.BestMatch = &best
		metrics.MarketplaceMatchesTotal.WithLabelValues("matched").Inc()

		if pricing, err := m.api.GetProductPricing(ctx, []string{best.Product.ProductID}); err != nil {
			log.Printf("[Marketplace] pricing lookup failed for %s: %v", best.Product.ProductID, err)
		} else {
			for _, entry := range pricing {
				if entry.ProductID == best.Product.ProductID && entry.MarketPrice > 0 {
					result.PriceUSD = entry.MarketPrice
					break
				}
			}
		}
	} else {
		metrics.MarketplaceMatchesTotal.WithLabelValues("unmatched").Inc()
	}

	return result, nil
}

// scoreProduct scores one listing against the card's attributes.
func scoreProduct(card *models.Card, p MarketProduct) ProductCandidate {
	cand := ProductCandidate{Product: p}
	name := strings.ToUpper(p.Name)

	code := strings.ToUpper(strings.TrimSpace(card.Code))
	if code != "" && containsCode(name, code) {
		cand.CodeMatched = true
		cand.Score += scoreCodeMatch
	}

	if setAgreement(card, p) {
		cand.GroupMatched = true
		cand.Score += scoreGroupMatch
	}

	if editionAgreement(card, name) {
		cand.EditionMatched = true
		cand.Score += scoreEditionMatch
	}

	return cand
}

// containsCode requires the code to appear as its own token so OP01-001 does
// not match OP01-0010.
func containsCode(name, code string) bool {
	idx := strings.Index(name, code)
	for idx >= 0 {
		before := idx == 0 || !isCodeChar(name[idx-1])
		afterIdx := idx + len(code)
		after := afterIdx >= len(name) || !isCodeChar(name[afterIdx])
		if before && after {
			return true
		}
		next := strings.Index(name[idx+1:], code)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}

func isCodeChar(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'A' && b <= 'Z' || b == '-'
}

// setAgreement compares the product's group against the card's set by id
// first, then by normalized name similarity.
func setAgreement(card *models.Card, p MarketProduct) bool {
	if card.MarketGroupID != "" && card.MarketGroupID == p.GroupID {
		return true
	}
	if card.SetName == "" || p.GroupName == "" {
		return false
	}
	return Similarity(card.SetName, p.GroupName) >= matchThreshold
}

// editionMarkers are the variant qualifiers marketplace listings carry in the
// product name.
var editionMarkers = []string{"1ST EDITION", "FIRST EDITION", "ALTERNATE ART", "PARALLEL", "MANGA ART"}

func editionAgreement(card *models.Card, upperName string) bool {
	hasMarker := false
	for _, marker := range editionMarkers {
		if strings.Contains(upperName, marker) {
			hasMarker = true
			break
		}
	}
	if card.FirstEdition {
		return strings.Contains(upperName, "1ST EDITION") || strings.Contains(upperName, "FIRST EDITION")
	}
	// A base-printing card should not map onto a variant listing.
	return !hasMarker
}
