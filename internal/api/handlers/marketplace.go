package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Luigii1506/ohara-catalog/internal/services"
	"github.com/Luigii1506/ohara-catalog/internal/store"
)

// MarketplaceHandler maps catalog cards onto marketplace products.
type MarketplaceHandler struct {
	matcher *services.ProductMatcher
	market  *services.MarketplaceClient
	store   store.EventStore
}

func NewMarketplaceHandler(matcher *services.ProductMatcher, market *services.MarketplaceClient, st store.EventStore) *MarketplaceHandler {
	return &MarketplaceHandler{matcher: matcher, market: market, store: st}
}

type mapProductRequest struct {
	DryRun bool `json:"dry_run"`
}

// MapCardProduct finds the best marketplace product for a card and, outside
// dry-run, stores the external reference on the card.
func (h *MarketplaceHandler) MapCardProduct(c *gin.Context) {
	cardID := c.Param("id")
	if cardID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "card id is required"})
		return
	}

	var req mapProductRequest
	// Body is optional; an empty body means a live mapping.
	_ = c.ShouldBindJSON(&req)

	card, err := h.store.GetCard(c.Request.Context(), cardID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	result, err := h.matcher.FindBestProductMatch(c.Request.Context(), card)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if result.BestMatch != nil && !req.DryRun {
		err = h.store.UpdateCardMarketplaceRef(c.Request.Context(), card.ID,
			result.BestMatch.Product.ProductID, result.BestMatch.Product.GroupID, result.PriceUSD)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"dry_run": req.DryRun,
		"result":  result,
	})
}

// GetQuota reports remaining marketplace API requests for today.
func (h *MarketplaceHandler) GetQuota(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"remaining": h.market.GetRequestsRemaining(),
	})
}
