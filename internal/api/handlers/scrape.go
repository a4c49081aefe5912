package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Luigii1506/ohara-catalog/internal/services"
)

// defaultRunBudget caps a scrape run's wall clock; past it the run is assumed
// stuck and the request surfaces an execution timeout.
const defaultRunBudget = 10 * time.Minute

type ScrapeHandler struct {
	scraper   *services.Scraper
	runBudget time.Duration
}

func NewScrapeHandler(scraper *services.Scraper, runBudget time.Duration) *ScrapeHandler {
	if runBudget <= 0 {
		runBudget = defaultRunBudget
	}
	return &ScrapeHandler{scraper: scraper, runBudget: runBudget}
}

// RunScrape triggers a full scrape run with the posted options.
func (h *ScrapeHandler) RunScrape(c *gin.Context) {
	var opts services.ScrapeOptions
	if err := c.ShouldBindJSON(&opts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid options: " + err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.runBudget)
	defer cancel()

	result, err := h.scraper.ScrapeEvents(ctx, opts)
	if errors.Is(err, services.ErrScrapeRunning) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "scrape run exceeded execution budget"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// ScrapeEventRequest targets a single event detail page.
type ScrapeEventRequest struct {
	URL     string                 `json:"url" binding:"required"`
	Options services.ScrapeOptions `json:"options"`
}

// RunScrapeEvent runs the pipeline for one event URL.
func (h *ScrapeHandler) RunScrapeEvent(c *gin.Context) {
	var req ScrapeEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()

	summary, detail, err := h.scraper.ScrapeSingleEvent(ctx, req.URL, req.Options)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"summary": summary,
		"detail":  detail,
	})
}

// GetStatus reports whether a run is executing.
func (h *ScrapeHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"running": h.scraper.IsRunning(),
	})
}
