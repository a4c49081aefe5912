package api

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Luigii1506/ohara-catalog/internal/api/handlers"
	"github.com/Luigii1506/ohara-catalog/internal/metrics"
	"github.com/Luigii1506/ohara-catalog/internal/services"
	"github.com/Luigii1506/ohara-catalog/internal/store"
)

func SetupRouter(st store.EventStore, scraper *services.Scraper, productMatcher *services.ProductMatcher, market *services.MarketplaceClient) *gin.Engine {
	router := gin.Default()

	// CORS configuration - allow origins from environment or use defaults
	config := cors.DefaultConfig()
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		config.AllowOrigins = strings.Split(corsOrigins, ",")
	} else {
		config.AllowOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	config.AllowCredentials = false
	router.Use(cors.New(config))

	router.Use(requestMetrics())

	runBudget := 10 * time.Minute
	if ms := os.Getenv("SCRAPE_RUN_BUDGET_MS"); ms != "" {
		if parsed, err := strconv.Atoi(ms); err == nil && parsed > 0 {
			runBudget = time.Duration(parsed) * time.Millisecond
		}
	}

	scrapeHandler := handlers.NewScrapeHandler(scraper, runBudget)
	missingHandler := handlers.NewMissingHandler(st)
	marketplaceHandler := handlers.NewMarketplaceHandler(productMatcher, market, st)

	api := router.Group("/api")
	{
		admin := api.Group("/admin")
		{
			admin.POST("/scrape", scrapeHandler.RunScrape)
			admin.POST("/scrape/event", scrapeHandler.RunScrapeEvent)
			admin.GET("/scrape/status", scrapeHandler.GetStatus)

			admin.GET("/missing-sets", missingHandler.ListMissingSets)
			admin.PUT("/missing-sets/:id", missingHandler.UpdateMissingSet)
			admin.POST("/missing-sets/:id/resolve", missingHandler.ResolveMissingSet)

			admin.GET("/missing-cards", missingHandler.ListMissingCards)
			admin.POST("/missing-cards/:id/approve", missingHandler.ApproveMissingCard)
			admin.DELETE("/missing-cards/:id", missingHandler.RejectMissingCard)

			admin.POST("/cleanup-orphans", missingHandler.CleanupOrphans)

			admin.POST("/cards/:id/map-product", marketplaceHandler.MapCardProduct)
			admin.GET("/marketplace/quota", marketplaceHandler.GetQuota)
		}
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
