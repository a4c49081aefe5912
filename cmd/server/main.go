package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Luigii1506/ohara-catalog/internal/api"
	"github.com/Luigii1506/ohara-catalog/internal/database"
	"github.com/Luigii1506/ohara-catalog/internal/services"
	"github.com/Luigii1506/ohara-catalog/internal/store"
)

func main() {
	// Database path
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "./ohara_catalog.db"
	}

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// The store is constructed once and passed by reference into everything
	// that persists; services never reach for a database handle themselves.
	eventStore := store.NewGormStore(db)

	// Scraper for the event discovery pipeline
	scraper := services.NewScraper(eventStore, os.Getenv("CHROME_REMOTE_URL"))

	// Marketplace client for product mapping
	marketplaceAPIKey := os.Getenv("MARKETPLACE_API_KEY")
	marketplaceDailyLimit := 500
	if limitStr := os.Getenv("MARKETPLACE_DAILY_LIMIT"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			marketplaceDailyLimit = limit
		}
	}
	market := services.NewMarketplaceClient(marketplaceAPIKey, os.Getenv("MARKETPLACE_BASE_URL"), marketplaceDailyLimit)
	productMatcher := services.NewProductMatcher(market)

	// Optionally run a scrape on startup (if enabled)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if os.Getenv("SCRAPE_ON_STARTUP") == "true" {
		go func() {
			// Wait a bit for the server to be ready
			time.Sleep(5 * time.Second)
			log.Println("Starting event scrape on startup...")
			runCtx, runCancel := context.WithTimeout(ctx, 10*time.Minute)
			defer runCancel()
			result, err := scraper.ScrapeEvents(runCtx, services.ScrapeOptions{})
			if err != nil {
				log.Printf("Startup scrape failed: %v", err)
			} else {
				log.Printf("Startup scrape completed: %d events processed, %d errors",
					result.EventsProcessed, len(result.Errors))
			}
		}()
	}

	// Setup router
	router := api.SetupRouter(eventStore, scraper, productMatcher, market)

	// Get port from environment
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Create HTTP server for graceful shutdown
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on port %s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	cancel()

	// Give outstanding requests a deadline to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
