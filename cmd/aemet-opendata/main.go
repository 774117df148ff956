package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/apalacios/aemet-opendata/internal/aemet"
	httpapi "github.com/apalacios/aemet-opendata/internal/api/http"
	"github.com/apalacios/aemet-opendata/internal/catalog"
	"github.com/apalacios/aemet-opendata/internal/config"
	"github.com/apalacios/aemet-opendata/internal/scheduler"
	"github.com/apalacios/aemet-opendata/internal/store"
	"github.com/apalacios/aemet-opendata/internal/weather"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Shared HTTP client for outbound API calls. The OpenData API can take
	// a long while on the master-data endpoints.
	httpClient := &http.Client{
		Timeout: 2 * time.Minute,
	}

	// In-memory snapshot store with configured retention.
	memStore := store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge)

	// Upstream client with resilience (backoff + circuit breaker).
	client := aemet.NewClient(httpClient, cfg.AemetAPIKey)

	// Core service orchestrating resolution, fetching and normalization.
	service := weather.NewService(client, catalog.NewIndex(), memStore, weather.Options{
		StationData: cfg.StationData,
		Climatology: cfg.Climatology,
	})

	// Initial catalog load. Without it no query can resolve.
	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 5*time.Minute)
	if _, err := service.LoadCatalog(loadCtx); err != nil {
		cancelLoad()
		log.Fatalf("failed to load catalog: %v", err)
	}
	cancelLoad()

	// Scheduler for catalog refresh and snapshot prefetch.
	sched := scheduler.New(cfg.Queries, cfg.FetchInterval, cfg.CatalogRefresh, service)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "aemet-opendata",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		towns, stations := service.Counts()
		return c.JSON(fiber.Map{
			"status":   "ok",
			"service":  "aemet-opendata",
			"towns":    towns,
			"stations": stations,
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, service)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
