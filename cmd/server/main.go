package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bindery/internal/config"
	"bindery/internal/database"
	"bindery/internal/handlers"
	"bindery/internal/jobs"
	"bindery/internal/logging"
	"bindery/internal/services"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Bindery Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, Environment: %s)", cfg.Port, cfg.Environment)

	// Primary structured store
	var mongoDB *database.MongoDB
	if cfg.MongoURI != "" {
		log.Println("🔗 Connecting to MongoDB...")
		db, err := database.NewMongoDB(cfg.MongoURI)
		if err != nil {
			log.Printf("⚠️ Failed to connect to MongoDB: %v", err)
		} else {
			mongoDB = db
			defer mongoDB.Close(context.Background())

			initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := mongoDB.Initialize(initCtx); err != nil {
				log.Printf("⚠️ Failed to initialize MongoDB indexes: %v", err)
			}
			cancel()
		}
	}

	// Development-only local fallback store
	var localStore *database.LocalStore
	if mongoDB == nil && cfg.LocalStorePath != "" && !cfg.IsProduction() {
		store, err := database.NewLocalStore(cfg.LocalStorePath)
		if err != nil {
			log.Printf("⚠️ Failed to open local store: %v", err)
		} else {
			localStore = store
			defer localStore.Close()
		}
	}

	gateway := services.SelectGateway(cfg, mongoDB, localStore)

	// Archive source registry (labels passage origins)
	sources, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		log.Printf("⚠️ Archive source registry unavailable: %v", err)
	}

	metrics := services.InitMetrics()

	// Curation engine and registries
	engine := services.NewHarvestService(gateway, metrics, cfg.DedupThreshold)
	if err := engine.WarmStart(context.Background()); err != nil {
		log.Printf("⚠️ Failed to load buckets from store: %v", err)
	}
	arcService := services.NewArcService(gateway)
	linkService := services.NewLinkService(gateway)

	// Retention sweep for terminal buckets
	scheduler, err := jobs.NewScheduler()
	if err != nil {
		log.Fatalf("❌ Failed to create job scheduler: %v", err)
	}
	retention := jobs.NewBucketRetentionJob(engine, cfg.RetentionWindow())
	if err := scheduler.Register("bucket_retention", cfg.RetentionCron, retention); err != nil {
		log.Fatalf("❌ Failed to register retention job: %v", err)
	}
	scheduler.Start()

	app := fiber.New(fiber.Config{
		AppName:      "Bindery v1.0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		BodyLimit:    5 * 1024 * 1024, // Passages are text; 5MB is generous
	})

	app.Use(recover.New())
	app.Use(logger.New())

	prometheus := fiberprometheus.New("bindery")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	app.Get("/health", func(c *fiber.Ctx) error {
		backend := "none"
		if gateway.PrimaryAvailable() {
			backend = "primary"
		} else if gateway.FallbackAllowed() {
			backend = "local"
		}
		status := fiber.StatusOK
		if backend == "none" {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status":  "ok",
			"backend": backend,
			"writes":  gateway.WritesEnabled(),
		})
	})

	api := app.Group("/api")
	handlers.NewHarvestHandler(engine, sources).Register(api)
	handlers.NewArcHandler(arcService, linkService).Register(api)

	// Graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("🛑 Shutting down...")

		if err := scheduler.Stop(); err != nil {
			log.Printf("⚠️ Error stopping scheduler: %v", err)
		}
		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
