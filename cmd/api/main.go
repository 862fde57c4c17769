package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/casaflow-io/casaflowgo/internal/ai"
	"github.com/casaflow-io/casaflowgo/internal/config"
	"github.com/casaflow-io/casaflowgo/internal/database"
	"github.com/casaflow-io/casaflowgo/internal/extraction"
	"github.com/casaflow-io/casaflowgo/internal/handlers"
	"github.com/casaflow-io/casaflowgo/internal/models"
	"github.com/casaflow-io/casaflowgo/internal/offers"
	"github.com/casaflow-io/casaflowgo/internal/pipeline"
	"github.com/casaflow-io/casaflowgo/internal/raster"
	"github.com/casaflow-io/casaflowgo/internal/services/esign"
	"github.com/casaflow-io/casaflowgo/internal/services/notify"
	"github.com/casaflow-io/casaflowgo/internal/services/standardizer"
	"github.com/casaflow-io/casaflowgo/internal/services/storage"
	"github.com/casaflow-io/casaflowgo/internal/vision"
	ws "github.com/casaflow-io/casaflowgo/internal/websocket"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Initialize database (detects embedded vs external automatically)
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	// Note: db.Close() is called manually in the shutdown handler below

	// 3. Synchronize schema
	log.Println("🚀 Synchronizing database schema...")
	err = db.AutoMigrate(
		&models.UserAuth{},
		&models.Document{},
		&models.DocumentAnalysis{},
		&models.Offer{},
	)
	if err != nil {
		log.Printf("⚠️ Migration warning: %v", err)
	} else {
		log.Println("✅ Schema synchronized successfully")
	}

	ctx := context.Background()

	// 4. Object store
	store, err := storage.New(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize object storage: %v", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		log.Fatalf("Failed to ensure storage bucket: %v", err)
	}

	// 5. Vision model (optional; without credentials the pipeline runs
	// AcroForm-only and skips visual validation)
	var gemini *ai.GeminiClient
	if cfg.Gemini.APIKey != "" {
		gemini, err = ai.NewGeminiClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			log.Printf("⚠️ Gemini unavailable, continuing without vision: %v", err)
		} else {
			defer gemini.Close()
		}
	} else {
		log.Println("⚠️ GEMINI_API_KEY not set, vision capabilities disabled")
	}

	// 6. Extraction chain
	var visionTier extraction.Tier
	switch cfg.Extraction.VisionProvider {
	case "standardizer":
		if cfg.Extraction.StandardizerURL != "" {
			visionTier = standardizer.NewClient(cfg.Extraction.StandardizerURL, cfg.Extraction.StandardizerKey, cfg.Extraction.SchemaName)
			log.Println("📡 Vision tier: standardizer service")
		}
	default:
		if gemini != nil {
			visionTier = extraction.NewVisionTier(gemini)
			log.Println("🤖 Vision tier: Gemini")
		}
	}
	orchestrator := extraction.NewOrchestrator(extraction.NewAcroFormTier(), visionTier, cfg.Extraction.AcceptThreshold)

	// 7. Rasterizer and visual validator
	engine := raster.NewEngine(cfg.Raster.Command)
	var validator *vision.Validator
	if gemini != nil {
		validator = vision.NewValidator(gemini, vision.DefaultAnchorPages, cfg.Extraction.VisionConcurrency)
	}
	rasterOpts := raster.Options{MaxPages: cfg.Raster.MaxPages, DPI: cfg.Raster.DPI}

	// 8. Signing, notifications, websocket hub
	esignClient := esign.NewClient(cfg.ESign)
	hub := ws.NewHub()
	go hub.Run()

	// 9. Offer state machine and intelligence pipeline
	offerSvc := offers.NewService(
		offers.NewGormStore(db),
		esignClient,
		store,
		notify.NewLogNotifier(),
		hub,
		offers.Config{
			DefaultExpiry:    time.Duration(cfg.Offers.DefaultExpiryHours) * time.Hour,
			SellerName:       os.Getenv("SELLER_NAME"),
			SellerEmail:      os.Getenv("SELLER_EMAIL"),
			DashboardBaseURL: os.Getenv("DASHBOARD_BASE_URL"),
		},
	)
	analyzer := pipeline.New(db, store, orchestrator, engine, validator, rasterOpts)

	// 10. HTTP router
	router := handlers.NewRouter(db, cfg, analyzer, offerSvc, esignClient, store, hub)

	// 11. Expiry sweep worker
	sweepDone := make(chan struct{})
	go func() {
		interval := time.Duration(cfg.Offers.SweepInterval) * time.Minute
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sweepCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
				n, err := offerSvc.ExpireSweep(sweepCtx)
				cancel()
				if err != nil {
					log.Printf("⚠️ Expiry sweep failed: %v", err)
				} else if n > 0 {
					log.Printf("⏰ Expiry sweep retired %d offer(s)", n)
				}
			case <-sweepDone:
				return
			}
		}
	}()

	// 12. Start server with graceful shutdown
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		log.Printf("🚀 Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	sig := <-shutdown
	log.Printf("⚠️ Received signal: %v. Shutting down gracefully...", sig)

	close(sweepDone)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("🛑 Closing database connection...")
	if err := db.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
