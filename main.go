package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/Ananth-NQI/truckpe-crew/database"
	"github.com/Ananth-NQI/truckpe-crew/internal/config"
	"github.com/Ananth-NQI/truckpe-crew/internal/events"
	"github.com/Ananth-NQI/truckpe-crew/internal/handlers"
	"github.com/Ananth-NQI/truckpe-crew/internal/jobs"
	"github.com/Ananth-NQI/truckpe-crew/internal/middleware"
	"github.com/Ananth-NQI/truckpe-crew/internal/routes"
	"github.com/Ananth-NQI/truckpe-crew/internal/services"
	"github.com/Ananth-NQI/truckpe-crew/internal/storage"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize storage
	var store storage.Store
	if cfg.UseMemoryStore {
		log.Println("⚠️  Using in-memory storage (not for production!)")
		store = storage.NewMemoryStore()
	} else {
		log.Printf("📦 Connecting to %s...", cfg.StorageType())
		db, err := database.Connect(cfg)
		if err != nil {
			log.Fatal(err)
		}

		log.Println("🔄 Running database migrations...")
		if err := storage.AutoMigrate(db); err != nil {
			log.Fatal("Failed to migrate database:", err)
		}
		log.Println("✅ Database migrations completed!")

		store = storage.NewDatabaseStore(db)
	}

	// WhatsApp delivery
	var sender services.WhatsAppSender = services.LogSender{}
	if cfg.TwilioConfigured() {
		twilioService, err := services.NewTwilioService(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppFrom)
		if err != nil {
			log.Fatal("Failed to initialize Twilio service:", err)
		}
		sender = twilioService
		log.Println("✅ Twilio service initialized")
	}
	templateService := services.NewTemplateService(sender)

	notificationJob := jobs.NewNotificationJob(templateService, cfg.NotificationWorkers, cfg.NotificationQueueSize)
	notificationJob.Start()

	// Scheduling core
	acceptance, err := services.AcceptancePolicyFor(cfg.Policy.BidAcceptance)
	if err != nil {
		log.Fatal(err)
	}
	bus := events.NewBus()
	sessions := services.NewWorkSessionManager(store, bus, cfg.Policy, services.SystemClock)
	trips := services.NewTripLifecycle(store, bus, services.SystemClock)
	assignments := services.NewAssignmentService(store, sessions, services.DirectoryLicenseChecker{}, acceptance,
		bus, cfg.Policy, services.SystemClock)
	services.Wire(bus, sessions, assignments, trips)

	notifier := services.NewAssignmentNotifier(store, notificationJob)
	bus.Subscribe(notifier.Handle, services.NotifierEvents...)

	var rabbit *events.RabbitPublisher
	if cfg.RabbitMQURL != "" {
		rabbit, err = events.ConnectRabbit(cfg.RabbitMQURL, cfg.RabbitMQExchange)
		if err != nil {
			log.Printf("❌ Event export disabled: %v", err)
		} else {
			bus.SubscribeAll(rabbit.Handle)
		}
	}

	log.Printf("✅ Scheduling core ready (window %.0fh, cap %.0fh, bids: %s)",
		cfg.Policy.EligibilityWindowHours, cfg.Policy.MaxDrivingHoursInWindow, acceptance.Name())

	// Create fiber app
	app := routes.NewApp("TruckPe Crew v" + version)

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(middleware.ContextTimeout(cfg.StorageTimeout))

	health := handlers.NewHealthHandler(version, store, notificationJob)
	health.Environment = cfg.Environment
	health.StorageType = cfg.StorageType()
	health.WhatsAppConfigured = cfg.TwilioConfigured()
	health.EventExport = rabbit != nil

	routes.SetupRoutes(app, routes.Handlers{
		Health:      health,
		Sessions:    handlers.NewSessionHandler(sessions),
		Trips:       handlers.NewTripHandler(trips),
		Assignments: handlers.NewAssignmentHandler(assignments),
	}, cfg.JWTSecret)

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("\n🛑 Gracefully shutting down...")
		log.Println("⏹️  Shutting down server...")
		_ = app.Shutdown()
		log.Println("⏹️  Stopping notification jobs...")
		notificationJob.Stop()
		if rabbit != nil {
			_ = rabbit.Close()
		}
	}()

	// Start server
	log.Println("========================================")
	log.Printf("🚀 TruckPe Crew starting on port %s", cfg.Port)
	log.Printf("📊 Storage: %s", cfg.StorageType())
	log.Printf("🌍 Environment: %s", cfg.Environment)
	log.Printf("📱 WhatsApp: %s", whatsAppStatus(cfg))
	log.Printf("📨 Event export: %v", rabbit != nil)
	log.Println("========================================")

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal(err)
	}
}

func whatsAppStatus(cfg *config.Config) string {
	if !cfg.TwilioConfigured() {
		return "Not configured (logging only)"
	}
	return "Configured"
}
