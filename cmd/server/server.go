package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Abraxas-365/chatflow/pkg/config"
	"github.com/Abraxas-365/chatflow/pkg/database"
	"github.com/Abraxas-365/craftable/errx/errxfiber"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

const healthTimeout = 2 * time.Second

var startTime = time.Now()

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogger(cfg)

	log.Println("🚀 Starting Chatflow API...")
	log.Printf("📍 Environment: %s", cfg.Server.Environment)

	log.Printf("🔌 Connecting to %s...", cfg.Database.Driver)
	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.CloseDB(db)
	log.Println("✅ Connected to database")

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		log.Println("🔌 Connecting to Redis...")
		redisClient, err = database.NewRedisClient(cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer database.CloseRedis(redisClient)
		log.Println("✅ Connected to Redis")
	}

	log.Println("📦 Initializing dependency container...")
	container, err := NewContainer(cfg, db, redisClient)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer container.Cleanup()

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	container.Start(workerCtx)

	health := container.HealthCheck()
	log.Printf("🏥 Health check: %v", health)

	app := fiber.New(fiber.Config{
		AppName:      "Chatflow API",
		ServerHeader: "Chatflow",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorHandler: errxfiber.FiberErrorHandler(),
	})

	setupMiddleware(app, cfg)

	log.Println("🛣️  Setting up routes...")
	setupRoutes(app, container)
	log.Println("✅ Routes configured")

	log.Printf("📋 Registered services: %v", container.GetServiceNames())

	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		log.Printf("🚀 Server listening on %s", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("⏸️  Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("❌ Error during server shutdown: %v", err)
	}

	log.Println("👋 Server stopped gracefully")
}

func setupLogger(cfg *config.Config) {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if cfg.Server.Environment == "production" {
		log.SetFlags(log.LstdFlags)
	}
}

func setupMiddleware(app *fiber.App, cfg *config.Config) {
	app.Use(requestid.New())

	if cfg.Server.Environment != "test" {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${method} ${path} - ${latency}\n",
		}))
	}

	app.Use(recover.New())

	// The flow editor is served from any origin; bearer tokens, not cookies,
	// carry auth.
	app.Use(cors.New(cors.Config{
		AllowOrigins: getCorsOrigins(),
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
}

func setupRoutes(app *fiber.App, c *Container) {
	app.Get("/health", healthCheckHandler(c))

	// =================================================================
	// FLOW ROUTES
	// =================================================================
	var protect fiber.Handler
	if c.AuthMiddleware != nil {
		protect = c.AuthMiddleware.Authenticate()
	}
	c.FlowRoutes.RegisterRoutes(app, protect)
	log.Println("  ✓ Flow and webhook routes registered")

	// =================================================================
	// FLOW EDITOR
	// =================================================================
	if dir := c.Config.Server.FrontendDir; dir != "" {
		app.Static("/", dir, fiber.Static{Index: "index.html"})
		log.Printf("  ✓ Serving flow editor from %s", dir)
	} else {
		app.Get("/", func(ctx *fiber.Ctx) error {
			return ctx.JSON(fiber.Map{
				"message":  "Chatflow API",
				"status":   "running",
				"uptime":   time.Since(startTime).String(),
				"services": c.GetServiceNames(),
			})
		})
	}

	// =================================================================
	// 404 HANDLER
	// =================================================================
	app.Use(func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Route not found",
			"path":  ctx.Path(),
		})
	})
}

func healthCheckHandler(c *Container) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		health := c.HealthCheck()

		allHealthy := true
		for _, healthy := range health {
			if !healthy {
				allHealthy = false
				break
			}
		}

		status := "healthy"
		statusCode := fiber.StatusOK
		if !allHealthy {
			status = "degraded"
			statusCode = fiber.StatusServiceUnavailable
		}

		return ctx.Status(statusCode).JSON(fiber.Map{
			"status":    status,
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
			"services":  health,
		})
	}
}

// getCorsOrigins allows an override via CORS_ALLOWED_ORIGINS (comma separated)
func getCorsOrigins() string {
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		return origins
	}
	return "*"
}
