package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"catalog-import-service/internal/config"
	"catalog-import-service/internal/handlers"
	"catalog-import-service/internal/middleware"
	"catalog-import-service/internal/queue"
	"catalog-import-service/internal/repository"
	"catalog-import-service/internal/webhooks"
)

// @title Catalog Import API
// @version 1.0.0
// @description Bulk product import service with CSV streaming, batch upserts, and webhook notifications

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.bearer BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the auth token.

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Environment == "production" {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Initialize Redis client
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Printf("WARNING: Failed to parse Redis URL: %v (falling back to localhost)", err)
		redisOpts = &redis.Options{
			Addr: "localhost:6379",
		}
	}
	redisClient := redis.NewClient(redisOpts)

	// Test Redis connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("WARNING: Failed to connect to Redis: %v (background tasks will not run)", err)
	} else {
		log.Println("✓ Redis connected successfully")
	}
	cancel()

	// Initialize repositories
	productsRepo := repository.NewProductsRepository(db)
	importsRepo := repository.NewImportsRepository(db)
	webhooksRepo := repository.NewWebhooksRepository(db)

	// Initialize task queue and webhook dispatcher
	tasks := queue.New(redisClient, logger)
	dispatcher := webhooks.NewDispatcher(webhooksRepo, tasks, logger, cfg.WebhookMaxRetries)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db, redisClient)
	importsHandler := handlers.NewImportsHandler(importsRepo, tasks, cfg, logger)
	productsHandler := handlers.NewProductsHandler(productsRepo, dispatcher, tasks, cfg, logger)
	webhooksHandler := handlers.NewWebhooksHandler(webhooksRepo, &http.Client{Timeout: cfg.WebhookTimeout}, logger)

	// Initialize Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())

	// Health check endpoints (no auth required)
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)

	auth := middleware.TokenAuth(cfg.AuthToken)

	api := router.Group("/api")
	{
		imports := api.Group("/imports")
		{
			imports.POST("", auth, importsHandler.CreateImport)
			imports.GET("", importsHandler.ListImports)
			imports.GET("/template", importsHandler.GetImportTemplate)
			// Status polling stays public so upload clients can track
			// progress without carrying credentials.
			imports.GET("/:jobId/status", importsHandler.GetImportStatus)
		}

		products := api.Group("/products")
		{
			products.GET("", productsHandler.GetProducts)
			products.GET("/:id", productsHandler.GetProduct)
			products.POST("", auth, productsHandler.CreateProduct)
			products.PUT("/:id", auth, productsHandler.UpdateProduct)
			products.DELETE("/:id", auth, productsHandler.DeleteProduct)
			products.POST("/delete_all", auth, productsHandler.DeleteAllProducts)
		}

		hooks := api.Group("/webhooks")
		{
			hooks.GET("", webhooksHandler.GetWebhooks)
			hooks.GET("/:id", webhooksHandler.GetWebhook)
			hooks.GET("/:id/logs", webhooksHandler.GetWebhookLogs)
			hooks.POST("", auth, webhooksHandler.CreateWebhook)
			hooks.PUT("/:id", auth, webhooksHandler.UpdateWebhook)
			hooks.DELETE("/:id", auth, webhooksHandler.DeleteWebhook)
			hooks.POST("/:id/test", auth, webhooksHandler.TestWebhook)
		}
	}

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Catalog import service starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal
	<-quit
	log.Println("Shutting down catalog-import-service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during server shutdown: %v", err)
	}
	if err := redisClient.Close(); err != nil {
		log.Printf("Error closing Redis client: %v", err)
	}

	log.Println("Catalog import service stopped")
}
