package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"catalog-import-service/internal/config"
	"catalog-import-service/internal/importer"
	"catalog-import-service/internal/queue"
	"catalog-import-service/internal/repository"
	"catalog-import-service/internal/webhooks"
)

const (
	retrySweepInterval = 1 * time.Minute
	// Retries this far past due are assumed lost from the delayed queue
	// and re-enqueued. Delivery is at-least-once.
	retrySweepGrace = 2 * time.Minute
	retrySweepLimit = 100
)

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
		log.Fatal("Failed to parse Redis URL:", err)
	}
	redisClient := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	cancel()
	log.Println("✓ Redis connected successfully")

	// Initialize repositories
	productsRepo := repository.NewProductsRepository(db)
	importsRepo := repository.NewImportsRepository(db)
	webhooksRepo := repository.NewWebhooksRepository(db)

	// Initialize task queue, dispatcher and services
	tasks := queue.New(redisClient, logger)
	dispatcher := webhooks.NewDispatcher(webhooksRepo, tasks, logger, cfg.WebhookMaxRetries)
	importService := importer.New(importsRepo, productsRepo, dispatcher, logger, cfg.BatchSize, cfg.MaxErrorSamples)
	deliverer := webhooks.NewDeliverer(webhooksRepo, &http.Client{Timeout: cfg.WebhookTimeout}, logger, cfg.WebhookRetryDelays)

	worker := queue.NewWorker(tasks, logger)

	worker.Handle(queue.TaskImportProcess, func(ctx context.Context, payload json.RawMessage) error {
		var task queue.ImportTask
		if err := json.Unmarshal(payload, &task); err != nil {
			logger.WithError(err).Error("Discarding malformed import task")
			return nil
		}
		return importService.Run(ctx, task.JobID, task.FilePath)
	})

	worker.Handle(queue.TaskWebhookDeliver, func(ctx context.Context, payload json.RawMessage) error {
		var task queue.WebhookDeliveryTask
		if err := json.Unmarshal(payload, &task); err != nil {
			logger.WithError(err).Error("Discarding malformed delivery task")
			return nil
		}
		deliveryID, err := uuid.Parse(task.DeliveryID)
		if err != nil {
			logger.WithError(err).Error("Discarding delivery task with invalid ID")
			return nil
		}
		result, err := deliverer.Deliver(ctx, deliveryID)
		if err != nil {
			return err
		}
		if result.Outcome == webhooks.OutcomeRetryScheduled {
			return tasks.EnqueueIn(ctx, queue.TaskWebhookDeliver, task, result.RetryIn)
		}
		return nil
	})

	worker.Handle(queue.TaskProductsDeleteAll, func(ctx context.Context, payload json.RawMessage) error {
		var task queue.DeleteAllTask
		if err := json.Unmarshal(payload, &task); err != nil {
			logger.WithError(err).Error("Discarding malformed delete-all task")
			return nil
		}
		batchSize := task.BatchSize
		if batchSize <= 0 {
			batchSize = cfg.DeleteBatchSize
		}
		deleted, err := productsRepo.DeleteAllProducts(batchSize)
		if err != nil {
			return err
		}
		logger.WithField("deleted", deleted).Warn("Deleted all products")
		return nil
	})

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sweepLostRetries(runCtx, webhooksRepo, tasks, logger)

	log.Println("Catalog import worker starting")
	if err := worker.Run(runCtx); err != nil && runCtx.Err() == nil {
		log.Fatal("Worker stopped:", err)
	}

	log.Println("Shutting down catalog-import-worker...")
	if err := redisClient.Close(); err != nil {
		log.Printf("Error closing Redis client: %v", err)
	}
	log.Println("Catalog import worker stopped")
}

// sweepLostRetries re-enqueues pending deliveries whose retry time passed
// long enough ago that their delayed-queue entry must have been lost.
func sweepLostRetries(ctx context.Context, repo *repository.WebhooksRepository, tasks *queue.Queue, logger *logrus.Logger) {
	ticker := time.NewTicker(retrySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due, err := repo.GetDueRetries(time.Now().Add(-retrySweepGrace), retrySweepLimit)
			if err != nil {
				logger.WithError(err).Error("Failed to sweep overdue deliveries")
				continue
			}
			for _, delivery := range due {
				task := queue.WebhookDeliveryTask{DeliveryID: delivery.ID.String()}
				if err := tasks.Enqueue(ctx, queue.TaskWebhookDeliver, task); err != nil {
					logger.WithError(err).Error("Failed to re-enqueue overdue delivery")
					continue
				}
				logger.WithField("delivery_id", delivery.ID).Info("Re-enqueued overdue webhook delivery")
			}
		}
	}
}
