package importer

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"catalog-import-service/internal/csvstream"
	"catalog-import-service/internal/models"
	"catalog-import-service/internal/repository"
)

// JobStore persists import job state and progress checkpoints.
type JobStore interface {
	GetImportByJobID(jobID string) (*models.ImportJob, error)
	SetStatus(jobID string, status models.ImportStatus) error
	UpdateImport(jobID string, updates map[string]interface{}) error
	Checkpoint(jobID string, job *models.ImportJob) error
}

// Upserter merges validated batches into the catalog.
type Upserter interface {
	BulkUpsert(ctx context.Context, batch []*models.Product) (repository.UpsertResult, error)
	FallbackUpsert(ctx context.Context, batch []*models.Product) (repository.UpsertResult, error)
}

// EventDispatcher fans an event out to subscribed webhooks.
type EventDispatcher interface {
	Dispatch(ctx context.Context, eventType string, data map[string]interface{}) error
}

// Service drives one import job from uploaded file to terminal status.
type Service struct {
	jobs   JobStore
	store  Upserter
	events EventDispatcher
	log    *logrus.Logger

	batchSize       int
	maxErrorSamples int
}

func New(jobs JobStore, store Upserter, events EventDispatcher, log *logrus.Logger, batchSize, maxErrorSamples int) *Service {
	return &Service{
		jobs:            jobs,
		store:           store,
		events:          events,
		log:             log,
		batchSize:       batchSize,
		maxErrorSamples: maxErrorSamples,
	}
}

// Run processes one uploaded file. The job moves pending -> parsing ->
// importing and ends completed or failed; progress counters are persisted
// after every batch so a concurrent status poll always sees consistent
// totals. The uploaded file is removed on every exit path. Running a job
// that already reached a terminal status is a no-op.
func (s *Service) Run(ctx context.Context, jobID, filePath string) error {
	logger := s.log.WithFields(logrus.Fields{"job_id": jobID, "file": filePath})

	job, err := s.jobs.GetImportByJobID(jobID)
	if err != nil {
		return fmt.Errorf("load import job %s: %w", jobID, err)
	}
	if job.Status.Terminal() {
		logger.WithField("status", job.Status).Info("Import job already finished, skipping")
		os.Remove(filePath)
		return nil
	}

	defer os.Remove(filePath)

	if err := s.jobs.SetStatus(jobID, models.ImportStatusParsing); err != nil {
		return fmt.Errorf("mark job parsing: %w", err)
	}
	s.dispatch(ctx, models.EventImportStarted, map[string]interface{}{
		"job_id":   jobID,
		"filename": job.Filename,
	})

	reader, err := csvstream.Open(filePath, logger)
	if err != nil {
		return s.fail(ctx, job, fmt.Sprintf("Could not read uploaded file: %v", err))
	}
	defer reader.Close()

	if err := s.jobs.SetStatus(jobID, models.ImportStatusImporting); err != nil {
		return fmt.Errorf("mark job importing: %w", err)
	}

	var samples []models.ImportRowError
	batcher := csvstream.NewBatcher(s.batchSize)

	for {
		row, line, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return s.fail(ctx, job, fmt.Sprintf("CSV parse error: %v", err))
		}

		job.TotalRows++

		product, rowErr := csvstream.ValidateRow(row, line)
		if rowErr != nil {
			job.ProcessedRows++
			job.SkippedRows++
			samples = s.sample(samples, *rowErr)
			continue
		}

		if full := batcher.Add(product); full != nil {
			samples = s.flush(ctx, job, full, samples, logger)
			if err := s.jobs.Checkpoint(jobID, job); err != nil {
				logger.WithError(err).Warn("Failed to persist import checkpoint")
			}
		}
	}

	if last := batcher.Flush(); last != nil {
		samples = s.flush(ctx, job, last, samples, logger)
	}

	errorLog := models.FormatErrorLog(samples, s.maxErrorSamples)
	if err := s.jobs.UpdateImport(jobID, map[string]interface{}{
		"total_rows":       job.TotalRows,
		"processed_rows":   job.ProcessedRows,
		"imported_rows":    job.ImportedRows,
		"updated_rows":     job.UpdatedRows,
		"skipped_rows":     job.SkippedRows,
		"degraded_batches": job.DegradedBatches,
		"error_log":        errorLog,
	}); err != nil {
		return fmt.Errorf("persist final counters: %w", err)
	}
	if err := s.jobs.SetStatus(jobID, models.ImportStatusCompleted); err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"total":    job.TotalRows,
		"imported": job.ImportedRows,
		"updated":  job.UpdatedRows,
		"skipped":  job.SkippedRows,
	}).Info("Import completed")

	s.dispatch(ctx, models.EventImportCompleted, s.summaryPayload(job))
	return nil
}

// flush merges one batch, falling back to per-row upsert when the set-based
// path fails (for example on duplicate SKUs inside the batch). A batch that
// fails both paths is counted as skipped in full.
func (s *Service) flush(ctx context.Context, job *models.ImportJob, batch []*models.Product, samples []models.ImportRowError, logger *logrus.Entry) []models.ImportRowError {
	result, err := s.store.BulkUpsert(ctx, batch)
	if err != nil {
		logger.WithError(err).WithField("batch_size", len(batch)).
			Warn("Bulk upsert failed, retrying batch row by row")

		result, err = s.store.FallbackUpsert(ctx, batch)
		if err != nil {
			logger.WithError(err).WithField("batch_size", len(batch)).
				Error("Fallback upsert failed, skipping batch")
			job.ProcessedRows += len(batch)
			job.SkippedRows += len(batch)
			return s.sample(samples, models.ImportRowError{
				Message: fmt.Sprintf("Batch of %d rows failed to import: %v", len(batch), err),
			})
		}
		job.DegradedBatches++
	}

	job.ProcessedRows += len(batch)
	job.ImportedRows += result.Inserted
	job.UpdatedRows += result.Updated
	return samples
}

// sample appends an error to the in-memory sample, keeping only the most
// recent entries so an import with millions of bad rows stays bounded.
func (s *Service) sample(samples []models.ImportRowError, e models.ImportRowError) []models.ImportRowError {
	samples = append(samples, e)
	if s.maxErrorSamples > 0 && len(samples) > s.maxErrorSamples {
		samples = samples[len(samples)-s.maxErrorSamples:]
	}
	return samples
}

// fail moves the job to its failed terminal status with an operator-facing
// message, then emits import.failed.
func (s *Service) fail(ctx context.Context, job *models.ImportJob, message string) error {
	s.log.WithFields(logrus.Fields{"job_id": job.JobID, "error": message}).Error("Import failed")

	if err := s.jobs.UpdateImport(job.JobID, map[string]interface{}{
		"error_message": message,
	}); err != nil {
		s.log.WithError(err).Error("Failed to persist import failure message")
	}
	if err := s.jobs.SetStatus(job.JobID, models.ImportStatusFailed); err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}

	s.dispatch(ctx, models.EventImportFailed, map[string]interface{}{
		"job_id":   job.JobID,
		"filename": job.Filename,
		"error":    message,
	})
	return nil
}

func (s *Service) summaryPayload(job *models.ImportJob) map[string]interface{} {
	return map[string]interface{}{
		"job_id":         job.JobID,
		"filename":       job.Filename,
		"total_rows":     job.TotalRows,
		"processed_rows": job.ProcessedRows,
		"imported_rows":  job.ImportedRows,
		"updated_rows":   job.UpdatedRows,
		"skipped_rows":   job.SkippedRows,
	}
}

func (s *Service) dispatch(ctx context.Context, eventType string, data map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Dispatch(ctx, eventType, data); err != nil {
		s.log.WithError(err).WithField("event", eventType).Warn("Failed to dispatch webhook event")
	}
}
