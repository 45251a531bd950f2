package repository

import (
	"time"

	"gorm.io/gorm"

	"catalog-import-service/internal/models"
)

type ImportsRepository struct {
	db *gorm.DB
}

func NewImportsRepository(db *gorm.DB) *ImportsRepository {
	return &ImportsRepository{db: db}
}

// CreateImport records a new import job
func (r *ImportsRepository) CreateImport(job *models.ImportJob) error {
	job.CreatedAt = time.Now()
	if job.Status == "" {
		job.Status = models.ImportStatusPending
	}
	return r.db.Create(job).Error
}

// GetImportByJobID retrieves an import job by its public job ID
func (r *ImportsRepository) GetImportByJobID(jobID string) (*models.ImportJob, error) {
	var job models.ImportJob
	if err := r.db.Where("job_id = ?", jobID).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// GetImports retrieves import jobs with pagination, newest first
func (r *ImportsRepository) GetImports(page, limit int) ([]models.ImportJob, int64, error) {
	var jobs []models.ImportJob
	var total int64

	query := r.db.Model(&models.ImportJob{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&jobs).Error; err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// UpdateImport applies a partial update to an import job
func (r *ImportsRepository) UpdateImport(jobID string, updates map[string]interface{}) error {
	result := r.db.Model(&models.ImportJob{}).
		Where("job_id = ?", jobID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetStatus transitions the job status, stamping StartedAt on the first
// non-pending transition and FinishedAt on a terminal one.
func (r *ImportsRepository) SetStatus(jobID string, status models.ImportStatus) error {
	updates := map[string]interface{}{"status": status}
	now := time.Now()
	if status == models.ImportStatusParsing {
		updates["started_at"] = now
	}
	if status.Terminal() {
		updates["finished_at"] = now
	}
	return r.UpdateImport(jobID, updates)
}

// Checkpoint persists the progress counters after each committed batch so a
// status read mid-import sees consistent totals.
func (r *ImportsRepository) Checkpoint(jobID string, job *models.ImportJob) error {
	return r.UpdateImport(jobID, map[string]interface{}{
		"total_rows":       job.TotalRows,
		"processed_rows":   job.ProcessedRows,
		"imported_rows":    job.ImportedRows,
		"updated_rows":     job.UpdatedRows,
		"skipped_rows":     job.SkippedRows,
		"degraded_batches": job.DegradedBatches,
	})
}
