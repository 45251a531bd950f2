package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ImportStatus represents the status of an import job
type ImportStatus string

const (
	ImportStatusPending   ImportStatus = "pending"
	ImportStatusParsing   ImportStatus = "parsing"
	ImportStatusImporting ImportStatus = "importing"
	ImportStatusCompleted ImportStatus = "completed"
	ImportStatusFailed    ImportStatus = "failed"
)

// Terminal reports whether the status absorbs all further transitions.
func (s ImportStatus) Terminal() bool {
	return s == ImportStatusCompleted || s == ImportStatusFailed
}

// ImportJob tracks one import attempt: the source file, a status that moves
// pending -> parsing -> importing -> completed|failed, monotonic progress
// counters and a capped error sample. At every persisted checkpoint
// ProcessedRows == ImportedRows + UpdatedRows + SkippedRows.
type ImportJob struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	JobID    string    `json:"jobId" gorm:"column:job_id;type:varchar(100);not null;uniqueIndex"`
	Filename string    `json:"filename" gorm:"type:varchar(255);not null"`
	FileSize int64     `json:"fileSize" gorm:"column:file_size"`

	Status ImportStatus `json:"status" gorm:"type:varchar(50);not null;default:'pending';index"`

	TotalRows     int `json:"totalRows" gorm:"column:total_rows;not null;default:0"`
	ProcessedRows int `json:"processedRows" gorm:"column:processed_rows;not null;default:0"`
	ImportedRows  int `json:"importedRows" gorm:"column:imported_rows;not null;default:0"`
	UpdatedRows   int `json:"updatedRows" gorm:"column:updated_rows;not null;default:0"`
	SkippedRows   int `json:"skippedRows" gorm:"column:skipped_rows;not null;default:0"`

	// Bookkeeping for batches that only went through on the per-row
	// fallback path. Diagnostic only, never part of the counters contract.
	DegradedBatches int `json:"degradedBatches" gorm:"column:degraded_batches;not null;default:0"`

	ErrorLog     *string `json:"errorLog,omitempty" gorm:"column:error_log;type:text"`
	ErrorMessage *string `json:"errorMessage,omitempty" gorm:"column:error_message;type:text"`

	StartedAt  *time.Time `json:"startedAt,omitempty" gorm:"column:started_at"`
	FinishedAt *time.Time `json:"finishedAt,omitempty" gorm:"column:finished_at"`
	CreatedAt  time.Time  `json:"createdAt" gorm:"column:created_at;not null"`
}

// TableName returns the table name for the ImportJob model
func (ImportJob) TableName() string {
	return "imports"
}

// ImportRowError represents an error for a specific row or batch
type ImportRowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// FormatErrorLog serializes an error sample as a JSON array, keeping only
// the most recent max entries. Older entries beyond the cap are dropped.
func FormatErrorLog(errors []ImportRowError, max int) string {
	if max > 0 && len(errors) > max {
		errors = errors[len(errors)-max:]
	}
	data, err := json.Marshal(errors)
	if err != nil {
		return "[]"
	}
	return string(data)
}
