package handlers

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"catalog-import-service/internal/config"
	"catalog-import-service/internal/models"
	"catalog-import-service/internal/queue"
	"catalog-import-service/internal/repository"
)

// Enqueuer hands tasks to the background queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload interface{}) error
}

type ImportsHandler struct {
	imports *repository.ImportsRepository
	tasks   Enqueuer
	cfg     *config.Config
	log     *logrus.Logger
}

func NewImportsHandler(imports *repository.ImportsRepository, tasks Enqueuer, cfg *config.Config, log *logrus.Logger) *ImportsHandler {
	return &ImportsHandler{imports: imports, tasks: tasks, cfg: cfg, log: log}
}

// CreateImport accepts a CSV upload and starts a background import job
// POST /api/imports
func (h *ImportsHandler) CreateImport(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "FILE_REQUIRED",
				Message: "Please upload a CSV file",
			},
		})
		return
	}

	if !strings.HasSuffix(strings.ToLower(file.Filename), ".csv") {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "INVALID_FORMAT",
				Message: "Only CSV files are accepted",
			},
		})
		return
	}

	if h.cfg.MaxUploadSize > 0 && file.Size > h.cfg.MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "FILE_TOO_LARGE",
				Message: fmt.Sprintf("File exceeds the %d byte upload limit", h.cfg.MaxUploadSize),
			},
		})
		return
	}

	jobID := uuid.NewString()

	if err := os.MkdirAll(h.cfg.UploadDir, 0o755); err != nil {
		h.serverError(c, "Failed to prepare upload directory", err)
		return
	}
	path := filepath.Join(h.cfg.UploadDir, jobID+".csv")
	if err := c.SaveUploadedFile(file, path); err != nil {
		h.serverError(c, "Failed to store uploaded file", err)
		return
	}

	job := &models.ImportJob{
		JobID:    jobID,
		Filename: file.Filename,
		FileSize: file.Size,
		Status:   models.ImportStatusPending,
	}
	if err := h.imports.CreateImport(job); err != nil {
		os.Remove(path)
		h.serverError(c, "Failed to create import job", err)
		return
	}

	if err := h.tasks.Enqueue(c.Request.Context(), queue.TaskImportProcess, queue.ImportTask{
		JobID:    jobID,
		FilePath: path,
	}); err != nil {
		h.serverError(c, "Failed to enqueue import job", err)
		return
	}

	h.log.WithFields(logrus.Fields{
		"job_id":   jobID,
		"filename": file.Filename,
		"size":     file.Size,
	}).Info("Import job accepted")

	c.JSON(http.StatusAccepted, gin.H{
		"jobId":   jobID,
		"status":  models.ImportStatusPending,
		"message": "Import job accepted for processing",
	})
}

// GetImportStatus returns job progress. Public so progress pollers need no
// credentials.
// GET /api/imports/:jobId/status
func (h *ImportsHandler) GetImportStatus(c *gin.Context) {
	jobID := c.Param("jobId")

	job, err := h.imports.GetImportByJobID(jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "NOT_FOUND",
				Message: fmt.Sprintf("Import job %s not found", jobID),
			},
		})
		return
	}

	c.JSON(http.StatusOK, job)
}

// ListImports returns import history, newest first
// GET /api/imports
func (h *ImportsHandler) ListImports(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	jobs, total, err := h.imports.GetImports(page, limit)
	if err != nil {
		h.serverError(c, "Failed to list import jobs", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": jobs,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// GetImportTemplate returns the import template definition or file
// GET /api/imports/template
func (h *ImportsHandler) GetImportTemplate(c *gin.Context) {
	format := c.DefaultQuery("format", "json")

	template := models.CatalogImportTemplate()

	switch format {
	case "csv":
		h.generateCSVTemplate(c, template)
	case "xlsx":
		h.generateXLSXTemplate(c, template)
	default:
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"template": template,
		})
	}
}

// generateCSVTemplate generates and downloads a CSV template (headers only)
func (h *ImportsHandler) generateCSVTemplate(c *gin.Context, template models.ImportTemplate) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=catalog_import_template.csv")

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	headers := make([]string, len(template.Columns))
	for i, col := range template.Columns {
		headers[i] = col.Name
	}
	writer.Write(headers)
}

// generateXLSXTemplate generates and downloads an Excel template
func (h *ImportsHandler) generateXLSXTemplate(c *gin.Context, template models.ImportTemplate) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Products"
	f.SetSheetName("Sheet1", sheetName)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	requiredStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C65911"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	for i, col := range template.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		headerText := col.Name
		if col.Required {
			headerText = col.Name + " *"
		}
		f.SetCellValue(sheetName, cell, headerText)

		if col.Required {
			f.SetCellStyle(sheetName, cell, cell, requiredStyle)
		} else {
			f.SetCellStyle(sheetName, cell, cell, headerStyle)
		}

		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, colName, colName, 20)
	}

	f.NewSheet("Instructions")
	f.SetCellValue("Instructions", "A1", "Catalog Import Instructions")
	f.SetCellValue("Instructions", "A3", "Re-importing a file is safe: rows are matched by SKU (case-insensitive),")
	f.SetCellValue("Instructions", "A4", "existing products are updated in place and new ones are created.")
	f.SetCellValue("Instructions", "A5", "Rows with missing or invalid required fields are skipped and reported")
	f.SetCellValue("Instructions", "A6", "in the job's error log; the rest of the file still imports.")

	f.SetCellValue("Instructions", "A8", "Column Definitions:")
	f.SetCellValue("Instructions", "A9", "Column")
	f.SetCellValue("Instructions", "B9", "Description")
	f.SetCellValue("Instructions", "C9", "Required")
	f.SetCellValue("Instructions", "D9", "Type")
	f.SetCellValue("Instructions", "E9", "Example")

	for i, col := range template.Columns {
		row := i + 10
		f.SetCellValue("Instructions", fmt.Sprintf("A%d", row), col.Name)
		f.SetCellValue("Instructions", fmt.Sprintf("B%d", row), col.Description)
		required := "Optional"
		if col.Required {
			required = "Required"
		}
		f.SetCellValue("Instructions", fmt.Sprintf("C%d", row), required)
		f.SetCellValue("Instructions", fmt.Sprintf("D%d", row), col.Type)
		f.SetCellValue("Instructions", fmt.Sprintf("E%d", row), col.Example)
	}

	f.SetColWidth("Instructions", "A", "A", 25)
	f.SetColWidth("Instructions", "B", "B", 60)
	f.SetColWidth("Instructions", "C", "C", 15)
	f.SetColWidth("Instructions", "D", "D", 15)
	f.SetColWidth("Instructions", "E", "E", 40)

	sheetIdx, _ := f.GetSheetIndex(sheetName)
	f.SetActiveSheet(sheetIdx)

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=catalog_import_template.xlsx")

	f.Write(c.Writer)
}

func (h *ImportsHandler) serverError(c *gin.Context, message string, err error) {
	h.log.WithError(err).Error(message)
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    "INTERNAL_ERROR",
			Message: message,
		},
	})
}
