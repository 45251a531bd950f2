package importer

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-import-service/internal/models"
	"catalog-import-service/internal/repository"
)

type fakeJobStore struct {
	job         *models.ImportJob
	statuses    []models.ImportStatus
	updates     []map[string]interface{}
	checkpoints []models.ImportJob
}

func (f *fakeJobStore) GetImportByJobID(jobID string) (*models.ImportJob, error) {
	if f.job == nil || f.job.JobID != jobID {
		return nil, errors.New("not found")
	}
	return f.job, nil
}

func (f *fakeJobStore) SetStatus(jobID string, status models.ImportStatus) error {
	f.statuses = append(f.statuses, status)
	f.job.Status = status
	return nil
}

func (f *fakeJobStore) UpdateImport(jobID string, updates map[string]interface{}) error {
	f.updates = append(f.updates, updates)
	if msg, ok := updates["error_message"].(string); ok {
		f.job.ErrorMessage = &msg
	}
	return nil
}

func (f *fakeJobStore) Checkpoint(jobID string, job *models.ImportJob) error {
	f.checkpoints = append(f.checkpoints, *job)
	return nil
}

// fakeUpserter mimics the two storage paths: the set-based path rejects
// batches containing duplicate normalized SKUs, the row-by-row path applies
// them sequentially.
type fakeUpserter struct {
	products      map[string]models.Product
	bulkErr       error
	fallbackErr   error
	bulkCalls     int
	fallbackCalls int
}

func newFakeUpserter() *fakeUpserter {
	return &fakeUpserter{products: make(map[string]models.Product)}
}

func (f *fakeUpserter) BulkUpsert(ctx context.Context, batch []*models.Product) (repository.UpsertResult, error) {
	f.bulkCalls++
	if f.bulkErr != nil {
		return repository.UpsertResult{}, f.bulkErr
	}
	seen := make(map[string]bool)
	for _, p := range batch {
		if seen[p.SKUNorm] {
			return repository.UpsertResult{}, errors.New("ON CONFLICT DO UPDATE command cannot affect row a second time")
		}
		seen[p.SKUNorm] = true
	}
	return f.apply(batch), nil
}

func (f *fakeUpserter) FallbackUpsert(ctx context.Context, batch []*models.Product) (repository.UpsertResult, error) {
	f.fallbackCalls++
	if f.fallbackErr != nil {
		return repository.UpsertResult{}, f.fallbackErr
	}
	return f.apply(batch), nil
}

func (f *fakeUpserter) apply(batch []*models.Product) repository.UpsertResult {
	var result repository.UpsertResult
	for _, p := range batch {
		if _, exists := f.products[p.SKUNorm]; exists {
			result.Updated++
		} else {
			result.Inserted++
		}
		f.products[p.SKUNorm] = *p
	}
	return result
}

type fakeDispatcher struct {
	events   []string
	payloads []map[string]interface{}
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, eventType string, data map[string]interface{}) error {
	f.events = append(f.events, eventType)
	f.payloads = append(f.payloads, data)
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func writeImportFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newPendingJob(jobID string) *models.ImportJob {
	return &models.ImportJob{JobID: jobID, Filename: "upload.csv", Status: models.ImportStatusPending}
}

func assertCountersConsistent(t *testing.T, job *models.ImportJob) {
	t.Helper()
	assert.Equal(t, job.ProcessedRows, job.ImportedRows+job.UpdatedRows+job.SkippedRows,
		"processed must equal imported + updated + skipped")
}

// assertCheckpointsConsistent holds every persisted mid-run snapshot to the
// same counter contract as the final state.
func assertCheckpointsConsistent(t *testing.T, jobs *fakeJobStore) {
	t.Helper()
	for i := range jobs.checkpoints {
		snapshot := jobs.checkpoints[i]
		assert.Equal(t, snapshot.ProcessedRows, snapshot.ImportedRows+snapshot.UpdatedRows+snapshot.SkippedRows,
			"checkpoint %d: processed must equal imported + updated + skipped", i+1)
	}
}

func TestRunHappyPath(t *testing.T) {
	path := writeImportFile(t, "SKU,Name,Price,Stock\nA-1,Widget,9.99,5\nB-2,Gadget,12.50,3\n")
	jobs := &fakeJobStore{job: newPendingJob("job-1")}
	store := newFakeUpserter()
	events := &fakeDispatcher{}
	svc := New(jobs, store, events, quietLogger(), 1000, 100)

	require.NoError(t, svc.Run(context.Background(), "job-1", path))

	assert.Equal(t, models.ImportStatusCompleted, jobs.job.Status)
	assert.Equal(t, []models.ImportStatus{
		models.ImportStatusParsing,
		models.ImportStatusImporting,
		models.ImportStatusCompleted,
	}, jobs.statuses)

	assert.Equal(t, 2, jobs.job.TotalRows)
	assert.Equal(t, 2, jobs.job.ImportedRows)
	assert.Equal(t, 0, jobs.job.UpdatedRows)
	assert.Equal(t, 0, jobs.job.SkippedRows)
	assertCountersConsistent(t, jobs.job)

	assert.Equal(t, []string{models.EventImportStarted, models.EventImportCompleted}, events.events)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "uploaded file should be removed")
}

func TestRunDuplicateSKUInBatchFallsBack(t *testing.T) {
	// Row 3 duplicates row 1's SKU case-insensitively, so the set-based
	// upsert rejects the batch and the row-by-row retry attributes one
	// insert and one update. Row 2 is invalid and skipped.
	path := writeImportFile(t, "SKU,Name,Price,Stock\nABC-1,First,1.00,1\nBAD-2,NoPrice,,1\nabc-1,Again,2.00,2\n")
	jobs := &fakeJobStore{job: newPendingJob("job-2")}
	store := newFakeUpserter()
	events := &fakeDispatcher{}
	svc := New(jobs, store, events, quietLogger(), 1000, 100)

	require.NoError(t, svc.Run(context.Background(), "job-2", path))

	assert.Equal(t, models.ImportStatusCompleted, jobs.job.Status)
	assert.Equal(t, 3, jobs.job.TotalRows)
	assert.Equal(t, 1, jobs.job.ImportedRows)
	assert.Equal(t, 1, jobs.job.UpdatedRows)
	assert.Equal(t, 1, jobs.job.SkippedRows)
	assert.Equal(t, 1, jobs.job.DegradedBatches)
	assertCountersConsistent(t, jobs.job)

	assert.Equal(t, 1, store.bulkCalls)
	assert.Equal(t, 1, store.fallbackCalls)

	// Latest write wins for the display SKU.
	assert.Equal(t, "abc-1", store.products["abc-1"].SKU)
}

func TestRunBatchFailsBothPaths(t *testing.T) {
	path := writeImportFile(t, "SKU,Name,Price,Stock\nA-1,Widget,9.99,5\nB-2,Gadget,1.00,1\n")
	jobs := &fakeJobStore{job: newPendingJob("job-3")}
	store := newFakeUpserter()
	store.bulkErr = errors.New("connection reset")
	store.fallbackErr = errors.New("connection reset")
	svc := New(jobs, store, &fakeDispatcher{}, quietLogger(), 1000, 100)

	require.NoError(t, svc.Run(context.Background(), "job-3", path))

	// The job still completes; the unimportable batch counts as skipped.
	assert.Equal(t, models.ImportStatusCompleted, jobs.job.Status)
	assert.Equal(t, 2, jobs.job.TotalRows)
	assert.Equal(t, 0, jobs.job.ImportedRows)
	assert.Equal(t, 2, jobs.job.SkippedRows)
	assertCountersConsistent(t, jobs.job)
}

func TestRunUnreadableSourceFailsJob(t *testing.T) {
	jobs := &fakeJobStore{job: newPendingJob("job-4")}
	events := &fakeDispatcher{}
	svc := New(jobs, newFakeUpserter(), events, quietLogger(), 1000, 100)

	require.NoError(t, svc.Run(context.Background(), "job-4", filepath.Join(t.TempDir(), "missing.csv")))

	assert.Equal(t, models.ImportStatusFailed, jobs.job.Status)
	require.NotNil(t, jobs.job.ErrorMessage)
	assert.Contains(t, *jobs.job.ErrorMessage, "Could not read uploaded file")
	assert.Equal(t, []string{models.EventImportStarted, models.EventImportFailed}, events.events)
}

func TestRunTerminalJobIsNoop(t *testing.T) {
	path := writeImportFile(t, "SKU,Name,Price,Stock\nA-1,Widget,9.99,5\n")
	job := newPendingJob("job-5")
	job.Status = models.ImportStatusCompleted
	jobs := &fakeJobStore{job: job}
	store := newFakeUpserter()
	svc := New(jobs, store, &fakeDispatcher{}, quietLogger(), 1000, 100)

	require.NoError(t, svc.Run(context.Background(), "job-5", path))

	assert.Empty(t, jobs.statuses, "terminal job must not transition again")
	assert.Zero(t, store.bulkCalls)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "uploaded file should still be cleaned up")
}

func TestRunCheckpointsPerBatch(t *testing.T) {
	// An invalid row between the two full batches puts a skip into the
	// second persisted snapshot.
	path := writeImportFile(t, "SKU,Name,Price,Stock\nA,P,1.00,1\nB,P,1.00,1\n,P,1.00,1\nC,P,1.00,1\nD,P,1.00,1\nE,P,1.00,1\n")
	jobs := &fakeJobStore{job: newPendingJob("job-6")}
	svc := New(jobs, newFakeUpserter(), &fakeDispatcher{}, quietLogger(), 2, 100)

	require.NoError(t, svc.Run(context.Background(), "job-6", path))

	// Two full batches checkpoint, the trailing partial is covered by the
	// final counter write.
	require.Len(t, jobs.checkpoints, 2)
	assert.Equal(t, 2, jobs.checkpoints[0].ProcessedRows)
	assert.Equal(t, 5, jobs.checkpoints[1].ProcessedRows)
	assert.Equal(t, 1, jobs.checkpoints[1].SkippedRows)
	assert.Equal(t, 5, jobs.job.ImportedRows)
	assert.Equal(t, 1, jobs.job.SkippedRows)
	assertCountersConsistent(t, jobs.job)
	assertCheckpointsConsistent(t, jobs)
}

func TestRunErrorSampleKeepsMostRecent(t *testing.T) {
	content := "SKU,Name,Price,Stock\n"
	for i := 0; i < 5; i++ {
		content += ",NoSKU,1.00,1\n"
	}
	jobs := &fakeJobStore{job: newPendingJob("job-7")}
	svc := New(jobs, newFakeUpserter(), &fakeDispatcher{}, quietLogger(), 1000, 2)

	require.NoError(t, svc.Run(context.Background(), "job-7", writeImportFile(t, content)))

	var errorLog string
	for _, u := range jobs.updates {
		if v, ok := u["error_log"].(string); ok {
			errorLog = v
		}
	}
	require.NotEmpty(t, errorLog)
	// Rows 2-4 fell out of the two-entry cap; rows 5 and 6 remain.
	assert.NotContains(t, errorLog, `"row":2`)
	assert.Contains(t, errorLog, `"row":5`)
	assert.Contains(t, errorLog, `"row":6`)
	assert.Equal(t, 5, jobs.job.SkippedRows)
}
