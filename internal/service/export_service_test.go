package service

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/seat-enrollment-api/internal/dto"
	"github.com/noah-isme/seat-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/seat-enrollment-api/pkg/errors"
	"github.com/noah-isme/seat-enrollment-api/pkg/export"
	"github.com/noah-isme/seat-enrollment-api/pkg/jobs"
	"github.com/noah-isme/seat-enrollment-api/pkg/storage"
)

type exportFixture struct {
	svc      *ExportService
	worker   *ExportWorker
	jobs     *exportJobStoreStub
	queue    *dispatcherStub
	storage  *storage.LocalStorage
	sessions *sessionRepoStub
}

func newExportFixture(t *testing.T, rows exportRowsStub) *exportFixture {
	t.Helper()
	fs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	sessions := newSessionRepoStub(&models.Session{ID: "sess-1", Name: "electives 2024", Type: models.SessionTypeOpen, Status: models.SessionStatusClosed})
	jobStore := newExportJobStoreStub()
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	metrics := NewMetricsService()

	svc := NewExportService(jobStore, rows, sessions, fs, signer, export.DefaultRegistry(), metrics, ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}, zap.NewNop())
	queue := &dispatcherStub{}
	svc.SetQueue(queue)
	return &exportFixture{
		svc:      svc,
		worker:   NewExportWorker(jobStore, svc, metrics, zap.NewNop()),
		jobs:     jobStore,
		queue:    queue,
		storage:  fs,
		sessions: sessions,
	}
}

func sampleExportRows() exportRowsStub {
	at := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	return exportRowsStub{rows: []models.EnrollmentExportRow{
		{StudentID: "1XX21CS001", DepartmentID: "CS", CourseCode: "23NHOP707", CourseName: "Data Science", EnrolledAt: at},
		{StudentID: "1XX21ME001", DepartmentID: "ME", CourseCode: "23NHOP711", CourseName: "Robotics", EnrolledAt: at},
	}}
}

func TestExportServiceCreateJobEnqueues(t *testing.T) {
	f := newExportFixture(t, sampleExportRows())

	resp, err := f.svc.CreateJob(context.Background(), "electives 2024", dto.ExportRequest{Format: models.ExportFormatCSV}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, resp.Status)
	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, resp.ID, f.queue.jobs[0].ID)
	assert.Equal(t, ExportJobType, f.queue.jobs[0].Type)

	stored, err := f.jobs.GetByID(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", stored.SessionID)
	assert.Equal(t, "admin-1", stored.CreatedBy)
}

func TestExportServiceCreateJobValidation(t *testing.T) {
	f := newExportFixture(t, sampleExportRows())

	_, err := f.svc.CreateJob(context.Background(), "sess-1", dto.ExportRequest{Format: "docx"}, "admin-1")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.CreateJob(context.Background(), "missing", dto.ExportRequest{Format: models.ExportFormatPDF}, "admin-1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Empty(t, f.queue.jobs)
}

func TestExportServiceCreateJobEnqueueFailureMarksFailed(t *testing.T) {
	f := newExportFixture(t, sampleExportRows())
	f.queue.err = jobs.ErrQueueStopped

	_, err := f.svc.CreateJob(context.Background(), "sess-1", dto.ExportRequest{Format: models.ExportFormatXLSX}, "admin-1")
	require.Error(t, err)

	job, err := f.jobs.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
}

func TestExportWorkerProducesDownloadableFile(t *testing.T) {
	for _, format := range []models.ExportFormat{models.ExportFormatCSV, models.ExportFormatPDF, models.ExportFormatXLSX} {
		t.Run(string(format), func(t *testing.T) {
			f := newExportFixture(t, sampleExportRows())
			ctx := context.Background()

			created, err := f.svc.CreateJob(ctx, "sess-1", dto.ExportRequest{Format: format}, "admin-1")
			require.NoError(t, err)
			require.NoError(t, f.worker.Handle(ctx, f.queue.jobs[0]))

			status, err := f.svc.GetStatus(ctx, created.ID)
			require.NoError(t, err)
			assert.Equal(t, models.ExportStatusFinished, status.Status)
			assert.Equal(t, 100, status.Progress)
			require.NotNil(t, status.ResultURL)
			assert.Contains(t, *status.ResultURL, "/api/v1/exports/download/")
			assert.Nil(t, status.Error)

			token := (*status.ResultURL)[len("/api/v1/exports/download/"):]
			download, err := f.svc.ResolveDownload(ctx, token)
			require.NoError(t, err)
			defer download.File.Close()
			assert.Contains(t, download.Filename, "electives_2024")
			assert.Contains(t, download.Filename, "."+string(format))

			body, err := io.ReadAll(download.File)
			require.NoError(t, err)
			assert.NotEmpty(t, body)
			if format == models.ExportFormatCSV {
				assert.Contains(t, string(body), "1XX21ME001")
				assert.Equal(t, "text/csv", download.ContentType)
			}
		})
	}
}

func TestExportWorkerFailureRequeues(t *testing.T) {
	f := newExportFixture(t, exportRowsStub{err: errors.New("db down")})
	ctx := context.Background()

	_, err := f.svc.CreateJob(ctx, "sess-1", dto.ExportRequest{Format: models.ExportFormatCSV}, "admin-1")
	require.NoError(t, err)

	err = f.worker.Handle(ctx, f.queue.jobs[0])
	require.Error(t, err)
	job, _ := f.jobs.GetByID(ctx, "job-1")
	assert.Equal(t, models.ExportStatusQueued, job.Status)

	f.svc.MarkGivenUp(ctx, f.queue.jobs[0], err)
	job, _ = f.jobs.GetByID(ctx, "job-1")
	assert.Equal(t, models.ExportStatusFailed, job.Status)
	assert.Equal(t, "db down", *job.ErrorMessage)
}

func TestExportServiceResolveDownloadRejects(t *testing.T) {
	f := newExportFixture(t, sampleExportRows())
	ctx := context.Background()

	_, err := f.svc.ResolveDownload(ctx, "garbage")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	created, err := f.svc.CreateJob(ctx, "sess-1", dto.ExportRequest{Format: models.ExportFormatCSV}, "admin-1")
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate(created.ID, "other.csv")
	require.NoError(t, err)

	_, err = f.svc.ResolveDownload(ctx, token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")

	require.NoError(t, f.worker.Handle(ctx, f.queue.jobs[0]))
	_, err = f.svc.ResolveDownload(ctx, token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token mismatch")
}

func TestExportServiceCleanupExpired(t *testing.T) {
	f := newExportFixture(t, sampleExportRows())
	ctx := context.Background()

	rel, err := f.storage.Save("old.csv", []byte("a,b\n"))
	require.NoError(t, err)
	f.jobs.expired = []models.ExportJob{{ID: "job-old", FilePath: &rel}, {ID: "job-nofile"}}

	f.svc.CleanupExpired(ctx)
	_, err = f.storage.Open(rel)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
