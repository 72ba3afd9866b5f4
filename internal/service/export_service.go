package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/seat-enrollment-api/internal/dto"
	"github.com/noah-isme/seat-enrollment-api/internal/models"
	"github.com/noah-isme/seat-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/seat-enrollment-api/pkg/errors"
	"github.com/noah-isme/seat-enrollment-api/pkg/export"
	"github.com/noah-isme/seat-enrollment-api/pkg/jobs"
	"github.com/noah-isme/seat-enrollment-api/pkg/storage"
)

// ExportJobType is the queue job type for enrollment exports.
const ExportJobType = "enrollment_export"

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListFinishedBefore(ctx context.Context, cutoff time.Time) ([]models.ExportJob, error)
}

type exportRowSource interface {
	ListExportRows(ctx context.Context, sessionID string) ([]models.EnrollmentExportRow, error)
}

type jobDispatcher interface {
	Enqueue(ctx context.Context, job jobs.Job) error
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix       string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	ExpiresAt    time.Time
}

// ExportDownload aggregates resolved download data.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// ExportService renders enrollment lists of a session into downloadable
// files through a background queue.
type ExportService struct {
	jobs      exportJobStore
	rows      exportRowSource
	sessions  sessionResolver
	queue     jobDispatcher
	renderers export.Registry
	storage   fileStorage
	signer    *storage.SignedURLSigner
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs an ExportService. The queue may be attached
// later with SetQueue since the worker needs the service first.
func NewExportService(jobStore exportJobStore, rows exportRowSource, sessions sessionResolver, fs fileStorage, signer *storage.SignedURLSigner, renderers export.Registry, metrics *MetricsService, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if renderers == nil {
		renderers = export.DefaultRegistry()
	}
	return &ExportService{
		jobs:      jobStore,
		rows:      rows,
		sessions:  sessions,
		renderers: renderers,
		storage:   fs,
		signer:    signer,
		metrics:   metrics,
		validator: validator.New(),
		logger:    logger,
		cfg:       cfg,
	}
}

// SetQueue attaches the dispatcher used by CreateJob.
func (s *ExportService) SetQueue(queue jobDispatcher) {
	s.queue = queue
}

// CreateJob validates the request, persists a job and enqueues it.
func (s *ExportService) CreateJob(ctx context.Context, ref string, req dto.ExportRequest, actorID string) (*dto.ExportJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}
	session, err := s.sessions.FindByRef(ctx, ref)
	if err != nil {
		return nil, mapCoreError(err, "failed to resolve session")
	}

	job := &models.ExportJob{
		SessionID: session.ID,
		Format:    req.Format,
		Status:    models.ExportStatusQueued,
		CreatedBy: actorID,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if s.queue == nil {
		err = jobs.ErrQueueStopped
	} else {
		err = s.queue.Enqueue(ctx, jobs.Job{ID: job.ID, Type: ExportJobType})
	}
	if err != nil {
		s.markFailed(ctx, job.ID, "failed to enqueue job")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	return &dto.ExportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus exposes job metadata to clients.
func (s *ExportService) GetStatus(ctx context.Context, id string) (*dto.ExportStatusResponse, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, mapCoreError(err, "failed to load export job")
	}
	resp := &dto.ExportStatusResponse{
		ID:        job.ID,
		SessionID: job.SessionID,
		Format:    job.Format,
		Status:    job.Status,
		Progress:  job.Progress,
		ResultURL: job.ResultURL,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// Generate renders the session's enrollments and stores the file.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	renderer, err := s.renderers.Renderer(export.Format(job.Format))
	if err != nil {
		return nil, err
	}
	session, err := s.sessions.FindByRef(ctx, job.SessionID)
	if err != nil {
		return nil, err
	}
	rows, err := s.rows.ListExportRows(ctx, job.SessionID)
	if err != nil {
		return nil, err
	}

	payload, err := renderer.Render(buildEnrollmentDataset(session, rows))
	if err != nil {
		return nil, err
	}
	relPath, err := s.storage.Save(buildFilename(session, job), payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/download/%s", prefix, token),
		ExpiresAt:    expiresAt,
	}, nil
}

// ResolveDownload validates token and opens the stored export file.
func (s *ExportService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	jobID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, mapCoreError(err, "failed to load export job")
	}
	if job.Status != models.ExportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not ready")
	}
	if job.FilePath == nil || *job.FilePath != relPath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	renderer, err := s.renderers.Renderer(export.Format(job.Format))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "unsupported export format")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export file expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ExportDownload{
		File:        file,
		Filename:    filepath.Base(relPath),
		ContentType: renderer.ContentType(),
		ExpiresAt:   expiresAt,
	}, nil
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *ExportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CleanupExpired(ctx)
			}
		}
	}()
}

// CleanupExpired deletes files of jobs finished longer than the result TTL
// ago, then sweeps orphaned files from storage.
func (s *ExportService) CleanupExpired(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	expired, err := s.jobs.ListFinishedBefore(ctx, cutoff)
	if err != nil {
		s.logger.Warn("export cleanup list failed", zap.Error(err))
		return
	}
	for _, job := range expired {
		if job.FilePath == nil {
			continue
		}
		if err := s.storage.Delete(*job.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("export cleanup delete failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	if _, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL); err != nil {
		s.logger.Warn("export filesystem cleanup failed", zap.Error(err))
	}
}

// MarkGivenUp is the queue hook for jobs that exhausted their retries.
func (s *ExportService) MarkGivenUp(ctx context.Context, job jobs.Job, cause error) {
	s.markFailed(context.WithoutCancel(ctx), job.ID, cause.Error())
}

func (s *ExportService) markFailed(ctx context.Context, id, msg string) {
	status := models.ExportStatusFailed
	progress := 100
	now := time.Now().UTC()
	if err := s.jobs.Update(ctx, id, repository.UpdateExportJobParams{
		Status:       &status,
		Progress:     &progress,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Warn("failed to mark export job failed", zap.String("job_id", id), zap.Error(err))
	}
	s.metrics.RecordExportJob(string(status))
}

func buildEnrollmentDataset(session *models.Session, rows []models.EnrollmentExportRow) export.Dataset {
	headers := []string{"Student ID", "Department", "Course Code", "Course Name", "Enrolled At"}
	data := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		data = append(data, map[string]string{
			"Student ID":  row.StudentID,
			"Department":  row.DepartmentID,
			"Course Code": row.CourseCode,
			"Course Name": row.CourseName,
			"Enrolled At": row.EnrolledAt.UTC().Format(time.RFC3339),
		})
	}
	return export.Dataset{
		Title:   fmt.Sprintf("Enrollments %s (%s)", session.Name, session.Type),
		Headers: headers,
		Rows:    data,
	}
}

func buildFilename(session *models.Session, job *models.ExportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_%s_%s.%s", sanitizeFilename(session.Name), job.ID, timestamp, job.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

// ExportWorker bridges queue jobs to ExportService.
type ExportWorker struct {
	repo     exportJobStore
	exporter exportGenerator
	metrics  *MetricsService
	logger   *zap.Logger
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error)
}

// NewExportWorker constructs a worker.
func NewExportWorker(repo exportJobStore, exporter exportGenerator, metrics *MetricsService, logger *zap.Logger) *ExportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportWorker{repo: repo, exporter: exporter, metrics: metrics, logger: logger}
}

// Handle processes a queue job. Failures leave the job queued for the
// queue's retry; the give-up hook marks it failed.
func (w *ExportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	processing := models.ExportStatusProcessing
	progress := 10
	if err := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:   &processing,
		Progress: &progress,
	}); err != nil {
		return err
	}

	result, err := w.exporter.Generate(ctx, record)
	if err != nil {
		queued := models.ExportStatusQueued
		reset := 0
		msg := err.Error()
		if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
			Status:       &queued,
			Progress:     &reset,
			ErrorMessage: &msg,
		}); updateErr != nil {
			w.logger.Warn("failed to mark export job queued", zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		return err
	}

	finished := models.ExportStatusFinished
	progress = 100
	now := time.Now().UTC()
	clear := ""
	if err := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:       &finished,
		Progress:     &progress,
		FilePath:     &result.RelativePath,
		ResultURL:    &result.URL,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Warn("failed to mark export job finished", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	w.metrics.RecordExportJob(string(finished))
	w.logger.Info("export job finished", zap.String("job_id", job.ID), zap.String("file", result.RelativePath))
	return nil
}
