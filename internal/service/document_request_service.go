package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/registrar-api/internal/dto"
	"github.com/noah-isme/registrar-api/internal/models"
	appErrors "github.com/noah-isme/registrar-api/pkg/errors"
	"github.com/noah-isme/registrar-api/pkg/jobs"
)

const (
	documentWorkflow   = "document_request"
	requestFilesFolder = "requests"
	cleanupJobType     = "delete_request_file"
)

type documentRequestRepository interface {
	Create(ctx context.Context, req *models.DocumentRequest, n *models.Notification) error
	FindByID(ctx context.Context, id string) (*models.DocumentRequestDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.DocumentRequest, error)
	ListAll(ctx context.Context) ([]models.DocumentRequestDetail, error)
	UpdateStatus(ctx context.Context, id string, status models.RequestStatus, notes *string, n *models.Notification) error
	Delete(ctx context.Context, id string) ([]string, error)
}

type requesterLookup interface {
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
}

type documentStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
	Exists(filename string) (bool, error)
	Delete(filename string) error
}

type documentSigner interface {
	Generate(ownerID, relPath string) (string, time.Time, error)
	Parse(token string) (ownerID, relPath string, expiresAt time.Time, err error)
}

type cleanupQueue interface {
	Enqueue(job jobs.Job) error
}

// DocumentRequestConfig bounds uploads and shapes signed links.
type DocumentRequestConfig struct {
	MaxFiles  int
	MaxSize   int64
	APIPrefix string
}

// DocumentRequestService implements the document request workflow.
type DocumentRequestService struct {
	repo      documentRequestRepository
	students  requesterLookup
	storage   documentStorage
	signer    documentSigner
	cleanup   cleanupQueue
	validator *validator.Validate
	metrics   *MetricsService
	cfg       DocumentRequestConfig
	logger    *zap.Logger
}

// NewDocumentRequestService constructs the service. signer and cleanup are optional.
func NewDocumentRequestService(repo documentRequestRepository, students requesterLookup, storage documentStorage, signer documentSigner, cleanup cleanupQueue, validate *validator.Validate, metrics *MetricsService, cfg DocumentRequestConfig, logger *zap.Logger) *DocumentRequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 5
	}
	return &DocumentRequestService{
		repo:      repo,
		students:  students,
		storage:   storage,
		signer:    signer,
		cleanup:   cleanup,
		validator: validate,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger,
	}
}

// Create files a new pending request for the calling student. Attachments are stored in submission
// order and removed again if the request cannot be persisted.
func (s *DocumentRequestService) Create(ctx context.Context, actor models.Actor, req dto.CreateDocumentRequest, files []dto.UploadedFile) (*models.DocumentRequest, error) {
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students may file document requests")
	}
	req.DocumentType = strings.TrimSpace(req.DocumentType)
	req.Purpose = strings.TrimSpace(req.Purpose)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "documentType and purpose are required")
	}
	if len(files) > s.cfg.MaxFiles {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d files may be attached", s.cfg.MaxFiles))
	}
	for _, f := range files {
		if s.cfg.MaxSize > 0 && f.Size > s.cfg.MaxSize {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file %s exceeds the upload limit", f.Name))
		}
	}

	student, err := s.callerStudent(ctx, actor)
	if err != nil {
		return nil, err
	}

	stored := make([]string, 0, len(files))
	for _, f := range files {
		name := path.Join(requestFilesFolder, uuid.NewString()+strings.ToLower(filepath.Ext(f.Name)))
		id, err := s.storage.SaveStream(name, f.Reader)
		if err != nil {
			s.discard(stored)
			return nil, appErrors.Internal(err, "failed to store attachment")
		}
		stored = append(stored, id)
	}

	request := &models.DocumentRequest{
		StudentID:    student.ID,
		DocumentType: req.DocumentType,
		Purpose:      req.Purpose,
		Status:       models.RequestStatusPending,
		FilePath:     stored,
	}
	notification := &models.Notification{
		UserID:  actor.UserID,
		Message: fmt.Sprintf("You have submitted your request for %s.", req.DocumentType),
	}
	if err := s.repo.Create(ctx, request, notification); err != nil {
		s.discard(stored)
		return nil, appErrors.Internal(err, "failed to create request")
	}
	s.metrics.RecordTransition(documentWorkflow, string(request.Status))
	s.logger.Info("document request created", zap.String("request_id", request.ID), zap.Int("files", len(stored)))
	return request, nil
}

// ListMine returns the calling student's requests, newest first.
func (s *DocumentRequestService) ListMine(ctx context.Context, actor models.Actor) ([]models.DocumentRequest, error) {
	student, err := s.callerStudent(ctx, actor)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListByStudent(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list requests")
	}
	return items, nil
}

// ListAll returns every request with owner attributes for staff.
func (s *DocumentRequestService) ListAll(ctx context.Context, actor models.Actor) ([]models.DocumentRequestDetail, error) {
	if !actor.Role.IsStaff() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only staff may list all requests")
	}
	items, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list requests")
	}
	return items, nil
}

// Get returns a request; students may only fetch their own.
func (s *DocumentRequestService) Get(ctx context.Context, actor models.Actor, id string) (*models.DocumentRequestDetail, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Role.IsStaff() && request.StudentUserID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "request belongs to another student")
	}
	return request, nil
}

// UpdateStatus sets any of the four statuses and notifies the owner. No transition guard applies.
func (s *DocumentRequestService) UpdateStatus(ctx context.Context, actor models.Actor, id string, req dto.UpdateRequestStatusRequest) (*models.DocumentRequestDetail, error) {
	if !actor.Role.IsStaff() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only staff may update requests")
	}
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("invalid status %q", req.Status))
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	notification := &models.Notification{
		UserID:  request.StudentUserID,
		Message: fmt.Sprintf("Your request for %s is now %s.", request.DocumentType, humanizeStatus(req.Status)),
	}
	if err := s.repo.UpdateStatus(ctx, id, req.Status, req.Notes, notification); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Internal(err, "failed to update request")
	}
	s.metrics.RecordTransition(documentWorkflow, string(req.Status))

	request.Status = req.Status
	if req.Notes != nil {
		request.Notes = req.Notes
	}
	return request, nil
}

// FetchDocument resolves the attachment at index for staff download.
func (s *DocumentRequestService) FetchDocument(ctx context.Context, actor models.Actor, id string, index int) (*models.StoredDocument, error) {
	if !actor.Role.IsStaff() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only staff may download request documents")
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.resolveDocument(request, index)
}

// DocumentLink issues a signed, time-limited download link for one attachment.
func (s *DocumentRequestService) DocumentLink(ctx context.Context, actor models.Actor, id string, index int) (*dto.DocumentLinkResponse, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "signed links are disabled")
	}
	doc, err := s.FetchDocument(ctx, actor, id, index)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(id, doc.Path)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign document link")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	return &dto.DocumentLinkResponse{
		URL:       fmt.Sprintf("%s/requests/%s/documents/%d/download?token=%s", prefix, id, index, token),
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// DownloadSigned serves an attachment against a signed token instead of a bearer identity.
func (s *DocumentRequestService) DownloadSigned(ctx context.Context, id string, index int, token string) (*models.StoredDocument, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "signed links are disabled")
	}
	ownerID, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired download token")
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	doc, err := s.resolveDocument(request, index)
	if err != nil {
		return nil, err
	}
	if ownerID != request.ID || relPath != doc.Path {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token does not match the requested document")
	}
	return doc, nil
}

// Open returns a read handle for a resolved document.
func (s *DocumentRequestService) Open(doc *models.StoredDocument) (*os.File, error) {
	file, err := s.storage.Open(doc.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document file not found")
		}
		return nil, appErrors.Internal(err, "failed to open document")
	}
	return file, nil
}

// Delete hard-deletes a request without notifying anyone and schedules its files for removal.
func (s *DocumentRequestService) Delete(ctx context.Context, actor models.Actor, id string) error {
	if actor.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only admin may delete requests")
	}
	files, err := s.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return appErrors.Internal(err, "failed to delete request")
	}
	for _, name := range files {
		if s.cleanup == nil {
			s.removeFile(name)
			continue
		}
		if err := s.cleanup.Enqueue(jobs.Job{Type: cleanupJobType, Payload: name}); err != nil {
			s.logger.Warn("cleanup queue unavailable, removing file inline", zap.String("file", name), zap.Error(err))
			s.removeFile(name)
		}
	}
	s.logger.Info("document request deleted", zap.String("request_id", id), zap.Int("files", len(files)))
	return nil
}

// HandleCleanup is the cleanup queue handler removing one stored file.
func (s *DocumentRequestService) HandleCleanup(ctx context.Context, job jobs.Job) error {
	name, ok := job.Payload.(string)
	if !ok || name == "" {
		s.logger.Error("discarding malformed cleanup job", zap.String("job_id", job.ID))
		return nil
	}
	if err := s.storage.Delete(name); err != nil {
		s.metrics.RecordCleanup("retry")
		return err
	}
	s.metrics.RecordCleanup("deleted")
	return nil
}

func (s *DocumentRequestService) resolveDocument(request *models.DocumentRequestDetail, index int) (*models.StoredDocument, error) {
	if len(request.FilePath) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "request has no documents")
	}
	if index < 0 || index >= len(request.FilePath) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "document index out of range")
	}
	name := request.FilePath[index]
	exists, err := s.storage.Exists(name)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check document")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "document file not found")
	}
	return &models.StoredDocument{Name: path.Base(name), ContentType: contentTypeFor(name), Path: name}, nil
}

func (s *DocumentRequestService) callerStudent(ctx context.Context, actor models.Actor) (*models.Student, error) {
	student, err := s.students.FindByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Internal(err, "failed to load student profile")
	}
	return student, nil
}

func (s *DocumentRequestService) load(ctx context.Context, id string) (*models.DocumentRequestDetail, error) {
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Internal(err, "failed to load request")
	}
	return request, nil
}

func (s *DocumentRequestService) discard(names []string) {
	for _, name := range names {
		s.removeFile(name)
	}
}

func (s *DocumentRequestService) removeFile(name string) {
	if err := s.storage.Delete(name); err != nil {
		s.metrics.RecordCleanup("failed")
		s.logger.Warn("failed to remove stored file", zap.String("file", name), zap.Error(err))
		return
	}
	s.metrics.RecordCleanup("deleted")
}

// humanizeStatus renders a status for notification text, e.g. "ready for pick up".
func humanizeStatus(status models.RequestStatus) string {
	return strings.ReplaceAll(string(status), "-", " ")
}

func contentTypeFor(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	switch ext {
	case "pdf":
		return "application/pdf"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png", "gif", "webp", "bmp", "tiff":
		return "image/" + ext
	default:
		return "application/octet-stream"
	}
}
