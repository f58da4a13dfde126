package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/registrar-api/internal/dto"
	"github.com/noah-isme/registrar-api/internal/models"
	appErrors "github.com/noah-isme/registrar-api/pkg/errors"
)

const ledgerWorkflow = "enrollment"

type enrollmentRepository interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) (*models.Enrollment, error)
	Delete(ctx context.Context, id string) error
}

type enrolleeLookup interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
}

type scheduleLookup interface {
	FindByID(ctx context.Context, id string) (*models.Schedule, error)
}

// EnrollmentService manages the capacity-bounded enrollment ledger.
type EnrollmentService struct {
	repo      enrollmentRepository
	students  enrolleeLookup
	schedules scheduleLookup
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewEnrollmentService constructs the service.
func NewEnrollmentService(repo enrollmentRepository, students enrolleeLookup, schedules scheduleLookup, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &EnrollmentService{repo: repo, students: students, schedules: schedules, validator: validate, metrics: metrics, logger: logger}
}

// Create seats a student in a schedule. Students always enroll themselves; admins name the student.
func (s *EnrollmentService) Create(ctx context.Context, actor models.Actor, req dto.CreateEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "scheduleId is required")
	}

	var studentID string
	switch actor.Role {
	case models.RoleStudent:
		student, err := s.ownStudent(ctx, actor)
		if err != nil {
			return nil, err
		}
		if req.StudentID != "" && req.StudentID != student.ID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only enroll themselves")
		}
		studentID = student.ID
	case models.RoleAdmin:
		if req.StudentID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "studentId is required")
		}
		if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
			}
			return nil, appErrors.Internal(err, "failed to load student")
		}
		studentID = req.StudentID
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role may not create enrollments")
	}

	if err := s.requireOpenSchedule(ctx, req.ScheduleID); err != nil {
		return nil, err
	}

	enrollment := &models.Enrollment{StudentID: studentID, ScheduleID: req.ScheduleID}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Internal(err, "failed to create enrollment")
	}
	s.metrics.RecordTransition(ledgerWorkflow, string(enrollment.Status))
	s.logger.Info("enrollment created",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", studentID),
		zap.String("schedule_id", req.ScheduleID))
	return enrollment, nil
}

// requireOpenSchedule rejects unknown and inactive schedules before the ledger transaction starts.
func (s *EnrollmentService) requireOpenSchedule(ctx context.Context, id string) error {
	schedule, err := s.schedules.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return appErrors.Internal(err, "failed to load schedule")
	}
	if !schedule.IsActive {
		return appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
	}
	return nil
}

// Get returns an enrollment; students may only read their own.
func (s *EnrollmentService) Get(ctx context.Context, actor models.Actor, id string) (*models.Enrollment, error) {
	enrollment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Role.IsStaff() {
		student, err := s.ownStudent(ctx, actor)
		if err != nil {
			return nil, err
		}
		if enrollment.StudentID != student.ID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "enrollment belongs to another student")
		}
	}
	return enrollment, nil
}

// List returns enrollments; a student's listing is pinned to their own profile.
func (s *EnrollmentService) List(ctx context.Context, actor models.Actor, filter models.EnrollmentFilter) ([]models.Enrollment, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("invalid status %q", filter.Status))
	}
	if !actor.Role.IsStaff() {
		student, err := s.ownStudent(ctx, actor)
		if err != nil {
			return nil, nil, err
		}
		filter.StudentID = student.ID
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list enrollments")
	}
	page, size := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// UpdateStatus is the admin-only status change.
func (s *EnrollmentService) UpdateStatus(ctx context.Context, actor models.Actor, id string, req dto.UpdateEnrollmentStatusRequest) (*models.Enrollment, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admin may change enrollment status")
	}
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("invalid status %q", req.Status))
	}
	updated, err := s.repo.UpdateStatus(ctx, id, req.Status)
	if err != nil {
		var appErr *appErrors.Error
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		case errors.As(err, &appErr):
			return nil, appErr
		}
		return nil, appErrors.Internal(err, "failed to update enrollment")
	}
	s.metrics.RecordTransition(ledgerWorkflow, string(updated.Status))
	return updated, nil
}

// Delete removes an enrollment (admin only).
func (s *EnrollmentService) Delete(ctx context.Context, actor models.Actor, id string) error {
	if actor.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only admin may delete enrollments")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Internal(err, "failed to delete enrollment")
	}
	s.logger.Info("enrollment deleted", zap.String("enrollment_id", id))
	return nil
}

func (s *EnrollmentService) ownStudent(ctx context.Context, actor models.Actor) (*models.Student, error) {
	student, err := s.students.FindByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "caller has no student profile")
		}
		return nil, appErrors.Internal(err, "failed to load student profile")
	}
	return student, nil
}

func (s *EnrollmentService) load(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Internal(err, "failed to load enrollment")
	}
	return enrollment, nil
}
