package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/registrar-api/internal/dto"
	"github.com/noah-isme/registrar-api/internal/models"
	appErrors "github.com/noah-isme/registrar-api/pkg/errors"
)

type studentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	CreateWithUser(ctx context.Context, user *models.User, student *models.Student) error
	UpdateStatus(ctx context.Context, id string, status models.AcademicStatus) error
	SoftDelete(ctx context.Context, id string) error
}

// StudentService manages the student directory.
type StudentService struct {
	repo      studentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the service.
func NewStudentService(repo studentRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, validator: validate, logger: logger}
}

// Create encodes a student together with a student login.
func (s *StudentService) Create(ctx context.Context, req dto.CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to hash password")
	}

	student := &models.Student{
		CourseID:       req.CourseID,
		StudentNumber:  strings.TrimSpace(req.StudentNumber),
		FirstName:      strings.TrimSpace(req.FirstName),
		MiddleName:     strings.TrimSpace(req.MiddleName),
		LastName:       strings.TrimSpace(req.LastName),
		Suffix:         strings.TrimSpace(req.Suffix),
		Email:          strings.ToLower(strings.TrimSpace(req.Email)),
		ContactNumber:  req.ContactNumber,
		Address:        req.Address,
		Gender:         req.Gender,
		BirthDate:      req.BirthDate,
		YearLevel:      req.YearLevel,
		PreviousSchool: req.PreviousSchool,
		YearGraduated:  req.YearGraduated,
		GuardianName:   req.GuardianName,
		GuardianPhone:  req.GuardianPhone,
		AcademicStatus: models.AcademicStatusRegular,
	}
	user := &models.User{
		Email:        student.Email,
		FullName:     student.FullName(),
		PasswordHash: hash,
		Role:         models.RoleStudent,
		IsActive:     true,
	}
	if err := s.repo.CreateWithUser(ctx, user, student); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Internal(err, "failed to create student")
	}
	s.logger.Info("student created", zap.String("student_id", student.ID), zap.String("user_id", user.ID))
	return student, nil
}

// Get returns a student by id.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.notFound(err, "student not found")
	}
	return student, nil
}

// Me returns the caller's own student profile.
func (s *StudentService) Me(ctx context.Context, actor models.Actor) (*models.Student, error) {
	student, err := s.repo.FindByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, s.notFound(err, "student profile not found")
	}
	return student, nil
}

// List returns active students.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list students")
	}
	page, size := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// UpdateStatus changes a student's academic status.
func (s *StudentService) UpdateStatus(ctx context.Context, id string, req dto.UpdateStudentStatusRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, "invalid academic status")
	}
	if err := s.repo.UpdateStatus(ctx, id, req.AcademicStatus); err != nil {
		return nil, s.notFound(err, "student not found")
	}
	return s.Get(ctx, id)
}

// Delete soft-deletes a student; applications and requests keep referencing it.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return s.notFound(err, "student not found")
	}
	s.logger.Info("student deactivated", zap.String("student_id", id))
	return nil
}

func (s *StudentService) notFound(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, message)
	}
	return appErrors.Internal(err, "student directory failure")
}
