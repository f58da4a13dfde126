package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/registrar-api/internal/dto"
	"github.com/noah-isme/registrar-api/internal/models"
	"github.com/noah-isme/registrar-api/internal/repository"
	appErrors "github.com/noah-isme/registrar-api/pkg/errors"
)

const (
	applicationWorkflow   = "enrollment_application"
	applicationStatsKey   = "application-stats"
	applicationExportSize = 100
	defaultSemester       = "1st"
)

type applicationRepository interface {
	Submit(ctx context.Context, params repository.SubmitApplicationParams) error
	FindByID(ctx context.Context, id string) (*models.EnrollmentApplicationDetail, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.EnrollmentApplicationDetail, int, error)
	CountByStatus(ctx context.Context, statuses []models.ApplicationStatus) ([]models.ApplicationStatusCount, error)
	Transition(ctx context.Context, t models.ApplicationTransition, n *models.Notification) error
}

type applicantStudentLookup interface {
	FindByExternalID(ctx context.Context, ref string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
}

type applicantUserLookup interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

type applicationExporter interface {
	RenderApplications(items []models.EnrollmentApplicationDetail, format string) (*dto.ApplicationExport, error)
	RenderCertificate(app models.EnrollmentApplicationDetail) (*dto.ApplicationExport, error)
}

// defaultApplicationScope is the status set each staff role sees when no status filter is given.
var defaultApplicationScope = map[models.UserRole][]models.ApplicationStatus{
	models.RoleAccounting: {models.ApplicationStatusPendingPayment, models.ApplicationStatusPaymentApproved},
	models.RoleAdmin:      {models.ApplicationStatusPendingRegistrarReview, models.ApplicationStatusApproved, models.ApplicationStatusRejected},
}

// EnrollmentApplicationService drives the submission, payment and registrar review pipeline.
type EnrollmentApplicationService struct {
	repo     applicationRepository
	students applicantStudentLookup
	users    applicantUserLookup
	exporter applicationExporter
	cache    *CacheService
	metrics  *MetricsService
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewEnrollmentApplicationService constructs the service. cache and metrics may be nil.
func NewEnrollmentApplicationService(repo applicationRepository, students applicantStudentLookup, users applicantUserLookup, exporter applicationExporter, cache *CacheService, metrics *MetricsService, cacheTTL time.Duration, logger *zap.Logger) *EnrollmentApplicationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if exporter == nil {
		exporter = NewExportService(nil, nil)
	}
	return &EnrollmentApplicationService{
		repo:     repo,
		students: students,
		users:    users,
		exporter: exporter,
		cache:    cache,
		metrics:  metrics,
		cacheTTL: cacheTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// Submit records a new application in pending_payment. An applicant without a student profile gets a
// User and Student built from the submitted form; unset fields are defaulted rather than rejected.
func (s *EnrollmentApplicationService) Submit(ctx context.Context, actor *models.Actor, req dto.SubmitApplicationRequest) (*models.EnrollmentApplication, error) {
	enrollmentData, form, err := decodeForm(req.EnrollmentData)
	if err != nil {
		return nil, err
	}
	selected := req.SelectedSubjects
	if len(selected) > 0 && !json.Valid(selected) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "selectedSubjects must be valid JSON")
	}

	params := repository.SubmitApplicationParams{}
	student, err := s.resolveApplicant(ctx, actor, req, form)
	if err != nil {
		return nil, err
	}
	notifyUserID := ""
	if student != nil {
		notifyUserID = student.UserID
	} else {
		newUser, newStudent, err := s.buildApplicant(ctx, actor, req, form)
		if err != nil {
			return nil, err
		}
		params.NewUser = newUser
		params.NewStudent = newStudent
		student = newStudent
		notifyUserID = newStudent.UserID
	}

	year := s.now().Year()
	app := &models.EnrollmentApplication{
		StudentID:        student.ID,
		CourseID:         optionalString(firstNonEmpty(req.CourseID, formString(form, "courseId", "course_id"), derefString(student.CourseID))),
		AcademicYear:     firstNonEmpty(req.AcademicYear, formString(form, "academicYear"), fmt.Sprintf("%d-%d", year, year+1)),
		Semester:         firstNonEmpty(req.Semester, formString(form, "semester"), defaultSemester),
		EnrollmentData:   enrollmentData,
		SelectedSubjects: selected,
		Status:           models.ApplicationStatusPendingPayment,
	}
	params.Application = app
	params.Notification = &models.Notification{
		UserID:  notifyUserID,
		Message: fmt.Sprintf("Your enrollment application for %s %s semester has been submitted and is awaiting payment verification.", app.AcademicYear, app.Semester),
	}

	if err := s.repo.Submit(ctx, params); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Internal(err, "failed to submit enrollment application")
	}
	s.afterTransition(ctx, app.Status)
	s.logger.Info("enrollment application submitted",
		zap.String("application_id", app.ID),
		zap.String("student_id", app.StudentID),
		zap.Bool("new_student", params.NewStudent != nil))
	return app, nil
}

// List returns applications scoped by the caller's role unless an explicit status filter is given.
func (s *EnrollmentApplicationService) List(ctx context.Context, actor models.Actor, query dto.ApplicationQuery) ([]models.EnrollmentApplicationDetail, *models.Pagination, error) {
	statuses, err := s.scope(actor, query.Status)
	if err != nil {
		return nil, nil, err
	}
	items, total, err := s.repo.List(ctx, models.ApplicationFilter{Statuses: statuses, Page: query.Page, PageSize: query.PageSize})
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list enrollment applications")
	}
	page, size := query.Page, query.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one application; students may only read their own.
func (s *EnrollmentApplicationService) Get(ctx context.Context, actor models.Actor, id string) (*models.EnrollmentApplicationDetail, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Role.IsStaff() && app.StudentUserID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "application belongs to another student")
	}
	return app, nil
}

// ApprovePayment attests payment on an application that is exactly pending_payment.
func (s *EnrollmentApplicationService) ApprovePayment(ctx context.Context, actor models.Actor, id string, req dto.ApprovePaymentRequest) (*models.EnrollmentApplicationDetail, error) {
	if actor.Role != models.RoleAccounting && actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only accounting or admin may approve payments")
	}
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != models.ApplicationStatusPendingPayment {
		return nil, invalidTransition(app.Status, models.ApplicationStatusPaymentApproved)
	}

	transition := models.ApplicationTransition{
		ID:      app.ID,
		From:    models.ApplicationStatusPendingPayment,
		To:      models.ApplicationStatusPaymentApproved,
		ActorID: actor.UserID,
		At:      s.now().UTC(),
		Notes:   optionalString(strings.TrimSpace(req.Notes)),
	}
	notification := &models.Notification{
		UserID:  app.StudentUserID,
		Message: fmt.Sprintf("Your payment for the %s %s semester enrollment has been approved. Your application is now with the registrar.", app.AcademicYear, app.Semester),
	}
	return s.transition(ctx, app, transition, notification)
}

// ReviewByRegistrar approves or rejects an application that is exactly payment_approved.
func (s *EnrollmentApplicationService) ReviewByRegistrar(ctx context.Context, actor models.Actor, id string, req dto.ReviewApplicationRequest) (*models.EnrollmentApplicationDetail, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the registrar may review applications")
	}
	var target models.ApplicationStatus
	reason := strings.TrimSpace(req.RejectionReason)
	switch req.Action {
	case models.ReviewActionApprove:
		target = models.ApplicationStatusApproved
	case models.ReviewActionReject:
		if reason == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "rejectionReason is required when rejecting")
		}
		target = models.ApplicationStatusRejected
	default:
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("unsupported review action %q", req.Action))
	}

	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != models.ApplicationStatusPaymentApproved {
		return nil, invalidTransition(app.Status, target)
	}

	transition := models.ApplicationTransition{
		ID:      app.ID,
		From:    models.ApplicationStatusPaymentApproved,
		To:      target,
		ActorID: actor.UserID,
		At:      s.now().UTC(),
		Notes:   optionalString(strings.TrimSpace(req.Notes)),
	}
	message := fmt.Sprintf("Congratulations! Your enrollment for the %s %s semester has been approved.", app.AcademicYear, app.Semester)
	if target == models.ApplicationStatusRejected {
		transition.RejectionReason = &reason
		message = fmt.Sprintf("Your enrollment application for the %s %s semester was rejected: %s", app.AcademicYear, app.Semester, reason)
	}
	return s.transition(ctx, app, transition, &models.Notification{UserID: app.StudentUserID, Message: message})
}

// DashboardStats counts applications by status within the caller's default scope. The boolean reports
// whether the result came from cache.
func (s *EnrollmentApplicationService) DashboardStats(ctx context.Context, actor models.Actor) (*models.ApplicationStats, bool, error) {
	statuses, err := s.scope(actor, nil)
	if err != nil {
		return nil, false, err
	}
	return Remember(ctx, s.cache, Key(applicationStatsKey, string(actor.Role)), s.cacheTTL, func(ctx context.Context) (*models.ApplicationStats, error) {
		counts, err := s.repo.CountByStatus(ctx, statuses)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to count enrollment applications")
		}
		found := make(map[models.ApplicationStatus]int, len(counts))
		for _, c := range counts {
			found[c.Status] = c.Total
		}
		stats := &models.ApplicationStats{Role: actor.Role, ByStatus: make([]models.ApplicationStatusCount, 0, len(statuses))}
		for _, status := range statuses {
			stats.ByStatus = append(stats.ByStatus, models.ApplicationStatusCount{Status: status, Total: found[status]})
			stats.Total += found[status]
		}
		return stats, nil
	})
}

// Export renders every application visible under the caller's scope.
func (s *EnrollmentApplicationService) Export(ctx context.Context, actor models.Actor, query dto.ApplicationQuery, format string) (*dto.ApplicationExport, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "" && format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, "format must be csv or pdf")
	}
	statuses, err := s.scope(actor, query.Status)
	if err != nil {
		return nil, err
	}

	var all []models.EnrollmentApplicationDetail
	for page := 1; ; page++ {
		items, total, err := s.repo.List(ctx, models.ApplicationFilter{Statuses: statuses, Page: page, PageSize: applicationExportSize})
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load enrollment applications")
		}
		all = append(all, items...)
		if len(items) < applicationExportSize || len(all) >= total {
			break
		}
	}

	out, err := s.exporter.RenderApplications(all, format)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render export")
	}
	return out, nil
}

// Certificate renders the Certificate of Registration for an approved application.
func (s *EnrollmentApplicationService) Certificate(ctx context.Context, actor models.Actor, id string) (*dto.ApplicationExport, error) {
	app, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if app.Status != models.ApplicationStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidStateTransition, "certificate is only available for approved applications")
	}
	out, err := s.exporter.RenderCertificate(*app)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render certificate")
	}
	return out, nil
}

func (s *EnrollmentApplicationService) transition(ctx context.Context, app *models.EnrollmentApplicationDetail, t models.ApplicationTransition, n *models.Notification) (*models.EnrollmentApplicationDetail, error) {
	if err := s.repo.Transition(ctx, t, n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// another reviewer moved the application after it was loaded
			return nil, invalidTransition(t.From, t.To)
		}
		return nil, appErrors.Internal(err, "failed to update enrollment application")
	}
	s.afterTransition(ctx, t.To)
	s.logger.Info("enrollment application transitioned",
		zap.String("application_id", t.ID),
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
		zap.String("actor_id", t.ActorID))

	updated, err := s.repo.FindByID(ctx, app.ID)
	if err != nil {
		s.logger.Warn("reload application after transition failed", zap.String("application_id", app.ID), zap.Error(err))
		fallback := *app
		fallback.Status = t.To
		return &fallback, nil
	}
	return updated, nil
}

func (s *EnrollmentApplicationService) afterTransition(ctx context.Context, status models.ApplicationStatus) {
	s.metrics.RecordTransition(applicationWorkflow, string(status))
	keys := make([]string, 0, len(defaultApplicationScope))
	for role := range defaultApplicationScope {
		keys = append(keys, Key(applicationStatsKey, string(role)))
	}
	s.cache.Invalidate(ctx, keys...)
}

func (s *EnrollmentApplicationService) scope(actor models.Actor, explicit []models.ApplicationStatus) ([]models.ApplicationStatus, error) {
	defaults, ok := defaultApplicationScope[actor.Role]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only accounting or admin may list applications")
	}
	if len(explicit) == 0 {
		return defaults, nil
	}
	for _, status := range explicit {
		if !status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("unknown application status %q", status))
		}
	}
	return explicit, nil
}

func (s *EnrollmentApplicationService) load(ctx context.Context, id string) (*models.EnrollmentApplicationDetail, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment application not found")
		}
		return nil, appErrors.Internal(err, "failed to load enrollment application")
	}
	return app, nil
}

// resolveApplicant finds an existing student for the submission. A nil student with nil error means one
// must be created.
func (s *EnrollmentApplicationService) resolveApplicant(ctx context.Context, actor *models.Actor, req dto.SubmitApplicationRequest, form map[string]interface{}) (*models.Student, error) {
	if actor != nil && actor.Role == models.RoleStudent {
		return s.lookup(ctx, func() (*models.Student, error) { return s.students.FindByUserID(ctx, actor.UserID) })
	}
	for _, ref := range []string{req.StudentID, formString(form, "studentId", "studentNumber", "student_number")} {
		if ref == "" {
			continue
		}
		student, err := s.lookup(ctx, func() (*models.Student, error) { return s.students.FindByExternalID(ctx, ref) })
		if err != nil || student != nil {
			return student, err
		}
	}
	return nil, nil
}

func (s *EnrollmentApplicationService) lookup(ctx context.Context, find func() (*models.Student, error)) (*models.Student, error) {
	student, err := find()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Internal(err, "failed to resolve applicant")
	}
	return student, nil
}

// buildApplicant assembles the lazily created User and Student. A student caller already has a User, so
// only the profile is created for them; an unknown applicant whose email matches an existing User reuses it.
func (s *EnrollmentApplicationService) buildApplicant(ctx context.Context, actor *models.Actor, req dto.SubmitApplicationRequest, form map[string]interface{}) (*models.User, *models.Student, error) {
	year := s.now().Year()
	number := firstNonEmpty(formString(form, "studentNumber", "student_number"), req.StudentID)
	if number == "" {
		number = fmt.Sprintf("%d-%s", year, strings.ToUpper(uuid.NewString()[:8]))
	}
	email := strings.ToLower(formString(form, "email", "emailAddress"))
	if email == "" {
		email = strings.ToLower(number) + "@applicants.local"
	}
	yearGraduated := formInt(form, "yearGraduated", "year_graduated")
	if yearGraduated == 0 {
		yearGraduated = year
	}

	student := &models.Student{
		CourseID:       optionalString(firstNonEmpty(req.CourseID, formString(form, "courseId", "course_id"))),
		StudentNumber:  number,
		FirstName:      formString(form, "firstName", "first_name"),
		MiddleName:     formString(form, "middleName", "middle_name"),
		LastName:       formString(form, "lastName", "last_name"),
		Suffix:         formString(form, "suffix"),
		Email:          email,
		ContactNumber:  formString(form, "contactNumber", "phone"),
		Address:        formString(form, "address"),
		Gender:         formString(form, "gender", "sex"),
		BirthDate:      formString(form, "birthDate", "birthdate", "dateOfBirth"),
		YearLevel:      firstNonEmpty(formString(form, "yearLevel", "year_level"), "1st Year"),
		PreviousSchool: formString(form, "previousSchool", "lastSchoolAttended"),
		YearGraduated:  yearGraduated,
		GuardianName:   formString(form, "guardianName"),
		GuardianPhone:  formString(form, "guardianContact", "guardianPhone"),
		AcademicStatus: models.AcademicStatusRegular,
	}

	if actor != nil && actor.Role == models.RoleStudent {
		student.UserID = actor.UserID
		return nil, student, nil
	}

	existing, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		student.UserID = existing.ID
		return nil, student, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, nil, appErrors.Internal(err, "failed to resolve applicant account")
	}

	hash, err := hashPassword(uuid.NewString())
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to prepare applicant account")
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     strings.TrimSpace(student.FullName()),
		PasswordHash: hash,
		Role:         models.RoleStudent,
		IsActive:     true,
	}
	student.UserID = user.ID
	return user, student, nil
}

func invalidTransition(from, to models.ApplicationStatus) *appErrors.Error {
	return appErrors.Clone(appErrors.ErrInvalidStateTransition, fmt.Sprintf("cannot move application from %s to %s", from, to))
}

// decodeForm keeps the submitted enrollmentData verbatim and exposes its fields only when it is a JSON
// object. Arrays and scalars are stored as sent and contribute no applicant fields.
func decodeForm(raw json.RawMessage) (json.RawMessage, map[string]interface{}, error) {
	form := map[string]interface{}{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage(`{}`), form, nil
	}
	if !json.Valid(trimmed) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "enrollmentData must be valid JSON")
	}
	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&form); err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "enrollmentData is not a valid object")
		}
	}
	return json.RawMessage(trimmed), form, nil
}

// formString returns the first non-empty value among keys, stringifying numbers.
func formString(form map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		switch v := form[key].(type) {
		case string:
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}

func formInt(form map[string]interface{}, keys ...string) int {
	value := formString(form, keys...)
	if value == "" {
		return 0
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
