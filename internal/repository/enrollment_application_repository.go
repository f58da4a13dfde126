package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/registrar-api/internal/models"
	"github.com/noah-isme/registrar-api/pkg/database"
	appErrors "github.com/noah-isme/registrar-api/pkg/errors"
)

const applicationDetailSelect = `SELECT a.id, a.student_id, a.course_id, a.academic_year, a.semester, a.enrollment_data,
	a.selected_subjects, a.status, a.accounting_approved_by, a.accounting_approved_at, a.registrar_approved_by,
	a.registrar_approved_at, a.notes, a.rejection_reason, a.submitted_at, a.updated_at,
	s.user_id AS student_user_id, s.student_number, s.first_name, s.last_name, s.email
	FROM enrollment_applications a
	JOIN students s ON s.id = a.student_id`

// SubmitApplicationParams groups the rows written by one submission. NewUser and NewStudent are set
// only when the applicant had no student profile yet.
type SubmitApplicationParams struct {
	NewUser      *models.User
	NewStudent   *models.Student
	Application  *models.EnrollmentApplication
	Notification *models.Notification
}

// EnrollmentApplicationRepository persists the enrollment application pipeline.
type EnrollmentApplicationRepository struct {
	db *sqlx.DB
}

// NewEnrollmentApplicationRepository constructs the repository.
func NewEnrollmentApplicationRepository(db *sqlx.DB) *EnrollmentApplicationRepository {
	return &EnrollmentApplicationRepository{db: db}
}

// Submit writes the lazily created applicant, the application and its notification in one transaction.
func (r *EnrollmentApplicationRepository) Submit(ctx context.Context, params SubmitApplicationParams) error {
	app := params.Application
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.Status == "" {
		app.Status = models.ApplicationStatusPendingPayment
	}
	now := time.Now().UTC()
	if app.SubmittedAt.IsZero() {
		app.SubmittedAt = now
	}
	app.UpdatedAt = now
	if len(app.EnrollmentData) == 0 {
		app.EnrollmentData = json.RawMessage(`{}`)
	}
	if len(app.SelectedSubjects) == 0 {
		app.SelectedSubjects = json.RawMessage(`[]`)
	}

	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if params.NewUser != nil {
			if err := insertUser(ctx, tx, params.NewUser); err != nil {
				return err
			}
		}
		if params.NewStudent != nil {
			if params.NewUser != nil {
				params.NewStudent.UserID = params.NewUser.ID
			}
			if err := insertStudent(ctx, tx, params.NewStudent); err != nil {
				return err
			}
			app.StudentID = params.NewStudent.ID
		}

		const query = `INSERT INTO enrollment_applications (id, student_id, course_id, academic_year, semester,
		enrollment_data, selected_subjects, status, notes, submitted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8, $9, $10, $11)`
		if _, err := tx.ExecContext(ctx, query, app.ID, app.StudentID, app.CourseID, app.AcademicYear, app.Semester,
			string(app.EnrollmentData), string(app.SelectedSubjects), app.Status, app.Notes, app.SubmittedAt, app.UpdatedAt); err != nil {
			return fmt.Errorf("create enrollment application: %w", err)
		}

		if params.Notification != nil {
			if params.NewUser != nil && params.Notification.UserID == "" {
				params.Notification.UserID = params.NewUser.ID
			}
			params.Notification.RequestID = &app.ID
			return insertNotification(ctx, tx, params.Notification)
		}
		return nil
	})
	if isUniqueViolation(err) && (params.NewUser != nil || params.NewStudent != nil) {
		return appErrors.Clone(appErrors.ErrInvalidInput, "email or student number already registered")
	}
	return err
}

// FindByID returns one application with the owning student's display attributes.
func (r *EnrollmentApplicationRepository) FindByID(ctx context.Context, id string) (*models.EnrollmentApplicationDetail, error) {
	var detail models.EnrollmentApplicationDetail
	if err := r.db.GetContext(ctx, &detail, applicationDetailSelect+` WHERE a.id = $1`, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns applications in the requested statuses, newest submission first.
func (r *EnrollmentApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.EnrollmentApplicationDetail, int, error) {
	where, args := applicationConditions(filter)
	page, size := normalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("%s%s ORDER BY a.submitted_at DESC LIMIT %d OFFSET %d", applicationDetailSelect, where, size, (page-1)*size)
	var items []models.EnrollmentApplicationDetail
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollment applications: %w", err)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM enrollment_applications a JOIN students s ON s.id = a.student_id" + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollment applications: %w", err)
	}
	return items, total, nil
}

// CountByStatus groups applications in the given statuses.
func (r *EnrollmentApplicationRepository) CountByStatus(ctx context.Context, statuses []models.ApplicationStatus) ([]models.ApplicationStatusCount, error) {
	where, args := applicationConditions(models.ApplicationFilter{Statuses: statuses})
	query := "SELECT a.status, COUNT(*) AS total FROM enrollment_applications a" + where + " GROUP BY a.status ORDER BY a.status"
	var counts []models.ApplicationStatusCount
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("count enrollment applications by status: %w", err)
	}
	return counts, nil
}

// Transition moves an application from t.From to t.To and appends the notification in the same
// transaction. sql.ErrNoRows is returned when the row is no longer in t.From.
func (r *EnrollmentApplicationRepository) Transition(ctx context.Context, t models.ApplicationTransition, n *models.Notification) error {
	setParts := []string{"status = $1", "updated_at = $2"}
	args := []interface{}{t.To, t.At}
	switch t.To {
	case models.ApplicationStatusPaymentApproved:
		args = append(args, t.ActorID, t.At)
		setParts = append(setParts, fmt.Sprintf("accounting_approved_by = $%d", len(args)-1), fmt.Sprintf("accounting_approved_at = $%d", len(args)))
	case models.ApplicationStatusApproved:
		args = append(args, t.ActorID, t.At)
		setParts = append(setParts, fmt.Sprintf("registrar_approved_by = $%d", len(args)-1), fmt.Sprintf("registrar_approved_at = $%d", len(args)))
	}
	if t.Notes != nil {
		args = append(args, *t.Notes)
		setParts = append(setParts, fmt.Sprintf("notes = $%d", len(args)))
	}
	if t.RejectionReason != nil {
		args = append(args, *t.RejectionReason)
		setParts = append(setParts, fmt.Sprintf("rejection_reason = $%d", len(args)))
	}
	args = append(args, t.ID, t.From)
	query := fmt.Sprintf("UPDATE enrollment_applications SET %s WHERE id = $%d AND status = $%d",
		strings.Join(setParts, ", "), len(args)-1, len(args))

	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("transition enrollment application: %w", err)
		}
		if err := requireAffected(res); err != nil {
			return err
		}
		if n == nil {
			return nil
		}
		n.RequestID = &t.ID
		return insertNotification(ctx, tx, n)
	})
}

func applicationConditions(filter models.ApplicationFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	if len(filter.Statuses) > 0 {
		values := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			values[i] = string(status)
		}
		args = append(args, pq.Array(values))
		conditions = append(conditions, fmt.Sprintf("a.status = ANY($%d)", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("a.student_id = $%d", len(args)))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
