package repository

import (
	"context"
	"database/sql"
	"errors"
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

const (
	enrollmentColumns = `id, student_id, schedule_id, status, enrollment_date, created_at, updated_at`
	uniqueViolation   = "23505"
)

// EnrollmentRepository maintains the capacity-bounded enrollment ledger.
type EnrollmentRepository struct {
	db              *sqlx.DB
	enforceCapacity bool
}

// NewEnrollmentRepository constructs the repository. When enforceCapacity is false the seat counter is
// still maintained but never blocks an enrollment.
func NewEnrollmentRepository(db *sqlx.DB, enforceCapacity bool) *EnrollmentRepository {
	return &EnrollmentRepository{db: db, enforceCapacity: enforceCapacity}
}

// Create takes a seat for the student. A dropped row for the same pair is reactivated; any other
// existing row yields ErrDuplicateEnrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	now := time.Now().UTC()
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var existing models.Enrollment
		lockQuery := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE student_id = $1 AND schedule_id = $2 FOR UPDATE`
		err := tx.GetContext(ctx, &existing, lockQuery, enrollment.StudentID, enrollment.ScheduleID)
		switch {
		case err == nil && existing.Status != models.EnrollmentStatusDropped:
			return appErrors.Clone(appErrors.ErrDuplicateEnrollment, "")
		case err != nil && !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("lock enrollment: %w", err)
		}

		if err := reserveSeat(ctx, tx, enrollment.ScheduleID, r.enforceCapacity); err != nil {
			return err
		}

		enrollment.Status = models.EnrollmentStatusEnrolled
		enrollment.EnrollmentDate = now
		enrollment.UpdatedAt = now

		if existing.ID != "" {
			enrollment.ID = existing.ID
			enrollment.CreatedAt = existing.CreatedAt
			const reactivate = `UPDATE enrollments SET status = $2, enrollment_date = $3, updated_at = $3 WHERE id = $1`
			if _, err := tx.ExecContext(ctx, reactivate, enrollment.ID, enrollment.Status, now); err != nil {
				return fmt.Errorf("reactivate enrollment: %w", err)
			}
			return nil
		}

		if enrollment.ID == "" {
			enrollment.ID = uuid.NewString()
		}
		enrollment.CreatedAt = now
		const insert = `INSERT INTO enrollments (id, student_id, schedule_id, status, enrollment_date, created_at, updated_at)
		VALUES (:id, :student_id, :schedule_id, :status, :enrollment_date, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, insert, enrollment); err != nil {
			return fmt.Errorf("create enrollment: %w", err)
		}
		return nil
	})
	if isUniqueViolation(err) {
		return appErrors.Clone(appErrors.ErrDuplicateEnrollment, "")
	}
	return err
}

// FindByID returns an enrollment by its id.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, `SELECT `+enrollmentColumns+` FROM enrollments WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	var conditions []string
	var args []interface{}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.ScheduleID != "" {
		args = append(args, filter.ScheduleID)
		conditions = append(conditions, fmt.Sprintf("schedule_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	page, size := normalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM enrollments%s ORDER BY enrollment_date DESC LIMIT %d OFFSET %d", enrollmentColumns, where, size, (page-1)*size)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM enrollments"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// UpdateStatus changes the status and keeps the schedule's seat counter in step with it.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) (*models.Enrollment, error) {
	var updated models.Enrollment
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var current models.Enrollment
		if err := tx.GetContext(ctx, &current, `SELECT `+enrollmentColumns+` FROM enrollments WHERE id = $1 FOR UPDATE`, id); err != nil {
			return err
		}

		switch {
		case current.Status.HoldsSeat() && !status.HoldsSeat():
			if err := releaseSeat(ctx, tx, current.ScheduleID); err != nil {
				return err
			}
		case !current.Status.HoldsSeat() && status.HoldsSeat():
			if err := reserveSeat(ctx, tx, current.ScheduleID, r.enforceCapacity); err != nil {
				return err
			}
		}

		query := `UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1 RETURNING ` + enrollmentColumns
		if err := tx.GetContext(ctx, &updated, query, id, status, time.Now().UTC()); err != nil {
			return fmt.Errorf("update enrollment status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes an enrollment, freeing its seat when it still held one.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var removed models.Enrollment
		query := `DELETE FROM enrollments WHERE id = $1 RETURNING ` + enrollmentColumns
		if err := tx.GetContext(ctx, &removed, query, id); err != nil {
			return err
		}
		if removed.Status.HoldsSeat() {
			return releaseSeat(ctx, tx, removed.ScheduleID)
		}
		return nil
	})
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
