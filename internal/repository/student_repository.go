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

	"github.com/noah-isme/registrar-api/internal/models"
	"github.com/noah-isme/registrar-api/pkg/database"
	appErrors "github.com/noah-isme/registrar-api/pkg/errors"
)

const studentColumns = `id, user_id, course_id, student_number, first_name, middle_name, last_name, suffix, email,
	contact_number, address, gender, birth_date, year_level, previous_school, year_graduated, guardian_name,
	guardian_contact, academic_status, is_active, created_at, updated_at`

// StudentRepository handles persistence for student profiles.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a new repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID returns a student by identifier.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	return r.findOne(ctx, "id::text = $1", id)
}

// FindByUserID returns the first student profile linked to a user.
func (r *StudentRepository) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	return r.findOne(ctx, "user_id = $1", userID)
}

// FindByExternalID resolves either the internal id or the student number.
func (r *StudentRepository) FindByExternalID(ctx context.Context, ref string) (*models.Student, error) {
	return r.findOne(ctx, "(id::text = $1 OR student_number = $1)", ref)
}

func (r *StudentRepository) findOne(ctx context.Context, condition string, arg interface{}) (*models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE %s ORDER BY created_at ASC LIMIT 1`, studentColumns, condition)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &student, nil
}

// List returns active students matching filters and the total count.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	conditions := []string{"is_active = TRUE"}
	var args []interface{}

	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf(
			"(LOWER(first_name) LIKE $%[1]d OR LOWER(last_name) LIKE $%[1]d OR LOWER(student_number) LIKE $%[1]d OR LOWER(email) LIKE $%[1]d)",
			len(args)))
	}
	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("academic_status = $%d", len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	allowedSorts := map[string]bool{
		"last_name":      true,
		"student_number": true,
		"created_at":     true,
	}
	sortBy := filter.SortBy
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}
	page, size := normalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM students%s ORDER BY %s %s LIMIT %d OFFSET %d",
		studentColumns, where, sortBy, sortOrder, size, (page-1)*size)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM students"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// CreateWithUser stores a login and its student profile atomically.
func (r *StudentRepository) CreateWithUser(ctx context.Context, user *models.User, student *models.Student) error {
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := insertUser(ctx, tx, user); err != nil {
			return err
		}
		student.UserID = user.ID
		return insertStudent(ctx, tx, student)
	})
	if isUniqueViolation(err) {
		return appErrors.Clone(appErrors.ErrInvalidInput, "email or student number already registered")
	}
	return err
}

// UpdateStatus changes the academic status of an active student.
func (r *StudentRepository) UpdateStatus(ctx context.Context, id string, status models.AcademicStatus) error {
	const query = `UPDATE students SET academic_status = $2, updated_at = $3 WHERE id = $1 AND is_active = TRUE`
	res, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update student status: %w", err)
	}
	return requireAffected(res)
}

// SoftDelete marks the student inactive.
func (r *StudentRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE students SET is_active = FALSE, updated_at = $2 WHERE id = $1 AND is_active = TRUE`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("soft delete student: %w", err)
	}
	return requireAffected(res)
}

func insertStudent(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	if student.AcademicStatus == "" {
		student.AcademicStatus = models.AcademicStatusRegular
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	student.IsActive = true

	const query = `INSERT INTO students (id, user_id, course_id, student_number, first_name, middle_name, last_name, suffix,
	email, contact_number, address, gender, birth_date, year_level, previous_school, year_graduated, guardian_name,
	guardian_contact, academic_status, is_active, created_at, updated_at)
	VALUES (:id, :user_id, :course_id, :student_number, :first_name, :middle_name, :last_name, :suffix, :email,
	:contact_number, :address, :gender, :birth_date, :year_level, :previous_school, :year_graduated, :guardian_name,
	:guardian_contact, :academic_status, :is_active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}

// requireAffected maps a zero-row write to sql.ErrNoRows so callers can tell missing rows from failures.
func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
