package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/registrar-api/internal/models"
	appErrors "github.com/noah-isme/registrar-api/pkg/errors"
)

var enrollmentRowColumns = []string{"id", "student_id", "schedule_id", "status", "enrollment_date", "created_at", "updated_at"}

func enrollmentRows(id string, status models.EnrollmentStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(enrollmentRowColumns).AddRow(id, "stu-1", "sch-5", string(status), now, now, now)
}

func TestEnrollmentCreateReservesSeat(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, true)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE student_id = $1 AND schedule_id = $2 FOR UPDATE")).
		WithArgs("stu-1", "sch-5").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedules SET current_enrolled = current_enrolled + 1, updated_at = $2 WHERE id = $1 AND is_active = TRUE AND current_enrolled < max_students")).
		WithArgs("sch-5", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO enrollments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	enrollment := &models.Enrollment{StudentID: "stu-1", ScheduleID: "sch-5"}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	assert.NotEmpty(t, enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	assert.False(t, enrollment.EnrollmentDate.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentCreateRejectsDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, true)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnRows(enrollmentRows("enr-1", models.EnrollmentStatusEnrolled))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Enrollment{StudentID: "stu-1", ScheduleID: "sch-5"})
	assert.ErrorIs(t, err, appErrors.ErrDuplicateEnrollment)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentCreateReactivatesDropped(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, true)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnRows(enrollmentRows("enr-1", models.EnrollmentStatusDropped))
	mock.ExpectExec("UPDATE schedules SET current_enrolled = current_enrolled \\+ 1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, enrollment_date = $3")).
		WithArgs("enr-1", models.EnrollmentStatusEnrolled, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enrollment := &models.Enrollment{StudentID: "stu-1", ScheduleID: "sch-5"}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	assert.Equal(t, "enr-1", enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentCreateScheduleFull(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, true)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("UPDATE schedules").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM schedules")).
		WithArgs("sch-5").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Enrollment{StudentID: "stu-1", ScheduleID: "sch-5"})
	assert.ErrorIs(t, err, appErrors.ErrScheduleFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentCreateUnknownSchedule(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, false)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND is_active = TRUE")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Enrollment{StudentID: "stu-1", ScheduleID: "sch-404"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentCreateConcurrentInsertMapsToDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, true)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("UPDATE schedules").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO enrollments").WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Enrollment{StudentID: "stu-1", ScheduleID: "sch-5"})
	assert.ErrorIs(t, err, appErrors.ErrDuplicateEnrollment)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentDropReleasesSeat(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, true)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE id = $1 FOR UPDATE")).
		WithArgs("enr-1").
		WillReturnRows(enrollmentRows("enr-1", models.EnrollmentStatusEnrolled))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedules SET current_enrolled = GREATEST(current_enrolled - 1, 0)")).
		WithArgs("sch-5", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1 RETURNING")).
		WithArgs("enr-1", models.EnrollmentStatusDropped, sqlmock.AnyArg()).
		WillReturnRows(enrollmentRows("enr-1", models.EnrollmentStatusDropped))
	mock.ExpectCommit()

	updated, err := repo.UpdateStatus(context.Background(), "enr-1", models.EnrollmentStatusDropped)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusDropped, updated.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentAssessKeepsCounter(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, true)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnRows(enrollmentRows("enr-1", models.EnrollmentStatusEnrolled))
	mock.ExpectQuery("UPDATE enrollments SET status").WillReturnRows(enrollmentRows("enr-1", models.EnrollmentStatusAssessed))
	mock.ExpectCommit()

	updated, err := repo.UpdateStatus(context.Background(), "enr-1", models.EnrollmentStatusAssessed)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusAssessed, updated.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentDeleteReleasesHeldSeat(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, true)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM enrollments WHERE id = $1 RETURNING")).
		WithArgs("enr-1").
		WillReturnRows(enrollmentRows("enr-1", models.EnrollmentStatusAssessed))
	mock.ExpectExec("GREATEST").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), "enr-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentDeleteMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, true)

	mock.ExpectBegin()
	mock.ExpectQuery("DELETE FROM enrollments").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	assert.ErrorIs(t, repo.Delete(context.Background(), "missing"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
