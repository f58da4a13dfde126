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

var applicationRowColumns = []string{"id", "student_id", "course_id", "academic_year", "semester", "enrollment_data",
	"selected_subjects", "status", "accounting_approved_by", "accounting_approved_at", "registrar_approved_by",
	"registrar_approved_at", "notes", "rejection_reason", "submitted_at", "updated_at",
	"student_user_id", "student_number", "first_name", "last_name", "email"}

func TestApplicationSubmitCreatesApplicantAndNotification(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentApplicationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO students").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO enrollment_applications").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "2026-2027", "1st", `{"firstName":"Ana"}`, `[]`,
			models.ApplicationStatusPendingPayment, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO notifications").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	user := &models.User{Email: "ana@example.edu"}
	student := &models.Student{StudentNumber: "2026-0001", FirstName: "Ana"}
	app := &models.EnrollmentApplication{AcademicYear: "2026-2027", Semester: "1st", EnrollmentData: []byte(`{"firstName":"Ana"}`)}
	note := &models.Notification{Message: "submitted"}

	err := repo.Submit(context.Background(), SubmitApplicationParams{NewUser: user, NewStudent: student, Application: app, Notification: note})
	require.NoError(t, err)
	assert.Equal(t, student.ID, app.StudentID)
	assert.Equal(t, user.ID, student.UserID)
	assert.Equal(t, user.ID, note.UserID)
	require.NotNil(t, note.RequestID)
	assert.Equal(t, app.ID, *note.RequestID)
	assert.Equal(t, models.ApplicationStatusPendingPayment, app.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationSubmitDuplicateStudentNumber(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentApplicationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO students").WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	student := &models.Student{UserID: "u-7", StudentNumber: "2026-0001"}
	app := &models.EnrollmentApplication{AcademicYear: "2026-2027", Semester: "1st"}

	err := repo.Submit(context.Background(), SubmitApplicationParams{NewStudent: student, Application: app})
	assert.ErrorIs(t, err, appErrors.ErrInvalidInput)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationTransitionIsConditional(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentApplicationRepository(db)

	at := time.Now().UTC()
	notes := "paid in full"
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_applications SET status = $1, updated_at = $2, accounting_approved_by = $3, accounting_approved_at = $4, notes = $5 WHERE id = $6 AND status = $7")).
		WithArgs(models.ApplicationStatusPaymentApproved, at, "acct-1", at, notes, "app-1", models.ApplicationStatusPendingPayment).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO notifications").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.Transition(context.Background(), models.ApplicationTransition{
		ID: "app-1", From: models.ApplicationStatusPendingPayment, To: models.ApplicationStatusPaymentApproved,
		ActorID: "acct-1", At: at, Notes: &notes,
	}, &models.Notification{UserID: "u-1", Message: "payment approved"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationTransitionLostRace(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentApplicationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE enrollment_applications").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Transition(context.Background(), models.ApplicationTransition{
		ID: "app-1", From: models.ApplicationStatusPendingPayment, To: models.ApplicationStatusPaymentApproved,
		ActorID: "acct-1", At: time.Now(),
	}, &models.Notification{UserID: "u-1", Message: "payment approved"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRejectionRecordsReason(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentApplicationRepository(db)

	reason := "missing transcript"
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET status = $1, updated_at = $2, rejection_reason = $3 WHERE id = $4 AND status = $5")).
		WithArgs(models.ApplicationStatusRejected, sqlmock.AnyArg(), reason, "app-1", models.ApplicationStatusPaymentApproved).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO notifications").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.Transition(context.Background(), models.ApplicationTransition{
		ID: "app-1", From: models.ApplicationStatusPaymentApproved, To: models.ApplicationStatusRejected,
		ActorID: "reg-1", At: time.Now(), RejectionReason: &reason,
	}, &models.Notification{UserID: "u-1", Message: "rejected"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationListScopesByStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentApplicationRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(applicationRowColumns).
		AddRow("app-1", "stu-1", nil, "2026-2027", "1st", []byte(`{}`), []byte(`[]`), "pending_payment", nil, nil, nil, nil, nil, nil, now, now,
			"u-1", "2026-0001", "Ana", "Reyes", "ana@example.edu")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE a.status = ANY($1) ORDER BY a.submitted_at DESC LIMIT 20 OFFSET 0")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollment_applications a JOIN students s ON s.id = a.student_id WHERE a.status = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.List(context.Background(), models.ApplicationFilter{
		Statuses: []models.ApplicationStatus{models.ApplicationStatusPendingPayment, models.ApplicationStatusPaymentApproved},
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "u-1", items[0].StudentUserID)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationCountByStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentApplicationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT a.status, COUNT(*) AS total FROM enrollment_applications a WHERE a.status = ANY($1) GROUP BY a.status")).
		WillReturnRows(sqlmock.NewRows([]string{"status", "total"}).AddRow("approved", 4).AddRow("rejected", 1))

	counts, err := repo.CountByStatus(context.Background(), []models.ApplicationStatus{models.ApplicationStatusApproved, models.ApplicationStatusRejected})
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, 4, counts[0].Total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
