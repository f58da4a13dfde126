package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/registrar-api/internal/models"
	"github.com/noah-isme/registrar-api/pkg/database"
)

const (
	requestColumns      = `id, student_id, document_type, purpose, status, notes, file_path, created_at, updated_at`
	requestDetailSelect = `SELECT r.id, r.student_id, r.document_type, r.purpose, r.status, r.notes, r.file_path,
	r.created_at, r.updated_at, s.user_id AS student_user_id, s.student_number, s.first_name, s.last_name, s.email
	FROM requests r
	JOIN students s ON s.id = r.student_id`
)

// DocumentRequestRepository persists document requests.
type DocumentRequestRepository struct {
	db *sqlx.DB
}

// NewDocumentRequestRepository constructs the repository.
func NewDocumentRequestRepository(db *sqlx.DB) *DocumentRequestRepository {
	return &DocumentRequestRepository{db: db}
}

// Create stores the request and its submission notification in one transaction.
func (r *DocumentRequestRepository) Create(ctx context.Context, req *models.DocumentRequest, n *models.Notification) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.RequestStatusPending
	}
	if req.FilePath == nil {
		req.FilePath = pq.StringArray{}
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const query = `INSERT INTO requests (id, student_id, document_type, purpose, status, notes, file_path, created_at, updated_at)
		VALUES (:id, :student_id, :document_type, :purpose, :status, :notes, :file_path, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, req); err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		if n == nil {
			return nil
		}
		n.RequestID = &req.ID
		return insertNotification(ctx, tx, n)
	})
}

// FindByID returns a request joined with its owner.
func (r *DocumentRequestRepository) FindByID(ctx context.Context, id string) (*models.DocumentRequestDetail, error) {
	var detail models.DocumentRequestDetail
	if err := r.db.GetContext(ctx, &detail, requestDetailSelect+` WHERE r.id = $1`, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListByStudent returns the student's own requests, newest first.
func (r *DocumentRequestRepository) ListByStudent(ctx context.Context, studentID string) ([]models.DocumentRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE student_id = $1 ORDER BY created_at DESC`
	var items []models.DocumentRequest
	if err := r.db.SelectContext(ctx, &items, query, studentID); err != nil {
		return nil, fmt.Errorf("list student requests: %w", err)
	}
	return items, nil
}

// ListAll returns every request with the owning student's display attributes.
func (r *DocumentRequestRepository) ListAll(ctx context.Context) ([]models.DocumentRequestDetail, error) {
	var items []models.DocumentRequestDetail
	if err := r.db.SelectContext(ctx, &items, requestDetailSelect+` ORDER BY r.created_at DESC`); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return items, nil
}

// UpdateStatus sets status and notes and appends the owner's notification atomically.
func (r *DocumentRequestRepository) UpdateStatus(ctx context.Context, id string, status models.RequestStatus, notes *string, n *models.Notification) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const query = `UPDATE requests SET status = $2, notes = COALESCE($3, notes), updated_at = $4 WHERE id = $1`
		res, err := tx.ExecContext(ctx, query, id, status, notes, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("update request status: %w", err)
		}
		if err := requireAffected(res); err != nil {
			return err
		}
		if n == nil {
			return nil
		}
		n.RequestID = &id
		return insertNotification(ctx, tx, n)
	})
}

// Delete hard-deletes the request and returns the stored file identifiers it referenced.
func (r *DocumentRequestRepository) Delete(ctx context.Context, id string) ([]string, error) {
	var files pq.StringArray
	if err := r.db.GetContext(ctx, &files, `DELETE FROM requests WHERE id = $1 RETURNING file_path`, id); err != nil {
		return nil, err
	}
	return files, nil
}
