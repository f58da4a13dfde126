package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/registrar-api/internal/models"
	appErrors "github.com/noah-isme/registrar-api/pkg/errors"
)

const scheduleColumns = `id, subject_id, term_id, day_of_week, start_time, end_time, room, max_students, current_enrolled, is_active, created_at, updated_at`

// ScheduleRepository reads course offerings and maintains their seat counters.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs the repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// FindByID returns a schedule by id.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = $1`
	var schedule models.Schedule
	if err := r.db.GetContext(ctx, &schedule, query, id); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// reserveSeat increments current_enrolled. With enforce set the increment only lands while a seat remains.
func reserveSeat(ctx context.Context, tx *sqlx.Tx, scheduleID string, enforce bool) error {
	query := `UPDATE schedules SET current_enrolled = current_enrolled + 1, updated_at = $2 WHERE id = $1 AND is_active = TRUE`
	if enforce {
		query += ` AND current_enrolled < max_students`
	}
	res, err := tx.ExecContext(ctx, query, scheduleID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reserve seat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve seat: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM schedules WHERE id = $1 AND is_active = TRUE)`, scheduleID); err != nil {
		return fmt.Errorf("check schedule: %w", err)
	}
	if !exists {
		return appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
	}
	return appErrors.Clone(appErrors.ErrScheduleFull, "")
}

func releaseSeat(ctx context.Context, tx *sqlx.Tx, scheduleID string) error {
	const query = `UPDATE schedules SET current_enrolled = GREATEST(current_enrolled - 1, 0), updated_at = $2 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, scheduleID, time.Now().UTC()); err != nil {
		return fmt.Errorf("release seat: %w", err)
	}
	return nil
}
