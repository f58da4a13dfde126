package dto

import "github.com/noah-isme/registrar-api/internal/models"

// CreateEnrollmentRequest asks for a seat in a schedule.
type CreateEnrollmentRequest struct {
	StudentID  string `json:"studentId"`
	ScheduleID string `json:"scheduleId" validate:"required"`
}

// UpdateEnrollmentStatusRequest is the admin status change payload.
type UpdateEnrollmentStatusRequest struct {
	Status models.EnrollmentStatus `json:"status" validate:"required,oneof=enrolled assessed dropped"`
}
