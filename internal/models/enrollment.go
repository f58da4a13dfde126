package models

import "time"

// EnrollmentStatus represents the lifecycle of a seat in a schedule.
type EnrollmentStatus string

const (
	EnrollmentStatusEnrolled EnrollmentStatus = "enrolled"
	EnrollmentStatusAssessed EnrollmentStatus = "assessed"
	EnrollmentStatusDropped  EnrollmentStatus = "dropped"
)

// Valid reports whether the status is one of the declared values.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusEnrolled, EnrollmentStatusAssessed, EnrollmentStatusDropped:
		return true
	}
	return false
}

// HoldsSeat reports whether an enrollment in this status occupies capacity.
func (s EnrollmentStatus) HoldsSeat() bool {
	return s == EnrollmentStatusEnrolled || s == EnrollmentStatusAssessed
}

// Enrollment is one student occupying one seat in one schedule.
type Enrollment struct {
	ID             string           `db:"id" json:"id"`
	StudentID      string           `db:"student_id" json:"studentId"`
	ScheduleID     string           `db:"schedule_id" json:"scheduleId"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	EnrollmentDate time.Time        `db:"enrollment_date" json:"enrollmentDate"`
	CreatedAt      time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updatedAt"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID  string
	ScheduleID string
	Status     EnrollmentStatus
	Page       int
	PageSize   int
}
