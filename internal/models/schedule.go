package models

import "time"

// Schedule is one course offering with a bounded number of seats.
type Schedule struct {
	ID              string    `db:"id" json:"id"`
	SubjectID       string    `db:"subject_id" json:"subjectId"`
	TermID          string    `db:"term_id" json:"termId"`
	DayOfWeek       string    `db:"day_of_week" json:"dayOfWeek"`
	StartTime       string    `db:"start_time" json:"startTime"`
	EndTime         string    `db:"end_time" json:"endTime"`
	Room            string    `db:"room" json:"room"`
	MaxStudents     int       `db:"max_students" json:"maxStudents"`
	CurrentEnrolled int       `db:"current_enrolled" json:"currentEnrolled"`
	IsActive        bool      `db:"is_active" json:"isActive"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

// HasCapacity reports whether at least one seat remains.
func (s Schedule) HasCapacity() bool {
	return s.CurrentEnrolled < s.MaxStudents
}
