package models

import (
	"time"

	"github.com/lib/pq"
)

// RequestStatus enumerates document request states.
type RequestStatus string

const (
	RequestStatusPending        RequestStatus = "pending"
	RequestStatusApproved       RequestStatus = "approved"
	RequestStatusRejected       RequestStatus = "rejected"
	RequestStatusReadyForPickup RequestStatus = "ready for pick-up"
)

// Valid reports whether the status is one of the four accepted values.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusApproved, RequestStatusRejected, RequestStatusReadyForPickup:
		return true
	}
	return false
}

// DocumentRequest is one student's ask for an official document.
type DocumentRequest struct {
	ID           string         `db:"id" json:"id"`
	StudentID    string         `db:"student_id" json:"studentId"`
	DocumentType string         `db:"document_type" json:"documentType"`
	Purpose      string         `db:"purpose" json:"purpose"`
	Status       RequestStatus  `db:"status" json:"status"`
	Notes        *string        `db:"notes" json:"notes"`
	FilePath     pq.StringArray `db:"file_path" json:"filePath"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updatedAt"`
}

// DocumentRequestDetail carries the owning student's display attributes.
type DocumentRequestDetail struct {
	DocumentRequest
	StudentUserID string `db:"student_user_id" json:"studentUserId"`
	StudentNumber string `db:"student_number" json:"studentNumber"`
	FirstName     string `db:"first_name" json:"firstName"`
	LastName      string `db:"last_name" json:"lastName"`
	Email         string `db:"email" json:"email"`
}

// StoredDocument is a resolved attachment ready to stream.
type StoredDocument struct {
	Name        string
	ContentType string
	Path        string
}
