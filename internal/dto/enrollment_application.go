package dto

import (
	"encoding/json"

	"github.com/noah-isme/registrar-api/internal/models"
)

// SubmitApplicationRequest is the permissive intake payload. Missing business fields are defaulted.
type SubmitApplicationRequest struct {
	StudentID        string          `json:"studentId"`
	CourseID         string          `json:"courseId"`
	AcademicYear     string          `json:"academicYear"`
	Semester         string          `json:"semester"`
	EnrollmentData   json.RawMessage `json:"enrollmentData"`
	SelectedSubjects json.RawMessage `json:"selectedSubjects"`
}

// ApprovePaymentRequest carries the accounting attestation note.
type ApprovePaymentRequest struct {
	Notes string `json:"notes"`
}

// ReviewApplicationRequest captures the registrar decision.
type ReviewApplicationRequest struct {
	Action          models.ReviewAction `json:"action"`
	RejectionReason string              `json:"rejectionReason"`
	Notes           string              `json:"notes"`
}

// ApplicationQuery mirrors the list query string.
type ApplicationQuery struct {
	Status   []models.ApplicationStatus
	Page     int
	PageSize int
}

// ApplicationExport is a rendered export ready to stream.
type ApplicationExport struct {
	Filename    string
	ContentType string
	Content     []byte
}
