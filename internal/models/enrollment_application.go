package models

import (
	"encoding/json"
	"time"
)

// ApplicationStatus enumerates the enrollment application pipeline states.
type ApplicationStatus string

const (
	ApplicationStatusPendingPayment  ApplicationStatus = "pending_payment"
	ApplicationStatusPaymentApproved ApplicationStatus = "payment_approved"
	// ApplicationStatusPendingRegistrarReview is accepted as a filter value but no transition assigns it.
	ApplicationStatusPendingRegistrarReview ApplicationStatus = "pending_registrar_review"
	ApplicationStatusApproved               ApplicationStatus = "approved"
	ApplicationStatusRejected               ApplicationStatus = "rejected"
)

// Valid reports whether the status is part of the declared enum.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationStatusPendingPayment, ApplicationStatusPaymentApproved, ApplicationStatusPendingRegistrarReview,
		ApplicationStatusApproved, ApplicationStatusRejected:
		return true
	}
	return false
}

// ReviewAction is the registrar's decision discriminator.
type ReviewAction string

const (
	ReviewActionApprove ReviewAction = "approve"
	ReviewActionReject  ReviewAction = "reject"
)

// EnrollmentApplication is one term's enrollment submission awaiting approvals.
type EnrollmentApplication struct {
	ID                   string            `db:"id" json:"id"`
	StudentID            string            `db:"student_id" json:"studentId"`
	CourseID             *string           `db:"course_id" json:"courseId"`
	AcademicYear         string            `db:"academic_year" json:"academicYear"`
	Semester             string            `db:"semester" json:"semester"`
	EnrollmentData       json.RawMessage   `db:"enrollment_data" json:"enrollmentData"`
	SelectedSubjects     json.RawMessage   `db:"selected_subjects" json:"selectedSubjects"`
	Status               ApplicationStatus `db:"status" json:"status"`
	AccountingApprovedBy *string           `db:"accounting_approved_by" json:"accountingApprovedBy"`
	AccountingApprovedAt *time.Time        `db:"accounting_approved_at" json:"accountingApprovedAt"`
	RegistrarApprovedBy  *string           `db:"registrar_approved_by" json:"registrarApprovedBy"`
	RegistrarApprovedAt  *time.Time        `db:"registrar_approved_at" json:"registrarApprovedAt"`
	Notes                *string           `db:"notes" json:"notes"`
	RejectionReason      *string           `db:"rejection_reason" json:"rejectionReason"`
	SubmittedAt          time.Time         `db:"submitted_at" json:"submittedAt"`
	UpdatedAt            time.Time         `db:"updated_at" json:"updatedAt"`
}

// EnrollmentApplicationDetail joins the owning student's display attributes.
type EnrollmentApplicationDetail struct {
	EnrollmentApplication
	StudentUserID string `db:"student_user_id" json:"studentUserId"`
	StudentNumber string `db:"student_number" json:"studentNumber"`
	FirstName     string `db:"first_name" json:"firstName"`
	LastName      string `db:"last_name" json:"lastName"`
	Email         string `db:"email" json:"email"`
}

// ApplicationFilter scopes application listings.
type ApplicationFilter struct {
	Statuses  []ApplicationStatus
	StudentID string
	Page      int
	PageSize  int
}

// ApplicationTransition describes a guarded status change on one application.
type ApplicationTransition struct {
	ID              string
	From            ApplicationStatus
	To              ApplicationStatus
	ActorID         string
	At              time.Time
	Notes           *string
	RejectionReason *string
}

// ApplicationStatusCount is a single bucket of the dashboard breakdown.
type ApplicationStatusCount struct {
	Status ApplicationStatus `db:"status" json:"status"`
	Total  int               `db:"total" json:"total"`
}

// ApplicationStats summarises applications by status for dashboards.
type ApplicationStats struct {
	Role     UserRole                 `json:"role"`
	Total    int                      `json:"total"`
	ByStatus []ApplicationStatusCount `json:"byStatus"`
}
