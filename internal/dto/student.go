package dto

import "github.com/noah-isme/registrar-api/internal/models"

// CreateStudentRequest is used by admins encoding a student together with a login.
type CreateStudentRequest struct {
	Email          string  `json:"email" validate:"required,email"`
	Password       string  `json:"password" validate:"required,min=8"`
	StudentNumber  string  `json:"studentNumber" validate:"required"`
	FirstName      string  `json:"firstName" validate:"required"`
	MiddleName     string  `json:"middleName"`
	LastName       string  `json:"lastName" validate:"required"`
	Suffix         string  `json:"suffix"`
	CourseID       *string `json:"courseId"`
	ContactNumber  string  `json:"contactNumber"`
	Address        string  `json:"address"`
	Gender         string  `json:"gender"`
	BirthDate      string  `json:"birthDate"`
	YearLevel      string  `json:"yearLevel"`
	PreviousSchool string  `json:"previousSchool"`
	YearGraduated  int     `json:"yearGraduated"`
	GuardianName   string  `json:"guardianName"`
	GuardianPhone  string  `json:"guardianContact"`
}

// UpdateStudentStatusRequest changes a student's academic status.
type UpdateStudentStatusRequest struct {
	AcademicStatus models.AcademicStatus `json:"academicStatus" validate:"required,oneof=regular irregular probation graduated withdrawn"`
}
