package models

import "time"

// AcademicStatus captures where a student stands academically.
type AcademicStatus string

const (
	AcademicStatusRegular   AcademicStatus = "regular"
	AcademicStatusIrregular AcademicStatus = "irregular"
	AcademicStatusProbation AcademicStatus = "probation"
	AcademicStatusGraduated AcademicStatus = "graduated"
	AcademicStatusWithdrawn AcademicStatus = "withdrawn"
)

// Student is a learner's academic profile, one per user by convention.
type Student struct {
	ID             string         `db:"id" json:"id"`
	UserID         string         `db:"user_id" json:"userId"`
	CourseID       *string        `db:"course_id" json:"courseId"`
	StudentNumber  string         `db:"student_number" json:"studentNumber"`
	FirstName      string         `db:"first_name" json:"firstName"`
	MiddleName     string         `db:"middle_name" json:"middleName"`
	LastName       string         `db:"last_name" json:"lastName"`
	Suffix         string         `db:"suffix" json:"suffix"`
	Email          string         `db:"email" json:"email"`
	ContactNumber  string         `db:"contact_number" json:"contactNumber"`
	Address        string         `db:"address" json:"address"`
	Gender         string         `db:"gender" json:"gender"`
	BirthDate      string         `db:"birth_date" json:"birthDate"`
	YearLevel      string         `db:"year_level" json:"yearLevel"`
	PreviousSchool string         `db:"previous_school" json:"previousSchool"`
	YearGraduated  int            `db:"year_graduated" json:"yearGraduated"`
	GuardianName   string         `db:"guardian_name" json:"guardianName"`
	GuardianPhone  string         `db:"guardian_contact" json:"guardianContact"`
	AcademicStatus AcademicStatus `db:"academic_status" json:"academicStatus"`
	IsActive       bool           `db:"is_active" json:"isActive"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updatedAt"`
}

// FullName joins the name parts for display.
func (s Student) FullName() string {
	name := s.FirstName
	if s.MiddleName != "" {
		name += " " + s.MiddleName
	}
	if s.LastName != "" {
		name += " " + s.LastName
	}
	if s.Suffix != "" {
		name += " " + s.Suffix
	}
	return name
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	CourseID  string
	Status    AcademicStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
