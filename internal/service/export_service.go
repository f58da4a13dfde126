package service

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/registrar-api/internal/dto"
	"github.com/noah-isme/registrar-api/internal/models"
	"github.com/noah-isme/registrar-api/pkg/export"
)

// Export formats accepted by the application export endpoint.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
	RenderDocument(doc export.Document) ([]byte, error)
}

var applicationExportHeaders = []string{"Student No.", "Name", "Email", "Academic Year", "Semester", "Status", "Submitted", "Payment Approved", "Registrar Approved"}

// ExportService renders enrollment applications into downloadable documents.
type ExportService struct {
	csv csvRenderer
	pdf pdfRenderer
	now func() time.Time
}

// NewExportService constructs an ExportService with the default renderers when none are supplied.
func NewExportService(csv csvRenderer, pdf pdfRenderer) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{csv: csv, pdf: pdf, now: time.Now}
}

// RenderApplications renders the list in the requested format.
func (s *ExportService) RenderApplications(items []models.EnrollmentApplicationDetail, format string) (*dto.ApplicationExport, error) {
	dataset := export.Dataset{Headers: applicationExportHeaders, Rows: make([]map[string]string, 0, len(items))}
	for _, item := range items {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student No.":        item.StudentNumber,
			"Name":               strings.TrimSpace(item.FirstName + " " + item.LastName),
			"Email":              item.Email,
			"Academic Year":      item.AcademicYear,
			"Semester":           item.Semester,
			"Status":             string(item.Status),
			"Submitted":          item.SubmittedAt.Format("2006-01-02"),
			"Payment Approved":   formatOptionalTime(item.AccountingApprovedAt),
			"Registrar Approved": formatOptionalTime(item.RegistrarApprovedAt),
		})
	}

	stamp := s.now().UTC().Format("20060102-150405")
	switch strings.ToLower(format) {
	case "", ExportFormatCSV:
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, err
		}
		return &dto.ApplicationExport{Filename: fmt.Sprintf("enrollment-applications-%s.csv", stamp), ContentType: "text/csv", Content: content}, nil
	case ExportFormatPDF:
		content, err := s.pdf.Render(dataset, "Enrollment Applications")
		if err != nil {
			return nil, err
		}
		return &dto.ApplicationExport{Filename: fmt.Sprintf("enrollment-applications-%s.pdf", stamp), ContentType: "application/pdf", Content: content}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// RenderCertificate builds the Certificate of Registration for an approved application.
func (s *ExportService) RenderCertificate(app models.EnrollmentApplicationDetail) (*dto.ApplicationExport, error) {
	doc := export.Document{
		Title:    "Certificate of Registration",
		Subtitle: strings.TrimSpace(fmt.Sprintf("Academic Year %s %s Semester", app.AcademicYear, app.Semester)),
		Fields: []export.Field{
			{Label: "Student No.", Value: app.StudentNumber},
			{Label: "Name", Value: strings.TrimSpace(app.FirstName + " " + app.LastName)},
			{Label: "Email", Value: app.Email},
			{Label: "Status", Value: string(app.Status)},
			{Label: "Approved", Value: formatOptionalTime(app.RegistrarApprovedAt)},
		},
		Table:  subjectsDataset(app.SelectedSubjects),
		Footer: fmt.Sprintf("Issued %s. Application %s.", s.now().UTC().Format("2006-01-02"), app.ID),
	}
	content, err := s.pdf.RenderDocument(doc)
	if err != nil {
		return nil, err
	}
	return &dto.ApplicationExport{
		Filename:    fmt.Sprintf("cor-%s.pdf", app.StudentNumber),
		ContentType: "application/pdf",
		Content:     content,
	}, nil
}

// subjectsDataset flattens the opaque selected subjects payload. Objects contribute their code, name and
// units; plain values are listed as-is. Anything unparsable yields an empty table.
func subjectsDataset(raw json.RawMessage) export.Dataset {
	var entries []interface{}
	if len(raw) == 0 || json.Unmarshal(raw, &entries) != nil || len(entries) == 0 {
		return export.Dataset{}
	}
	dataset := export.Dataset{Headers: []string{"Code", "Subject", "Units"}}
	for _, entry := range entries {
		switch v := entry.(type) {
		case map[string]interface{}:
			dataset.Rows = append(dataset.Rows, map[string]string{
				"Code":    formString(v, "code", "subjectCode", "id"),
				"Subject": formString(v, "name", "title", "subjectName", "description"),
				"Units":   formString(v, "units", "unit", "credits"),
			})
		default:
			dataset.Rows = append(dataset.Rows, map[string]string{"Subject": fmt.Sprint(v)})
		}
	}
	return dataset
}

func formatOptionalTime(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return ts.UTC().Format("2006-01-02 15:04")
}
