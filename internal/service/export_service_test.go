package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/registrar-api/internal/models"
	"github.com/noah-isme/registrar-api/pkg/export"
)

type pdfRendererStub struct {
	lastDoc export.Document
}

func (p *pdfRendererStub) Render(data export.Dataset, title string) ([]byte, error) {
	return []byte("%PDF-table"), nil
}

func (p *pdfRendererStub) RenderDocument(doc export.Document) ([]byte, error) {
	p.lastDoc = doc
	if doc.Title == "" {
		return nil, errors.New("title required")
	}
	return []byte("%PDF-doc"), nil
}

func TestExportServiceRenderApplications(t *testing.T) {
	svc := NewExportService(nil, &pdfRendererStub{})
	svc.now = func() time.Time { return time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC) }
	approvedAt := time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC)
	items := []models.EnrollmentApplicationDetail{{
		EnrollmentApplication: models.EnrollmentApplication{AcademicYear: "2026-2027", Semester: "1st", Status: models.ApplicationStatusPaymentApproved, AccountingApprovedAt: &approvedAt},
		StudentNumber:         "2026-0007",
		FirstName:             "Ana",
		LastName:              "Reyes",
	}}

	out, err := svc.RenderApplications(items, "")
	require.NoError(t, err)
	assert.Equal(t, "enrollment-applications-20260601-093000.csv", out.Filename)
	lines := strings.Split(strings.TrimSpace(string(out.Content)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "2026-0007,Ana Reyes,,2026-2027,1st,payment_approved,"))
	assert.Contains(t, lines[1], "2026-05-20 10:00")

	out, err = svc.RenderApplications(items, "PDF")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", out.ContentType)

	_, err = svc.RenderApplications(items, "xml")
	assert.Error(t, err)
}

func TestExportServiceRenderCertificate(t *testing.T) {
	pdf := &pdfRendererStub{}
	svc := NewExportService(nil, pdf)
	app := models.EnrollmentApplicationDetail{
		EnrollmentApplication: models.EnrollmentApplication{ID: "app-1", Status: models.ApplicationStatusApproved, SelectedSubjects: []byte(`[{"code":"CS101","name":"Programming","units":3},"PE1"]`)},
		StudentNumber:         "2026-0007",
	}

	out, err := svc.RenderCertificate(app)
	require.NoError(t, err)
	assert.Equal(t, "cor-2026-0007.pdf", out.Filename)
	require.Len(t, pdf.lastDoc.Table.Rows, 2)
	assert.Equal(t, "CS101", pdf.lastDoc.Table.Rows[0]["Code"])
	assert.Equal(t, "3", pdf.lastDoc.Table.Rows[0]["Units"])
	assert.Equal(t, "PE1", pdf.lastDoc.Table.Rows[1]["Subject"])
}

func TestSubjectsDatasetIgnoresMalformed(t *testing.T) {
	assert.Empty(t, subjectsDataset([]byte(`{"not":"a list"}`)).Headers)
	assert.Empty(t, subjectsDataset(nil).Headers)
}
