package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Headers: []string{"Student", "Status"},
		Rows: []map[string]string{
			{"Student": "2026-0001", "Status": "approved"},
			{"Student": "2026-0002, Jr.", "Status": "rejected"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	require.Equal(t, "Student,Status\n2026-0001,approved\n\"2026-0002, Jr.\",rejected\n", string(out))

	_, err = NewCSVExporter().Render(Dataset{})
	require.Error(t, err)
}

func TestCSVExporterNeutralizesFormulas(t *testing.T) {
	var buf bytes.Buffer
	err := NewCSVExporter().Write(&buf, Dataset{
		Headers: []string{"Name"},
		Rows:    []map[string]string{{"Name": "=HYPERLINK(1)"}, {"Name": "-5"}, {"Name": "Ana-Marie"}},
	})
	require.NoError(t, err)
	require.Equal(t, "Name\n'=HYPERLINK(1)\n'-5\nAna-Marie\n", buf.String())
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset(), "Enrollment Applications")
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestPDFExporterRenderDocument(t *testing.T) {
	out, err := NewPDFExporter().RenderDocument(Document{
		Title:  "Certificate of Registration",
		Fields: []Field{{Label: "Student No.", Value: "2026-0001"}},
		Table:  sampleDataset(),
		Footer: "Generated by the registrar",
	})
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	_, err = NewPDFExporter().RenderDocument(Document{})
	require.Error(t, err)
}
