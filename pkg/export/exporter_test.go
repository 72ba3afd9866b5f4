package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "Electives 2024",
		Headers: []string{"student_id", "course_code"},
		Rows: []map[string]string{
			{"student_id": "1XX21CS001", "course_code": "23NHOP707"},
			{"student_id": "1XX21ME002", "course_code": "23NHOP711"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "student_id,course_code\n1XX21CS001,23NHOP707\n1XX21ME002,23NHOP711\n", string(out))
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestXLSXExporterRender(t *testing.T) {
	out, err := NewXLSXExporter().Render(sampleDataset())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	rows, err := f.GetRows(xlsxSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"student_id", "course_code"}, rows[0])
	assert.Equal(t, []string{"1XX21ME002", "23NHOP711"}, rows[2])
}

func TestRendererRequiresHeaders(t *testing.T) {
	for format, renderer := range DefaultRegistry() {
		_, err := renderer.Render(Dataset{})
		assert.Error(t, err, string(format))
	}
}

func TestRegistryUnknownFormat(t *testing.T) {
	_, err := DefaultRegistry().Renderer("docx")
	assert.Error(t, err)
}
