package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSerialToDOI(t *testing.T) {
	tests := []struct {
		name   string
		serial float64
		want   string
	}{
		{"new year 2023", 44927, "01-01-2023"},
		{"fractional serial keeps the day", 44927.75, "01-01-2023"},
		{"leap day 2024", 45351, "29-02-2024"},
		{"zero", 0, ""},
		{"negative", -5, ""},
		{"before 1901", 100, ""},
		{"beyond 9999", 3000000, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SerialToDOI(tt.serial))
		})
	}
}

func TestNormalizeDOI(t *testing.T) {
	doi, ok := NormalizeDOI(NumberCell(44927))
	assert.True(t, ok)
	assert.Equal(t, "01-01-2023", doi)

	doi, ok = NormalizeDOI(NumberCell(0))
	assert.False(t, ok)
	assert.Empty(t, doi)

	// free text is never validated
	doi, ok = NormalizeDOI(TextCell("  31st August 2023 "))
	assert.True(t, ok)
	assert.Equal(t, "31st August 2023", doi)

	doi, ok = NormalizeDOI(TextCell("2/13/2024"))
	assert.True(t, ok)
	assert.Equal(t, "2/13/2024", doi)

	doi, ok = NormalizeDOI(Cell{})
	assert.True(t, ok)
	assert.Empty(t, doi)
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "Jane Doe", NormalizeText(TextCell("  Jane Doe\t")))
	assert.Equal(t, "1001", NormalizeText(NumberCell(1001)))
}

func TestIsSpreadsheet(t *testing.T) {
	assert.True(t, IsSpreadsheet(mimeXLSX, "upload.bin"))
	assert.True(t, IsSpreadsheet("application/vnd.ms-excel; charset=binary", "x"))
	assert.True(t, IsSpreadsheet("application/octet-stream", "Batch.XLSX"))
	assert.True(t, IsSpreadsheet("", "old.xls"))
	assert.False(t, IsSpreadsheet("text/csv", "certs.csv"))
}
