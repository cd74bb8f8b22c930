package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Cell is one spreadsheet cell as read from the workbook. Numeric is set when the
// workbook stores the cell as a number (date serials included).
type Cell struct {
	Value   string
	Numeric bool
}

// TextCell and NumberCell build cells without a workbook, mostly for callers
// that already hold parsed rows.
func TextCell(s string) Cell { return Cell{Value: s} }

func NumberCell(f float64) Cell {
	return Cell{Value: strconv.FormatFloat(f, 'f', -1, 64), Numeric: true}
}

// excel's last representable day, 9999-12-31
const maxDateSerial = 2958465

// SerialToDOI converts a spreadsheet date serial to DD-MM-YYYY. Serials that do
// not decode to a year after 1900 yield "".
func SerialToDOI(serial float64) string {
	if math.IsNaN(serial) || serial <= 0 || serial > maxDateSerial {
		return ""
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil || t.Year() <= 1900 {
		return ""
	}
	return fmt.Sprintf("%02d-%02d-%04d", t.Day(), int(t.Month()), t.Year())
}

// NormalizeDOI returns the canonical date-of-issue for a cell. Text is accepted
// verbatim (trimmed). ok is false only for a numeric cell that failed to decode.
func NormalizeDOI(c Cell) (doi string, ok bool) {
	raw := strings.TrimSpace(c.Value)
	if !c.Numeric {
		return raw, true
	}
	serial, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return "", false
	}
	doi = SerialToDOI(serial)
	return doi, doi != ""
}

// NormalizeText returns the trimmed text of a cell. Numeric cells keep their
// raw digits so a certificate number like 1001 does not become "1001.0".
func NormalizeText(c Cell) string {
	return strings.TrimSpace(c.Value)
}
