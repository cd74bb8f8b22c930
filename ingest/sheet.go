package ingest

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeXLS  = "application/vnd.ms-excel"
)

// IsSpreadsheet reports whether the declared media type or the file name
// indicates an Excel workbook.
func IsSpreadsheet(contentType, fileName string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == mimeXLSX || ct == mimeXLS {
		return true
	}
	name := strings.ToLower(fileName)
	return strings.HasSuffix(name, ".xlsx") || strings.HasSuffix(name, ".xls")
}

// ReadSheet returns every row of the workbook's first sheet. Rows are ragged:
// trailing empty cells are not included.
func ReadSheet(data []byte) ([][]Cell, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptySheet
	}
	sheet := sheets[0]

	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	rows := make([][]Cell, len(raw))
	for r, values := range raw {
		cells := make([]Cell, len(values))
		for c, v := range values {
			cells[c] = Cell{Value: v}
			if v == "" {
				continue
			}
			axis, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, err
			}
			typ, err := f.GetCellType(sheet, axis)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
			}
			cells[c].Numeric = isNumericType(typ) && isNumber(v)
		}
		rows[r] = cells
	}
	return rows, nil
}

// Number cells usually carry no type attribute at all.
func isNumericType(t excelize.CellType) bool {
	switch t {
	case excelize.CellTypeUnset, excelize.CellTypeNumber, excelize.CellTypeDate:
		return true
	}
	return false
}

func isNumber(v string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return err == nil
}
