package listing

import (
	"certvault/models"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Certificates"

var exportHeader = []interface{}{"S. No.", "Certificate No.", "Name", "Hospital", "DOI", "Status"}

// StatusLabel is the export wording of an approval flag.
func StatusLabel(approved bool) string {
	if approved {
		return "Unlocked"
	}
	return "Locked"
}

// WriteXLSX writes views as a workbook with one row per certificate.
func WriteXLSX(w io.Writer, views []models.CertificateView) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		return err
	}
	if err := sw.SetRow("A1", exportHeader); err != nil {
		return err
	}
	for i, v := range views {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{i + 1, v.CertificateNo, v.Name, v.Hospital, v.DOI, StatusLabel(v.IsApproved)}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("write export row %d: %w", i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	return f.Write(w)
}
