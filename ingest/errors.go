package ingest

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTooLarge        = errors.New("file size exceeds 10MB limit")
	ErrUnsupportedType = errors.New("only .xlsx or .xls files are accepted")
	ErrUnreadable      = errors.New("unable to read spreadsheet")
	ErrEmptySheet      = errors.New("excel sheet is empty or only contains headers")
	ErrDuplicate       = errors.New("certificate No. must be unique")
)

// MissingColumnsError aborts an ingestion whose header row lacks required columns.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Columns, ", "))
}

// NoValidRowsError is returned when every data row failed processing.
type NoValidRowsError struct {
	ProcessingFailures int
}

func (e *NoValidRowsError) Error() string {
	if e.ProcessingFailures > 0 {
		return fmt.Sprintf("no valid data rows found to insert; %d rows failed initial processing", e.ProcessingFailures)
	}
	return "no valid data rows found to insert"
}

// IsValidation reports whether err is caused by the caller's input rather than
// the store.
func IsValidation(err error) bool {
	var missing *MissingColumnsError
	var noRows *NoValidRowsError
	return errors.Is(err, ErrTooLarge) ||
		errors.Is(err, ErrUnsupportedType) ||
		errors.Is(err, ErrUnreadable) ||
		errors.Is(err, ErrEmptySheet) ||
		errors.As(err, &missing) ||
		errors.As(err, &noRows)
}
