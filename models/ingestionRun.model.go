package models

import (
	"time"

	"gorm.io/datatypes"
)

// IngestionRun records the outcome of one spreadsheet upload
type IngestionRun struct {
	ID                   uint           `json:"id" gorm:"primaryKey"`
	FileName             string         `json:"fileName"`
	TotalRows            int            `json:"totalRows"`
	SuccessfullyInserted int            `json:"successfullyInserted"`
	ProcessingFailures   int            `json:"processingFailures"`
	DBErrors             int            `json:"dbErrors"`
	RowErrors            datatypes.JSON `json:"rowErrors"`
	CreatedAt            time.Time      `json:"createdAt"`
}
