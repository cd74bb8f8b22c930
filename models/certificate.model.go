package models

import "time"

// Certificate is one issued document. CertificateNo is the business key.
type Certificate struct {
	ID            uint      `json:"_id" gorm:"primaryKey"`
	CertificateNo string    `json:"certificateNo" gorm:"uniqueIndex;not null"`
	Name          string    `json:"name" gorm:"default:''"`
	Hospital      string    `json:"hospital" gorm:"index;default:''"`
	DOI           string    `json:"doi" gorm:"column:doi;default:''"` // DD-MM-YYYY, free text tolerated
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// CertificateView is a certificate merged with its approval flag. It is never persisted.
type CertificateView struct {
	Certificate
	IsApproved bool `json:"isApproved"`
}
