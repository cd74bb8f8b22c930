package models

import "time"

// ApprovalState is the gate state of a certificate's protected actions.
type ApprovalState string

const (
	StateLocked   ApprovalState = "LOCKED"
	StateUnlocked ApprovalState = "UNLOCKED"
)

// ApprovalRequest holds the gate for one certificate. A missing row means LOCKED.
type ApprovalRequest struct {
	ID            uint          `json:"id" gorm:"primaryKey"`
	CertificateID uint          `json:"certificateId" gorm:"uniqueIndex;not null"`
	CertificateNo string        `json:"certificateNo" gorm:"not null"`
	State         ApprovalState `json:"state" gorm:"type:varchar(16);not null;default:'LOCKED'"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

func (r ApprovalRequest) Unlocked() bool {
	return r.State == StateUnlocked
}
