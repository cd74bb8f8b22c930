package models

import "time"

// ApprovalToken backs the signed links of one approval email. Both the approve and
// the reject link carry the same TokenID, so redeeming either one consumes it.
type ApprovalToken struct {
	ID            uint       `json:"id" gorm:"primaryKey"`
	TokenID       string     `json:"tokenId" gorm:"type:varchar(36);uniqueIndex;not null"`
	CertificateID uint       `json:"certificateId" gorm:"index;not null"`
	ExpiresAt     time.Time  `json:"expiresAt" gorm:"index;not null"`
	ConsumedAt    *time.Time `json:"consumedAt"`
	CreatedAt     time.Time  `json:"createdAt"`
}
