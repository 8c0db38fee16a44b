package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BlockRequestStatus represents the status of a block request.
type BlockRequestStatus string

const (
	BlockRequestPending  BlockRequestStatus = "PENDING"
	BlockRequestApproved BlockRequestStatus = "APPROVED"
	BlockRequestRejected BlockRequestStatus = "REJECTED"
)

// BlockRequest is a card owner's request to block a card, resolved by an admin.
type BlockRequest struct {
	ID          uuid.UUID          `json:"id" gorm:"type:char(36);primaryKey"`
	CardID      uuid.UUID          `json:"card_id" gorm:"type:char(36);not null;index"`
	RequestedBy uuid.UUID          `json:"requested_by" gorm:"type:char(36);not null;index"`
	Status      BlockRequestStatus `json:"status" gorm:"type:varchar(16);not null;default:'PENDING';index"`
	Comment     string             `json:"comment,omitempty" gorm:"type:text"`
	Reason      string             `json:"reason,omitempty" gorm:"type:text"`
	CreatedAt   time.Time          `json:"created_at"`
	ResolvedAt  *time.Time         `json:"resolved_at,omitempty"`
}

// BeforeCreate sets UUID before creating the record.
func (b *BlockRequest) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Resolve moves a pending request to a terminal status.
func (b *BlockRequest) Resolve(status BlockRequestStatus, reason string, at time.Time) {
	b.Status = status
	b.Reason = reason
	b.ResolvedAt = &at
}
