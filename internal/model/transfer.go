package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransferStatus represents the status of a transfer.
type TransferStatus string

const (
	TransferStatusProcess   TransferStatus = "PROCESS"
	TransferStatusCompleted TransferStatus = "COMPLETED"
	TransferStatusCancelled TransferStatus = "CANCELLED"
)

// Transfer represents a card-to-card money movement between cards of one owner.
// Records are written in PROCESS before balances move and are never deleted.
type Transfer struct {
	ID                uuid.UUID       `json:"id" gorm:"type:char(36);primaryKey"`
	InitiatorID       uuid.UUID       `json:"initiator_id" gorm:"type:char(36);not null;index"`
	SourceCardID      uuid.UUID       `json:"source_card_id" gorm:"type:char(36);not null;index"`
	DestinationCardID uuid.UUID       `json:"destination_card_id" gorm:"type:char(36);not null;index"`
	Amount            decimal.Decimal `json:"amount" gorm:"type:decimal(20,2);not null"`
	Status            TransferStatus  `json:"status" gorm:"type:varchar(16);not null;default:'PROCESS';index"`
	ErrorMessage      string          `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// BeforeCreate sets UUID before creating the record.
func (t *Transfer) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
