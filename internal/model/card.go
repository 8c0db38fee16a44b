package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CardStatus represents the lifecycle status of a card.
type CardStatus string

const (
	CardStatusActive  CardStatus = "ACTIVE"
	CardStatusBlocked CardStatus = "BLOCKED"
	CardStatusExpired CardStatus = "EXPIRED"
)

// Valid reports whether s is a known status.
func (s CardStatus) Valid() bool {
	switch s {
	case CardStatusActive, CardStatusBlocked, CardStatusExpired:
		return true
	}
	return false
}

// MoneyScale is the number of decimal places kept for every amount.
const MoneyScale = 2

// Card represents an issued bank card. The plaintext number is never stored:
// NumberCiphertext holds the sealed PAN, NumberHash its keyed blind index.
type Card struct {
	ID               uuid.UUID       `json:"id" gorm:"type:char(36);primaryKey"`
	OwnerID          uuid.UUID       `json:"owner_id" gorm:"type:char(36);not null;index"`
	NumberCiphertext string          `json:"-" gorm:"type:text;not null"`
	NumberHash       string          `json:"-" gorm:"size:64;not null;uniqueIndex"`
	Last4            string          `json:"last4" gorm:"size:4;not null;index"`
	HolderName       string          `json:"holder_name" gorm:"size:255;not null"`
	ExpiryYear       int             `json:"expiry_year" gorm:"not null"`
	ExpiryMonth      int             `json:"expiry_month" gorm:"not null"`
	ExpiresAt        time.Time       `json:"expires_at" gorm:"not null;index"`
	Status           CardStatus      `json:"status" gorm:"type:varchar(16);not null;default:'ACTIVE';index"`
	Balance          decimal.Decimal `json:"balance" gorm:"type:decimal(20,2);not null;default:0"`
	Version          int64           `json:"version" gorm:"not null;default:0"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// BeforeCreate sets UUID before creating the record.
func (c *Card) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Expired reports whether the card is past its expiry month at now.
func (c *Card) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Usable reports whether the card may take part in balance movements.
func (c *Card) Usable(now time.Time) bool {
	return c.Status == CardStatusActive && !c.Expired(now)
}

// Withdraw debits amount from the balance. The caller has already checked
// that the card is usable; the balance never goes below zero.
func (c *Card) Withdraw(amount decimal.Decimal) bool {
	if c.Balance.LessThan(amount) {
		return false
	}
	c.Balance = c.Balance.Sub(amount).Round(MoneyScale)
	return true
}

// Deposit credits amount to the balance.
func (c *Card) Deposit(amount decimal.Decimal) {
	c.Balance = c.Balance.Add(amount).Round(MoneyScale)
}

// NormalizeAmount rounds half-up to two places and reports whether the
// result is strictly positive.
func NormalizeAmount(amount decimal.Decimal) (decimal.Decimal, bool) {
	rounded := amount.Round(MoneyScale)
	return rounded, rounded.GreaterThan(decimal.Zero)
}

// ExpiryBoundary returns the first instant (UTC) after the given expiry month.
func ExpiryBoundary(year, month int) time.Time {
	return time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC)
}

// CardView is the outward representation of a card: masked number, no ciphertext.
type CardView struct {
	ID           uuid.UUID       `json:"id"`
	OwnerID      uuid.UUID       `json:"owner_id"`
	MaskedNumber string          `json:"masked_number"`
	HolderName   string          `json:"holder_name"`
	Expiry       string          `json:"expiry"`
	Status       CardStatus      `json:"status"`
	Balance      decimal.Decimal `json:"balance"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
