package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentTransaction is the immutable settlement ledger. The unique index on
// PaymentID is the durable idempotency anchor: a second insert with the same
// payment id fails at the storage layer and is treated as "already applied".
type PaymentTransaction struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UUID       string    `gorm:"type:char(36) CHARACTER SET utf8 COLLATE utf8_bin;uniqueIndex;not null" json:"uuid"`
	PaymentID  string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"payment_id"`
	OrderID    string    `gorm:"type:varchar(64);index;default:null" json:"order_id,omitempty"`
	CustomerID string    `gorm:"type:varchar(64);index;not null" json:"customer_id"`
	Amount     int64     `gorm:"not null" json:"amount"`
	Status     string    `gorm:"type:varchar(32);not null" json:"status"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// BeforeCreate assigns a UUID before inserting a new ledger row.
func (p *PaymentTransaction) BeforeCreate(tx *gorm.DB) error {
	if p.UUID == "" {
		p.UUID = uuid.New().String()
	}
	return nil
}
