package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Wallet is the per-customer balance row, created lazily on first credit.
// Balance is kept in whole rupees; conversion from paise happens at ingestion.
type Wallet struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UUID        string    `gorm:"type:char(36) CHARACTER SET utf8 COLLATE utf8_bin;uniqueIndex;not null" json:"uuid"`
	CustomerID  string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"customer_id"`
	Balance     int64     `gorm:"not null;default:0" json:"balance"`
	CreditLimit int64     `gorm:"not null;default:0" json:"credit_limit"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate assigns a UUID before inserting a new wallet.
func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	if w.UUID == "" {
		w.UUID = uuid.New().String()
	}
	return nil
}
