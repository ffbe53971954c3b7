package models

import (
	"time"
)

// Customer is owned by the main backend; this service only reads customers
// and increments the denormalized wallet balance. WalletBalance mirrors
// Wallet.Balance and both are moved together inside the settlement transaction.
type Customer struct {
	ID                 string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	FullName           string    `gorm:"type:varchar(150);default:null" json:"full_name,omitempty"`
	PhoneNumber        string    `gorm:"type:varchar(20);default:null" json:"phone_number,omitempty"`
	Email              string    `gorm:"type:varchar(200);default:null" json:"email,omitempty"`
	IsActive           bool      `gorm:"default:true" json:"is_active"`
	SubscriptionStatus string    `gorm:"type:varchar(20);default:'INACTIVE'" json:"subscription_status" validate:"omitempty,oneof=ACTIVE INACTIVE CANCELLED"`
	WalletBalance      int64     `gorm:"not null;default:0" json:"wallet_balance"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
