package models

import (
	"time"

	"github.com/google/uuid"
)

// BankAccount holds the settlement destination for a vendor's payouts.
// Dispatch is blocked while IsVerified is false.
type BankAccount struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID      uuid.UUID  `gorm:"column:vendor_id;type:uuid;uniqueIndex;not null"`
	BankName      string     `gorm:"column:bank_name;not null"`
	BankCode      string     `gorm:"column:bank_code;not null"`
	AccountNumber string     `gorm:"column:account_number;not null"`
	AccountName   string     `gorm:"column:account_name;not null"`
	IsVerified    bool       `gorm:"column:is_verified;not null;default:false"`
	VerifiedAt    *time.Time `gorm:"column:verified_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
