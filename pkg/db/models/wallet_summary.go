package models

import (
	"time"

	"github.com/google/uuid"
)

// WalletSummary is the incrementally maintained projection of a vendor's
// ledger. It is derived state, not authoritative: the consistency check
// replays the ledger and reports any divergence as a fault instead of
// silently repairing the row.
type WalletSummary struct {
	ID                   uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID             uuid.UUID  `gorm:"column:vendor_id;type:uuid;uniqueIndex;not null"`
	EligibleBalanceMinor int64      `gorm:"column:eligible_balance_minor;not null;default:0"`
	OnHoldMinor          int64      `gorm:"column:on_hold_minor;not null;default:0"`
	LastPayoutAt         *time.Time `gorm:"column:last_payout_at"`
	LastUpdatedAt        time.Time  `gorm:"column:last_updated_at;autoUpdateTime"`
}
