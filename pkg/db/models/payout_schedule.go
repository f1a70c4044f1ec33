package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/adeyemio/tradefair-backend/pkg/enums"
)

// PayoutSchedule holds a vendor's chosen payout cadence.
//
// The weekday fields drive the weekly tier; faster tiers run on a
// day-stride at PayoutHour with the cutoff at CutoffHour. Changing the
// tier never rewrites targetPayoutAt values already stamped on existing
// ledger entries; only entries created afterwards see the new cadence.
type PayoutSchedule struct {
	ID            uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID      uuid.UUID        `gorm:"column:vendor_id;type:uuid;uniqueIndex;not null"`
	Tier          enums.PayoutTier `gorm:"column:tier;type:payout_tier;not null;default:'weekly'"`
	TimelineDays  int              `gorm:"column:timeline_days;not null;default:7"`
	CutoffWeekday int              `gorm:"column:cutoff_weekday;not null;default:3"`
	CutoffHour    int              `gorm:"column:cutoff_hour;not null;default:18"`
	PayoutWeekday int              `gorm:"column:payout_weekday;not null;default:5"`
	PayoutHour    int              `gorm:"column:payout_hour;not null;default:9"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
