package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/adeyemio/tradefair-backend/pkg/enums"
)

// LedgerEntry is one immutable record in a vendor's append-only wallet
// ledger. Entries are never updated or deleted; every state change is a
// new entry, so the ledger is a complete audit trail.
//
// OriginEntryID links promotion and split entries back to the entry they
// compensate: a hold_release or promoted credit_eligible points at the
// debit_hold it retires, a split remainder points at the credit_eligible
// it was carved out of, and a debit_payout points at the credit_eligible
// it consumes.
type LedgerEntry struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID        uuid.UUID             `gorm:"column:vendor_id;type:uuid;not null;index"`
	Currency        enums.Currency        `gorm:"column:currency;type:text;not null"`
	Source          enums.LedgerSource    `gorm:"column:source;type:ledger_source_enum;not null"`
	OrderRef        string                `gorm:"column:order_ref;not null"`
	EventID         *uuid.UUID            `gorm:"column:event_id;type:uuid"`
	AmountMinor     int64                 `gorm:"column:amount_minor;not null"`
	Type            enums.LedgerEntryType `gorm:"column:type;type:ledger_entry_type_enum;not null"`
	Note            string                `gorm:"column:note"`
	TargetPayoutAt  time.Time             `gorm:"column:target_payout_at;not null"`
	TargetPayoutKey string                `gorm:"column:target_payout_key;not null;index"`
	PayoutBatchID   *uuid.UUID            `gorm:"column:payout_batch_id;type:uuid"`
	OriginEntryID   *uuid.UUID            `gorm:"column:origin_entry_id;type:uuid"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	CreatedBy       string                `gorm:"column:created_by;not null"`
}
