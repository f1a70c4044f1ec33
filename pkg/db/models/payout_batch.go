package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/adeyemio/tradefair-backend/pkg/db/types"
	"github.com/adeyemio/tradefair-backend/pkg/enums"
)

// PayoutBatch groups the eligible ledger entries settled together in one
// bank transfer. A batch exists for every debit_payout group, whether it
// came from the automated processor or a manual reconciliation backfill.
//
// While the batch is in processing its consumed entries are in flight:
// they no longer count toward the eligible balance but have not yet been
// converted to debit_payout entries. TotalAmountMinor is the net amount
// dispatched to the bank (gross minus fee).
type PayoutBatch struct {
	ID               uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID         uuid.UUID               `gorm:"column:vendor_id;type:uuid;not null;index"`
	TargetPayoutKey  string                  `gorm:"column:target_payout_key;not null"`
	GrossAmountMinor int64                   `gorm:"column:gross_amount_minor;not null"`
	FeeMinor         int64                   `gorm:"column:fee_minor;not null"`
	TotalAmountMinor int64                   `gorm:"column:total_amount_minor;not null"`
	Status           enums.PayoutBatchStatus `gorm:"column:status;type:payout_batch_status;not null;default:'processing'"`
	TransferRef      *string                 `gorm:"column:transfer_ref"`
	ConsumedEntryIDs dbtypes.UUIDArray       `gorm:"column:consumed_entry_ids;type:uuid[]"`
	FailureReason    *string                 `gorm:"column:failure_reason"`
	CreatedBy        string                  `gorm:"column:created_by;not null"`
	CreatedAt        time.Time               `gorm:"column:created_at;autoCreateTime"`
	CompletedAt      *time.Time              `gorm:"column:completed_at"`
}

// PayoutBatchEntry pins one consumed eligible entry to a batch. The rows
// act as the in-flight lock on the entries: an eligible entry referenced
// by a processing or completed batch is consumed and excluded from the
// balance. Rows for failed batches are removed so the entries become
// payable again.
type PayoutBatchEntry struct {
	BatchID     uuid.UUID `gorm:"column:batch_id;type:uuid;primaryKey"`
	EntryID     uuid.UUID `gorm:"column:entry_id;type:uuid;primaryKey"`
	AmountMinor int64     `gorm:"column:amount_minor;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}
