package wallet

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/adeyemio/tradefair-backend/pkg/db/models"
	"github.com/adeyemio/tradefair-backend/pkg/enums"
)

func setupWalletTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS vendors (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  slug TEXT NOT NULL UNIQUE,
  currency TEXT NOT NULL DEFAULT 'NGN',
  timezone TEXT NOT NULL DEFAULT 'Africa/Lagos',
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
  id TEXT PRIMARY KEY,
  vendor_id TEXT NOT NULL,
  currency TEXT NOT NULL,
  source TEXT NOT NULL,
  order_ref TEXT NOT NULL,
  event_id TEXT,
  amount_minor INTEGER NOT NULL,
  type TEXT NOT NULL,
  note TEXT,
  target_payout_at DATETIME NOT NULL,
  target_payout_key TEXT NOT NULL,
  payout_batch_id TEXT,
  origin_entry_id TEXT,
  created_at DATETIME,
  created_by TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS payout_batches (
  id TEXT PRIMARY KEY,
  vendor_id TEXT NOT NULL,
  target_payout_key TEXT NOT NULL,
  gross_amount_minor INTEGER NOT NULL,
  fee_minor INTEGER NOT NULL,
  total_amount_minor INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'processing',
  transfer_ref TEXT,
  consumed_entry_ids TEXT,
  failure_reason TEXT,
  created_by TEXT NOT NULL,
  created_at DATETIME,
  completed_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS payout_batch_entries (
  batch_id TEXT NOT NULL,
  entry_id TEXT NOT NULL,
  amount_minor INTEGER NOT NULL,
  created_at DATETIME,
  PRIMARY KEY (batch_id, entry_id)
);`,
		`CREATE TABLE IF NOT EXISTS wallet_summaries (
  id TEXT PRIMARY KEY,
  vendor_id TEXT NOT NULL UNIQUE,
  eligible_balance_minor INTEGER NOT NULL DEFAULT 0,
  on_hold_minor INTEGER NOT NULL DEFAULT 0,
  last_payout_at DATETIME,
  last_updated_at DATETIME
);`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}

	return db
}

func newVendor(t *testing.T, db *gorm.DB, name string) *models.Vendor {
	t.Helper()

	vendor := &models.Vendor{
		ID:       uuid.New(),
		Name:     name,
		Slug:     name + "-" + uuid.NewString()[:8],
		Currency: enums.CurrencyNGN,
		Timezone: "Africa/Lagos",
	}
	require.NoError(t, db.Create(vendor).Error)
	return vendor
}

func newEntry(t *testing.T, db *gorm.DB, vendor *models.Vendor, entryType enums.LedgerEntryType, amount int64, created time.Time, cycleKey string) *models.LedgerEntry {
	t.Helper()

	entry := &models.LedgerEntry{
		ID:              uuid.New(),
		VendorID:        vendor.ID,
		Currency:        vendor.Currency,
		Source:          enums.LedgerSourceEvent,
		OrderRef:        "ord-" + uuid.NewString()[:8],
		AmountMinor:     amount,
		Type:            entryType,
		TargetPayoutAt:  created.Add(7 * 24 * time.Hour),
		TargetPayoutKey: cycleKey,
		CreatedAt:       created,
		CreatedBy:       "system",
	}
	require.NoError(t, db.Create(entry).Error)
	return entry
}

func newBatch(t *testing.T, db *gorm.DB, vendor *models.Vendor, status enums.PayoutBatchStatus, entries []*models.LedgerEntry) *models.PayoutBatch {
	t.Helper()

	var gross int64
	for _, e := range entries {
		gross += e.AmountMinor
	}
	batch := &models.PayoutBatch{
		ID:               uuid.New(),
		VendorID:         vendor.ID,
		TargetPayoutKey:  "2026-09-04",
		GrossAmountMinor: gross,
		FeeMinor:         0,
		TotalAmountMinor: gross,
		Status:           status,
		CreatedBy:        "system",
	}
	require.NoError(t, db.Create(batch).Error)

	for _, e := range entries {
		require.NoError(t, db.Create(&models.PayoutBatchEntry{
			BatchID:     batch.ID,
			EntryID:     e.ID,
			AmountMinor: e.AmountMinor,
		}).Error)
	}
	return batch
}
