package wallet

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/adeyemio/tradefair-backend/pkg/db/models"
	"github.com/adeyemio/tradefair-backend/pkg/enums"
)

// unconsumedCond excludes eligible entries referenced by a processing or
// completed payout batch. Those entries are consumed: either in flight or
// already settled. Entries referenced only by failed batches stay payable.
const unconsumedCond = `NOT EXISTS (
	SELECT 1 FROM payout_batch_entries pbe
	JOIN payout_batches pb ON pb.id = pbe.batch_id
	WHERE pbe.entry_id = ledger_entries.id
	AND pb.status IN ('processing', 'completed')
)`

// unpromotedCond excludes hold entries that have been retired by a later
// entry pointing back at them (promotion pair or refund).
const unpromotedCond = `NOT EXISTS (
	SELECT 1 FROM ledger_entries retire
	WHERE retire.origin_entry_id = ledger_entries.id
)`

// Filters narrows ledger listings for display.
type Filters struct {
	From            *time.Time
	To              *time.Time
	Source          *enums.LedgerSource
	Type            *enums.LedgerEntryType
	TargetPayoutKey *string
	Limit           int
	Offset          int
}

// Repository manages persistence for the append-only ledger and the
// wallet summary projection. There are no update or delete operations on
// entries; corrections are always new entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateEntry(ctx context.Context, entry *models.LedgerEntry) error
	CreateEntries(ctx context.Context, entries []*models.LedgerEntry) error
	FindEntry(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error)
	List(ctx context.Context, vendorID uuid.UUID, filters Filters) ([]models.LedgerEntry, error)
	ListUnconsumedEligible(ctx context.Context, vendorID uuid.UUID) ([]models.LedgerEntry, error)
	ListEligibleForCycle(ctx context.Context, vendorID uuid.UUID, cycleKey string) ([]models.LedgerEntry, error)
	ListMaturedHolds(ctx context.Context, vendorID uuid.UUID, now time.Time) ([]models.LedgerEntry, error)
	VendorsWithMaturedHolds(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	FindHoldByOrderRef(ctx context.Context, vendorID uuid.UUID, orderRef string) (*models.LedgerEntry, error)
	HasEntry(ctx context.Context, vendorID uuid.UUID, orderRef string, entryType enums.LedgerEntryType) (bool, error)
	SumUnpromotedHolds(ctx context.Context, vendorID uuid.UUID) (int64, error)
	SumInFlight(ctx context.Context, vendorID uuid.UUID) (int64, error)
	FindVendor(ctx context.Context, vendorID uuid.UUID) (*models.Vendor, error)
	ListVendors(ctx context.Context) ([]models.Vendor, error)
	GetSummary(ctx context.Context, vendorID uuid.UUID) (*models.WalletSummary, error)
	AdjustSummary(ctx context.Context, vendorID uuid.UUID, eligibleDelta, onHoldDelta int64, lastPayoutAt *time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateEntry(ctx context.Context, entry *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) CreateEntries(ctx context.Context, entries []*models.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(entries).Error
}

func (r *repository) FindEntry(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) List(ctx context.Context, vendorID uuid.UUID, filters Filters) ([]models.LedgerEntry, error) {
	q := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Order("created_at DESC")

	if filters.From != nil {
		q = q.Where("created_at >= ?", *filters.From)
	}
	if filters.To != nil {
		q = q.Where("created_at < ?", *filters.To)
	}
	if filters.Source != nil {
		q = q.Where("source = ?", *filters.Source)
	}
	if filters.Type != nil {
		q = q.Where("type = ?", *filters.Type)
	}
	if filters.TargetPayoutKey != nil {
		q = q.Where("target_payout_key = ?", *filters.TargetPayoutKey)
	}
	if filters.Limit > 0 {
		q = q.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		q = q.Offset(filters.Offset)
	}

	var entries []models.LedgerEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ListUnconsumedEligible(ctx context.Context, vendorID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Where("type = ?", enums.LedgerEntryTypeCreditEligible).
		Where(unconsumedCond).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ListEligibleForCycle(ctx context.Context, vendorID uuid.UUID, cycleKey string) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Where("type = ?", enums.LedgerEntryTypeCreditEligible).
		Where("target_payout_key <= ?", cycleKey).
		Where(unconsumedCond).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ListMaturedHolds(ctx context.Context, vendorID uuid.UUID, now time.Time) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Where("type = ?", enums.LedgerEntryTypeDebitHold).
		Where("target_payout_at <= ?", now).
		Where(unpromotedCond).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) VendorsWithMaturedHolds(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Distinct("vendor_id").
		Where("type = ?", enums.LedgerEntryTypeDebitHold).
		Where("target_payout_at <= ?", now).
		Where(unpromotedCond).
		Pluck("vendor_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) FindHoldByOrderRef(ctx context.Context, vendorID uuid.UUID, orderRef string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Where("order_ref = ?", orderRef).
		Where("type = ?", enums.LedgerEntryTypeDebitHold).
		Order("created_at ASC").
		First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) HasEntry(ctx context.Context, vendorID uuid.UUID, orderRef string, entryType enums.LedgerEntryType) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("vendor_id = ?", vendorID).
		Where("order_ref = ?", orderRef).
		Where("type = ?", entryType).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) SumUnpromotedHolds(ctx context.Context, vendorID uuid.UUID) (int64, error) {
	var total *int64
	if err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("SUM(amount_minor)").
		Where("vendor_id = ?", vendorID).
		Where("type = ?", enums.LedgerEntryTypeDebitHold).
		Where(unpromotedCond).
		Scan(&total).Error; err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

// SumInFlight totals the consumed amounts locked by processing batches:
// money swept out of the eligible balance but not yet confirmed paid.
func (r *repository) SumInFlight(ctx context.Context, vendorID uuid.UUID) (int64, error) {
	var total *int64
	if err := r.db.WithContext(ctx).
		Model(&models.PayoutBatchEntry{}).
		Select("SUM(payout_batch_entries.amount_minor)").
		Joins("JOIN payout_batches pb ON pb.id = payout_batch_entries.batch_id").
		Where("pb.vendor_id = ?", vendorID).
		Where("pb.status = ?", enums.PayoutBatchStatusProcessing).
		Scan(&total).Error; err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

func (r *repository) FindVendor(ctx context.Context, vendorID uuid.UUID) (*models.Vendor, error) {
	var vendor models.Vendor
	if err := r.db.WithContext(ctx).
		Where("id = ?", vendorID).
		First(&vendor).Error; err != nil {
		return nil, err
	}
	return &vendor, nil
}

func (r *repository) ListVendors(ctx context.Context) ([]models.Vendor, error) {
	var vendors []models.Vendor
	if err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&vendors).Error; err != nil {
		return nil, err
	}
	return vendors, nil
}

func (r *repository) GetSummary(ctx context.Context, vendorID uuid.UUID) (*models.WalletSummary, error) {
	var summary models.WalletSummary
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		First(&summary).Error; err != nil {
		return nil, err
	}
	return &summary, nil
}

// AdjustSummary applies incremental deltas to the projection row,
// creating it on first touch.
func (r *repository) AdjustSummary(ctx context.Context, vendorID uuid.UUID, eligibleDelta, onHoldDelta int64, lastPayoutAt *time.Time) error {
	now := time.Now().UTC()
	row := &models.WalletSummary{
		VendorID:             vendorID,
		EligibleBalanceMinor: eligibleDelta,
		OnHoldMinor:          onHoldDelta,
		LastPayoutAt:         lastPayoutAt,
		LastUpdatedAt:        now,
	}

	assignments := map[string]any{
		"eligible_balance_minor": gorm.Expr("wallet_summaries.eligible_balance_minor + ?", eligibleDelta),
		"on_hold_minor":          gorm.Expr("wallet_summaries.on_hold_minor + ?", onHoldDelta),
		"last_updated_at":        now,
	}
	if lastPayoutAt != nil {
		assignments["last_payout_at"] = *lastPayoutAt
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "vendor_id"}},
			DoUpdates: clause.Assignments(assignments),
		}).
		Create(row).Error
}
