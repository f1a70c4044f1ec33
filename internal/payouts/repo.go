package payouts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adeyemio/tradefair-backend/pkg/db/models"
	"github.com/adeyemio/tradefair-backend/pkg/enums"
)

// Repository persists payout batches and their entry locks.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateBatch(ctx context.Context, batch *models.PayoutBatch, entries []*models.PayoutBatchEntry) error
	FindBatch(ctx context.Context, id uuid.UUID) (*models.PayoutBatch, error)
	FindActiveForCycle(ctx context.Context, vendorID uuid.UUID, targetPayoutKey string) (*models.PayoutBatch, error)
	FindByTransferRef(ctx context.Context, transferRef string) (*models.PayoutBatch, error)
	ListProcessing(ctx context.Context) ([]models.PayoutBatch, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID, limit, offset int) ([]models.PayoutBatch, error)
	ListBatchEntries(ctx context.Context, batchID uuid.UUID) ([]models.PayoutBatchEntry, error)
	SetTransferRef(ctx context.Context, batchID uuid.UUID, transferRef string) error
	MarkCompleted(ctx context.Context, batchID uuid.UUID, completedAt time.Time) error
	MarkFailed(ctx context.Context, batchID uuid.UUID, reason string) error
	DeleteBatchEntries(ctx context.Context, batchID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository wires a gorm-backed payout batch repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateBatch(ctx context.Context, batch *models.PayoutBatch, entries []*models.PayoutBatchEntry) error {
	if err := r.db.WithContext(ctx).Create(batch).Error; err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	for _, entry := range entries {
		entry.BatchID = batch.ID
	}
	return r.db.WithContext(ctx).Create(entries).Error
}

func (r *repository) FindBatch(ctx context.Context, id uuid.UUID) (*models.PayoutBatch, error) {
	var batch models.PayoutBatch
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&batch).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// FindActiveForCycle returns the processing or completed batch for the
// vendor's cycle. Failed batches do not count; the cycle can be retried.
func (r *repository) FindActiveForCycle(ctx context.Context, vendorID uuid.UUID, targetPayoutKey string) (*models.PayoutBatch, error) {
	var batch models.PayoutBatch
	err := r.db.WithContext(ctx).
		Where("vendor_id = ? AND target_payout_key = ? AND status <> ?", vendorID, targetPayoutKey, enums.PayoutBatchStatusFailed).
		First(&batch).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *repository) FindByTransferRef(ctx context.Context, transferRef string) (*models.PayoutBatch, error) {
	var batch models.PayoutBatch
	err := r.db.WithContext(ctx).
		Where("transfer_ref = ?", transferRef).
		First(&batch).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *repository) ListProcessing(ctx context.Context) ([]models.PayoutBatch, error) {
	var batches []models.PayoutBatch
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.PayoutBatchStatusProcessing).
		Order("created_at ASC").
		Find(&batches).Error
	if err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *repository) ListByVendor(ctx context.Context, vendorID uuid.UUID, limit, offset int) ([]models.PayoutBatch, error) {
	query := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var batches []models.PayoutBatch
	if err := query.Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *repository) ListBatchEntries(ctx context.Context, batchID uuid.UUID) ([]models.PayoutBatchEntry, error) {
	var entries []models.PayoutBatchEntry
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) SetTransferRef(ctx context.Context, batchID uuid.UUID, transferRef string) error {
	return r.db.WithContext(ctx).
		Model(&models.PayoutBatch{}).
		Where("id = ?", batchID).
		Update("transfer_ref", transferRef).Error
}

func (r *repository) MarkCompleted(ctx context.Context, batchID uuid.UUID, completedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PayoutBatch{}).
		Where("id = ? AND status = ?", batchID, enums.PayoutBatchStatusProcessing).
		Updates(map[string]any{
			"status":       enums.PayoutBatchStatusCompleted,
			"completed_at": completedAt,
		}).Error
}

func (r *repository) MarkFailed(ctx context.Context, batchID uuid.UUID, reason string) error {
	return r.db.WithContext(ctx).
		Model(&models.PayoutBatch{}).
		Where("id = ? AND status = ?", batchID, enums.PayoutBatchStatusProcessing).
		Updates(map[string]any{
			"status":         enums.PayoutBatchStatusFailed,
			"failure_reason": reason,
		}).Error
}

// DeleteBatchEntries drops the entry locks of a failed batch so the
// consumed entries become payable again.
func (r *repository) DeleteBatchEntries(ctx context.Context, batchID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Delete(&models.PayoutBatchEntry{}).Error
}
