package schedule

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/adeyemio/tradefair-backend/pkg/db/models"
)

// Repository manages persistence for payout schedules.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByVendor(ctx context.Context, vendorID uuid.UUID) (*models.PayoutSchedule, error)
	Upsert(ctx context.Context, sched *models.PayoutSchedule) error
	ListAll(ctx context.Context) ([]models.PayoutSchedule, error)
	FindVendor(ctx context.Context, vendorID uuid.UUID) (*models.Vendor, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a schedule repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByVendor(ctx context.Context, vendorID uuid.UUID) (*models.PayoutSchedule, error) {
	var sched models.PayoutSchedule
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		First(&sched).Error; err != nil {
		return nil, err
	}
	return &sched, nil
}

func (r *repository) Upsert(ctx context.Context, sched *models.PayoutSchedule) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "vendor_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"tier", "timeline_days", "cutoff_weekday", "cutoff_hour",
				"payout_weekday", "payout_hour", "updated_at",
			}),
		}).
		Create(sched).Error
}

func (r *repository) ListAll(ctx context.Context) ([]models.PayoutSchedule, error) {
	var scheds []models.PayoutSchedule
	if err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&scheds).Error; err != nil {
		return nil, err
	}
	return scheds, nil
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
