package bankaccounts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/adeyemio/tradefair-backend/pkg/db/models"
)

// Repository persists vendor settlement destinations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByVendor(ctx context.Context, vendorID uuid.UUID) (*models.BankAccount, error)
	Upsert(ctx context.Context, account *models.BankAccount) error
	SetVerified(ctx context.Context, vendorID uuid.UUID, verified bool) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository wires a gorm-backed bank account repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByVendor(ctx context.Context, vendorID uuid.UUID) (*models.BankAccount, error) {
	var account models.BankAccount
	err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) Upsert(ctx context.Context, account *models.BankAccount) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "vendor_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"bank_name", "bank_code", "account_number", "account_name",
				"is_verified", "verified_at", "updated_at",
			}),
		}).
		Create(account).Error
}

func (r *repository) SetVerified(ctx context.Context, vendorID uuid.UUID, verified bool) error {
	updates := map[string]any{"is_verified": verified}
	if verified {
		updates["verified_at"] = gorm.Expr("CURRENT_TIMESTAMP")
	} else {
		updates["verified_at"] = nil
	}
	return r.db.WithContext(ctx).
		Model(&models.BankAccount{}).
		Where("vendor_id = ?", vendorID).
		Updates(updates).Error
}
