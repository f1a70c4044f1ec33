package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/adeyemio/tradefair-backend/pkg/enums"
)

// Vendor is a marketplace seller (event organizer or merchandise brand).
// The vendor row establishes the wallet currency; every ledger entry for
// the vendor must match it.
type Vendor struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name      string         `gorm:"column:name;not null"`
	Slug      string         `gorm:"column:slug;uniqueIndex;not null"`
	Currency  enums.Currency `gorm:"column:currency;type:text;not null;default:'NGN'"`
	Timezone  string         `gorm:"column:timezone;not null;default:'Africa/Lagos'"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
