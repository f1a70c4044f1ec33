package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adeyemio/tradefair-backend/pkg/db/models"
	"github.com/adeyemio/tradefair-backend/pkg/enums"
	pkgerrors "github.com/adeyemio/tradefair-backend/pkg/errors"
)

// Default cadence: cutoff Wednesday 18:00, payout Friday 09:00, weekly.
const (
	defaultCutoffWeekday = int(time.Wednesday)
	defaultCutoffHour    = 18
	defaultPayoutWeekday = int(time.Friday)
	defaultPayoutHour    = 9
)

// timelineDaysByTier maps each tier to the payout stride in days.
var timelineDaysByTier = map[enums.PayoutTier]int{
	enums.PayoutTierWeekly:   7,
	enums.PayoutTierFiveDay:  5,
	enums.PayoutTierThreeDay: 3,
	enums.PayoutTierTwoDay:   2,
	enums.PayoutTierOneDay:   1,
}

// Service exposes per-vendor payout cadence configuration and the cycle
// boundary math derived from it.
type Service interface {
	For(ctx context.Context, vendorID uuid.UUID) (*models.PayoutSchedule, error)
	Set(ctx context.Context, vendorID uuid.UUID, tier enums.PayoutTier) (*models.PayoutSchedule, error)
	NextPayout(ctx context.Context, vendorID uuid.UUID, now time.Time) (payoutAt, cutoffAt time.Time, cycleKey string, err error)
	TargetForEntry(ctx context.Context, vendorID uuid.UUID, from time.Time) (targetAt time.Time, cycleKey string, err error)
	DueCycle(ctx context.Context, vendorID uuid.UUID, now time.Time) (string, error)
	ListAll(ctx context.Context) ([]models.PayoutSchedule, error)
	Location(ctx context.Context, vendorID uuid.UUID) (*time.Location, error)
}

type service struct {
	repo Repository
}

// NewService wires a schedule service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("schedule repository required")
	}
	return &service{repo: repo}, nil
}

// DefaultSchedule returns the weekly cadence applied to vendors that have
// never chosen a tier.
func DefaultSchedule(vendorID uuid.UUID) *models.PayoutSchedule {
	return &models.PayoutSchedule{
		VendorID:      vendorID,
		Tier:          enums.PayoutTierWeekly,
		TimelineDays:  timelineDaysByTier[enums.PayoutTierWeekly],
		CutoffWeekday: defaultCutoffWeekday,
		CutoffHour:    defaultCutoffHour,
		PayoutWeekday: defaultPayoutWeekday,
		PayoutHour:    defaultPayoutHour,
	}
}

func (s *service) For(ctx context.Context, vendorID uuid.UUID) (*models.PayoutSchedule, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}

	sched, err := s.repo.FindByVendor(ctx, vendorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return DefaultSchedule(vendorID), nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout schedule")
	}
	return sched, nil
}

// Set updates the vendor's tier. Entries already stamped with a target
// payout time keep it; only entries created afterwards see the new
// cadence.
func (s *service) Set(ctx context.Context, vendorID uuid.UUID, tier enums.PayoutTier) (*models.PayoutSchedule, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	if !tier.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payout tier %q", tier))
	}

	if _, err := s.repo.FindVendor(ctx, vendorID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
	}

	sched := DefaultSchedule(vendorID)
	sched.Tier = tier
	sched.TimelineDays = timelineDaysByTier[tier]

	if err := s.repo.Upsert(ctx, sched); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save payout schedule")
	}
	return sched, nil
}

func (s *service) NextPayout(ctx context.Context, vendorID uuid.UUID, now time.Time) (time.Time, time.Time, string, error) {
	sched, err := s.For(ctx, vendorID)
	if err != nil {
		return time.Time{}, time.Time{}, "", err
	}
	loc, err := s.Location(ctx, vendorID)
	if err != nil {
		return time.Time{}, time.Time{}, "", err
	}

	payoutAt := NextPayoutAt(sched, loc, now)
	cutoffAt := CutoffAt(sched, loc, payoutAt)
	return payoutAt, cutoffAt, payoutAt.In(loc).Format(CycleKeyLayout), nil
}

// TargetForEntry computes the payout target stamped on a freshly promoted
// eligible entry. An entry promoted after the next payout's cutoff has
// missed that run and is stamped with the following occurrence.
func (s *service) TargetForEntry(ctx context.Context, vendorID uuid.UUID, from time.Time) (time.Time, string, error) {
	sched, err := s.For(ctx, vendorID)
	if err != nil {
		return time.Time{}, "", err
	}
	loc, err := s.Location(ctx, vendorID)
	if err != nil {
		return time.Time{}, "", err
	}

	payoutAt, cycleKey := AssignCycle(sched, loc, from)
	return payoutAt, cycleKey, nil
}

func (s *service) DueCycle(ctx context.Context, vendorID uuid.UUID, now time.Time) (string, error) {
	sched, err := s.For(ctx, vendorID)
	if err != nil {
		return "", err
	}
	loc, err := s.Location(ctx, vendorID)
	if err != nil {
		return "", err
	}
	return DueCycleKey(sched, loc, now), nil
}

func (s *service) ListAll(ctx context.Context) ([]models.PayoutSchedule, error) {
	scheds, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payout schedules")
	}
	return scheds, nil
}

// Location resolves the vendor's timezone, falling back to UTC when the
// stored zone name cannot be loaded.
func (s *service) Location(ctx context.Context, vendorID uuid.UUID) (*time.Location, error) {
	vendor, err := s.repo.FindVendor(ctx, vendorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
	}

	loc, err := time.LoadLocation(vendor.Timezone)
	if err != nil {
		return time.UTC, nil
	}
	return loc, nil
}
