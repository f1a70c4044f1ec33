// Package fees computes the expedited-payout fee for a vendor's schedule
// tier. The calculator is pure: same amount and tier always produce the
// same fee, and nothing here touches storage.
package fees

import (
	"github.com/shopspring/decimal"

	"github.com/adeyemio/tradefair-backend/pkg/enums"
)

// TierSpec is the fee schedule for one payout tier. Percent is the fee
// rate applied to the gross eligible amount; CapMinor bounds the fee on
// any single payout regardless of balance size.
type TierSpec struct {
	Percent  decimal.Decimal
	CapMinor int64
}

var tierSpecs = map[enums.PayoutTier]TierSpec{
	enums.PayoutTierWeekly:   {Percent: decimal.Zero, CapMinor: 0},
	enums.PayoutTierFiveDay:  {Percent: decimal.NewFromFloat(0.01), CapMinor: 250000},
	enums.PayoutTierThreeDay: {Percent: decimal.NewFromFloat(0.025), CapMinor: 400000},
	enums.PayoutTierTwoDay:   {Percent: decimal.NewFromFloat(0.04), CapMinor: 500000},
	enums.PayoutTierOneDay:   {Percent: decimal.NewFromFloat(0.08), CapMinor: 500000},
}

// Tier returns the fee spec for the given tier. Unknown tiers fall back
// to the weekly (free) spec so a bad row can never overcharge a vendor.
func Tier(tier enums.PayoutTier) TierSpec {
	if spec, ok := tierSpecs[tier]; ok {
		return spec
	}
	return tierSpecs[enums.PayoutTierWeekly]
}

// Calculate returns min(round(amount * percent), cap) in minor units.
// Rounding is half-up on the minor unit.
func Calculate(amountMinor int64, tier enums.PayoutTier) int64 {
	if amountMinor <= 0 {
		return 0
	}

	spec := Tier(tier)
	if spec.Percent.IsZero() {
		return 0
	}

	fee := decimal.NewFromInt(amountMinor).Mul(spec.Percent).Round(0).IntPart()
	if fee > spec.CapMinor {
		return spec.CapMinor
	}
	return fee
}
