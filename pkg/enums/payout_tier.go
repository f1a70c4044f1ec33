package enums

import "fmt"

// PayoutTier is the payout cadence a vendor has opted into. Faster tiers
// carry a percentage fee with a hard cap; the weekly tier is free.
type PayoutTier string

const (
	PayoutTierWeekly   PayoutTier = "weekly"
	PayoutTierFiveDay  PayoutTier = "5days"
	PayoutTierThreeDay PayoutTier = "3days"
	PayoutTierTwoDay   PayoutTier = "2days"
	PayoutTierOneDay   PayoutTier = "1day"
)

var validPayoutTiers = []PayoutTier{
	PayoutTierWeekly,
	PayoutTierFiveDay,
	PayoutTierThreeDay,
	PayoutTierTwoDay,
	PayoutTierOneDay,
}

// String implements fmt.Stringer.
func (t PayoutTier) String() string {
	return string(t)
}

// IsValid reports whether the tier is recognized.
func (t PayoutTier) IsValid() bool {
	for _, candidate := range validPayoutTiers {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParsePayoutTier converts a raw string into a PayoutTier.
func ParsePayoutTier(value string) (PayoutTier, error) {
	for _, candidate := range validPayoutTiers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout tier %q", value)
}
