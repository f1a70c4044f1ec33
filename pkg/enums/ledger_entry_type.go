package enums

import "fmt"

// LedgerEntryType maps to the ledger_entry_type_enum enum in Postgres.
//
// The four core money movements are credit_eligible, debit_hold,
// debit_payout and debit_refund. hold_release is the auxiliary zeroing
// entry written as the first half of a promotion pair; it never carries
// money into or out of the wallet on its own.
type LedgerEntryType string

const (
	LedgerEntryTypeCreditEligible LedgerEntryType = "credit_eligible"
	LedgerEntryTypeDebitHold      LedgerEntryType = "debit_hold"
	LedgerEntryTypeHoldRelease    LedgerEntryType = "hold_release"
	LedgerEntryTypeDebitPayout    LedgerEntryType = "debit_payout"
	LedgerEntryTypeDebitRefund    LedgerEntryType = "debit_refund"
)

var validLedgerEntryTypes = []LedgerEntryType{
	LedgerEntryTypeCreditEligible,
	LedgerEntryTypeDebitHold,
	LedgerEntryTypeHoldRelease,
	LedgerEntryTypeDebitPayout,
	LedgerEntryTypeDebitRefund,
}

// IsValid reports whether the value matches the canonical ledger entry enum.
func (t LedgerEntryType) IsValid() bool {
	for _, candidate := range validLedgerEntryTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseLedgerEntryType converts raw input into LedgerEntryType.
func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	for _, candidate := range validLedgerEntryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry type %q", value)
}
