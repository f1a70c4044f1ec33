package enums

import "fmt"

// PayoutBatchStatus tracks the settlement lifecycle of a payout batch.
//
// A batch in processing owns its consumed ledger entries: they are
// excluded from the eligible balance until the batch completes or fails.
// A batch left in processing after an ambiguous transfer outcome is
// resolved by the in-flight resolution pass, never by a blind retry.
type PayoutBatchStatus string

const (
	PayoutBatchStatusProcessing PayoutBatchStatus = "processing"
	PayoutBatchStatusCompleted  PayoutBatchStatus = "completed"
	PayoutBatchStatusFailed     PayoutBatchStatus = "failed"
)

var validPayoutBatchStatuses = []PayoutBatchStatus{
	PayoutBatchStatusProcessing,
	PayoutBatchStatusCompleted,
	PayoutBatchStatusFailed,
}

// IsValid reports whether the status is recognized.
func (s PayoutBatchStatus) IsValid() bool {
	for _, candidate := range validPayoutBatchStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParsePayoutBatchStatus converts a raw string into a PayoutBatchStatus.
func ParsePayoutBatchStatus(value string) (PayoutBatchStatus, error) {
	for _, candidate := range validPayoutBatchStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout batch status %q", value)
}
