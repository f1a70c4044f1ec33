package enums

import "fmt"

// TransferStatus is the bank-transfer network's view of a dispatched transfer.
type TransferStatus string

const (
	TransferStatusPending TransferStatus = "pending"
	TransferStatusSuccess TransferStatus = "success"
	TransferStatusFailure TransferStatus = "failure"
)

var validTransferStatuses = []TransferStatus{
	TransferStatusPending,
	TransferStatusSuccess,
	TransferStatusFailure,
}

// IsValid reports whether the status is recognized.
func (s TransferStatus) IsValid() bool {
	for _, candidate := range validTransferStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseTransferStatus converts a raw string into a TransferStatus.
func ParseTransferStatus(value string) (TransferStatus, error) {
	for _, candidate := range validTransferStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transfer status %q", value)
}
