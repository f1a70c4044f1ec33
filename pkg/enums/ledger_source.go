package enums

import "fmt"

// LedgerSource identifies which revenue stream produced a ledger entry.
type LedgerSource string

const (
	LedgerSourceEvent LedgerSource = "event"
	LedgerSourceStore LedgerSource = "store"
)

var validLedgerSources = []LedgerSource{
	LedgerSourceEvent,
	LedgerSourceStore,
}

// IsValid reports whether the source is recognized.
func (s LedgerSource) IsValid() bool {
	for _, candidate := range validLedgerSources {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseLedgerSource converts a raw string into a LedgerSource.
func ParseLedgerSource(value string) (LedgerSource, error) {
	for _, candidate := range validLedgerSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger source %q", value)
}
