package enums

import "fmt"

// OrderEventType identifies the upstream order events the wallet consumes.
type OrderEventType string

const (
	EventOrderSettled  OrderEventType = "order.settled"
	EventOrderRefunded OrderEventType = "order.refunded"
)

var validOrderEventTypes = []OrderEventType{
	EventOrderSettled,
	EventOrderRefunded,
}

// IsValid reports whether the event type is recognized.
func (t OrderEventType) IsValid() bool {
	for _, candidate := range validOrderEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseOrderEventType converts a raw string into an OrderEventType.
func ParseOrderEventType(value string) (OrderEventType, error) {
	for _, candidate := range validOrderEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order event type %q", value)
}
