package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies who produced the event.
type ActorRef struct {
	UserID   uuid.UUID  `json:"userId"`
	VendorID *uuid.UUID `json:"vendorId,omitempty"`
	Role     string     `json:"role,omitempty"`
}

// PayloadEnvelope is the stable wrapper the marketplace core publishes
// around every order event. Consumers rely on EventID for dedupe and
// never on delivery order.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
