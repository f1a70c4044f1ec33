package enums

import "fmt"

// ActorRole is carried inside access tokens and on ledger provenance fields.
type ActorRole string

const (
	ActorRoleVendor ActorRole = "vendor"
	ActorRoleAdmin  ActorRole = "admin"
	ActorRoleSystem ActorRole = "system"
)

var validActorRoles = []ActorRole{
	ActorRoleVendor,
	ActorRoleAdmin,
	ActorRoleSystem,
}

// IsValid reports whether the role is recognized.
func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseActorRole converts a raw string into an ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
