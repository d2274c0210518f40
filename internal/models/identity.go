package models

import "github.com/google/uuid"

// Identity scopes.
const (
	ScopeUser  = "user"
	ScopeAdmin = "admin"
)

// Identity is a verified caller identity minted by the external auth service.
// Core code only ever sees a fully verified identity or none at all; there is
// no placeholder fallback.
type Identity struct {
	UUID  uuid.UUID `json:"uuid"`
	Name  string    `json:"name"`
	Scope string    `json:"scope,omitempty"`
}

// IsAdmin reports whether the identity carries the admin scope.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Scope == ScopeAdmin
}
