// Package models defines the core data types for sitesync.
package models

import (
	"strings"
	"time"
)

// Role identifies a marketplace participant type.
type Role string

const (
	RoleClient    Role = "client"
	RoleDeveloper Role = "developer"
	RoleAdmin     Role = "admin"
)

// ParseRole normalizes a raw role string. Unknown roles are returned as-is
// (lowercased) so callers can reject them explicitly.
func ParseRole(raw string) Role {
	return Role(strings.ToLower(strings.TrimSpace(raw)))
}

// IsCounterparty reports whether the role can appear in an operator's
// conversation list.
func (r Role) IsCounterparty() bool {
	return r == RoleClient || r == RoleDeveloper
}

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleDeveloper, RoleAdmin:
		return true
	default:
		return false
	}
}

// UserRecord is a user as returned by the user directory. It is read-only
// to the sync layer.
type UserRecord struct {
	// ID is the directory's user identifier.
	ID string `json:"id"`

	// Name is the display name.
	Name string `json:"name"`

	// Role is the marketplace role.
	Role Role `json:"role"`

	// Avatar is an optional avatar URL.
	Avatar string `json:"avatar,omitempty"`

	// Presence holds the normalized presence hint for the user.
	Presence PresenceHint `json:"presence"`

	// SetupComplete is true once the user finished onboarding.
	SetupComplete bool `json:"setup_complete"`

	// Verified is true when the account has been verified.
	Verified bool `json:"verified"`
}

// DisplayName returns the user's name, falling back to the id.
func (u UserRecord) DisplayName() string {
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}
	return u.ID
}

// Operator is the authenticated user driving a sync session.
type Operator struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`

	// AccessToken is the bearer token for the backend. Empty means there is
	// no active session.
	AccessToken string `json:"-"`

	// ExpiresAt is when the access token expires. Zero means no expiry is
	// known.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// HasActiveSession reports whether the operator holds a usable token at now.
func (o Operator) HasActiveSession(now time.Time) bool {
	if strings.TrimSpace(o.AccessToken) == "" {
		return false
	}
	if !o.ExpiresAt.IsZero() && !now.Before(o.ExpiresAt) {
		return false
	}
	return true
}
