package domain

import "errors"

// Caller is the authenticated identity behind a request.
type Caller struct {
	ID   string
	Role Role
}

// Role represents a caller's access level.
type Role string

const (
	// RoleAdmin may act on any session and issue ledger corrections.
	RoleAdmin Role = "admin"

	// RoleParticipant may act only on sessions it takes part in.
	RoleParticipant Role = "participant"

	// RoleService is used by trusted internal callers such as the room relay.
	RoleService Role = "service"
)

var validRoles = map[Role]bool{
	RoleAdmin:       true,
	RoleParticipant: true,
	RoleService:     true,
}

// IsValid checks if the role is a valid role.
func (r Role) IsValid() bool {
	return validRoles[r]
}

// IsAdmin reports whether the caller has administrative rights.
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// Is reports whether the caller acts as participant id, or is an admin.
func (c Caller) Is(id string) bool {
	return c.ID == id || c.IsAdmin()
}

// Authentication errors
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)
