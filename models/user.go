package models

// UserRole is carried in the access token's "role" claim.
type UserRole string

const (
	RoleParticipant UserRole = "participant"
	RoleOrganizer   UserRole = "organizer"
	RoleAdmin       UserRole = "admin"
)

// AuthContext identifies the caller of a request. It comes from a token the
// service verifies but never issues.
type AuthContext struct {
	ParticipantID string
	Role          UserRole
}

// CanManageEvents reports whether the caller may run organizer operations.
func (a AuthContext) CanManageEvents() bool {
	return a.Role == RoleOrganizer || a.Role == RoleAdmin
}
