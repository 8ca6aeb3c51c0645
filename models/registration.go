package models

import "time"

type RegistrationStatus string

const (
	RegistrationActive    RegistrationStatus = "active"
	RegistrationAttended  RegistrationStatus = "attended"
	RegistrationCancelled RegistrationStatus = "cancelled"
	RegistrationCompleted RegistrationStatus = "completed"
)

// Registration is a direct (non-team) seat. Records are never deleted, only
// moved between statuses, so the table doubles as an audit trail.
type Registration struct {
	ID            string             `json:"id" db:"id"`
	EventID       string             `json:"event_id" db:"event_id"`
	ParticipantID string             `json:"participant_id" db:"participant_id"`
	TicketID      string             `json:"ticket_id" db:"ticket_id"`
	Status        RegistrationStatus `json:"status" db:"status"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" db:"updated_at"`
}

// HoldsSeat reports whether the record currently occupies capacity.
func (r *Registration) HoldsSeat() bool {
	return r.Status == RegistrationActive || r.Status == RegistrationAttended || r.Status == RegistrationCompleted
}
