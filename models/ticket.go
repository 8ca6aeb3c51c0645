package models

import "time"

// Ticket is the proof of a seat. There is exactly one ticket per
// (event, participant) pair, whichever path produced the seat.
type Ticket struct {
	ID            string     `json:"id" db:"id"`
	EventID       string     `json:"event_id" db:"event_id"`
	ParticipantID string     `json:"participant_id" db:"participant_id"`
	TeamID        *string    `json:"team_id,omitempty" db:"team_id"`
	Token         string     `json:"token,omitempty" db:"token"`
	PassURL       string     `json:"pass_url,omitempty" db:"pass_url"`
	IssuedAt      time.Time  `json:"issued_at" db:"issued_at"`
	CheckedInAt   *time.Time `json:"checked_in_at,omitempty" db:"checked_in_at"`
}

// Payload is what gets encoded into the display token.
func (t *Ticket) Payload() TicketPayload {
	return TicketPayload{TicketID: t.ID, EventID: t.EventID, ParticipantID: t.ParticipantID}
}

type TicketPayload struct {
	TicketID      string `json:"ticket_id"`
	EventID       string `json:"event_id"`
	ParticipantID string `json:"participant_id"`
}

type SeatVia string

const (
	SeatViaDirect SeatVia = "direct"
	SeatViaTeam   SeatVia = "team"
)

// Seat is the read-only "my events" view that unifies direct registrations
// and completed team memberships.
type Seat struct {
	EventID       string     `json:"event_id"`
	ParticipantID string     `json:"participant_id"`
	TicketID      string     `json:"ticket_id"`
	Via           SeatVia    `json:"via"`
	TeamID        *string    `json:"team_id,omitempty"`
	Status        string     `json:"status"`
	CheckedInAt   *time.Time `json:"checked_in_at,omitempty"`
}
