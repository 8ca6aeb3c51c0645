package models

import "time"

type EventUpdateType string

const (
	UpdateCapacity             EventUpdateType = "capacity"
	UpdateRegistrationComplete EventUpdateType = "registration_complete"
	UpdateTeamChanged          EventUpdateType = "team_changed"
	UpdateCheckIn              EventUpdateType = "check_in"
	UpdateStatusChanged        EventUpdateType = "status_changed"
)

// EventUpdate is pushed to clients watching an event's live feed.
type EventUpdate struct {
	Type              EventUpdateType `json:"type"`
	EventID           string          `json:"event_id"`
	Status            EventStatus     `json:"status,omitempty"`
	RegisteredCount   int             `json:"registered_count"`
	RegistrationLimit int             `json:"registration_limit"`
	Remaining         int             `json:"remaining"`
	AttendedCount     int             `json:"attended_count"`
	ParticipantID     string          `json:"participant_id,omitempty"`
	TicketID          string          `json:"ticket_id,omitempty"`
	TeamID            string          `json:"team_id,omitempty"`
	TeamSize          int             `json:"team_size,omitempty"`
	At                time.Time       `json:"at"`
}

// NewEventUpdate snapshots the event's counters.
func NewEventUpdate(kind EventUpdateType, e *Event, at time.Time) EventUpdate {
	return EventUpdate{
		Type:              kind,
		EventID:           e.ID,
		Status:            e.Status,
		RegisteredCount:   e.RegisteredCount,
		RegistrationLimit: e.RegistrationLimit,
		Remaining:         e.Remaining(),
		AttendedCount:     e.AttendedCount,
		At:                at,
	}
}
