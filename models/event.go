package models

import "time"

// EventKind selects the registration path an event accepts.
type EventKind string

const (
	EventKindIndividual  EventKind = "individual"
	EventKindTeam        EventKind = "team"
	EventKindMerchandise EventKind = "merchandise"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventKindIndividual, EventKindTeam, EventKindMerchandise:
		return true
	}
	return false
}

// EventStatus mirrors the event_status enum in the database.
type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
	EventStatusOngoing   EventStatus = "ongoing"
	EventStatusClosed    EventStatus = "closed"
	EventStatusCompleted EventStatus = "completed"
)

// Event is the capacity context for registrations. The aggregate counters are
// owned by the event and only change inside a unit of work that holds the
// event lock.
type Event struct {
	ID                   string      `json:"id" db:"id"`
	Name                 string      `json:"name" db:"name"`
	Kind                 EventKind   `json:"kind" db:"kind"`
	Status               EventStatus `json:"status" db:"status"`
	OrganizerID          string      `json:"organizer_id" db:"organizer_id"`
	RegistrationLimit    int         `json:"registration_limit" db:"registration_limit"`
	RegistrationDeadline time.Time   `json:"registration_deadline" db:"registration_deadline"`
	StartsAt             time.Time   `json:"starts_at" db:"starts_at"`
	EndsAt               time.Time   `json:"ends_at" db:"ends_at"`
	MaxTeamSize          int         `json:"max_team_size,omitempty" db:"max_team_size"`
	RequiresApproval     bool        `json:"requires_approval" db:"requires_approval"`

	RegisteredCount int `json:"registered_count" db:"registered_count"`
	DirectCount     int `json:"direct_count" db:"direct_count"`
	TeamSeatCount   int `json:"team_seat_count" db:"team_seat_count"`
	CompletedTeams  int `json:"completed_teams" db:"completed_teams"`
	AttendedCount   int `json:"attended_count" db:"attended_count"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AcceptsRegistrations reports whether the lifecycle allows new seats.
func (e *Event) AcceptsRegistrations() bool {
	return e.Status == EventStatusPublished || e.Status == EventStatusOngoing
}

// Remaining returns the number of seats still available.
func (e *Event) Remaining() int {
	return e.RegistrationLimit - e.RegisteredCount
}

// HasRoomFor reports whether n more seats fit under the registration limit.
func (e *Event) HasRoomFor(n int) bool {
	return e.RegisteredCount+n <= e.RegistrationLimit
}
