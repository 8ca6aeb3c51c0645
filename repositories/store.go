package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/Dosada05/event-registration/models"
)

var (
	ErrNotFound = errors.New("record not found")

	// Unique-constraint violations, one per constraint the services care about.
	ErrRegistrationConflict = errors.New("registration conflict: participant already has a record for this event")
	ErrTicketConflict       = errors.New("ticket conflict: participant already holds a ticket for this event")
	ErrInviteCodeConflict   = errors.New("invite code conflict")
	ErrMembershipConflict   = errors.New("membership conflict: participant already belongs to a team for this event")
)

// TxFunc is the body of a unit of work. Returning an error rolls back every
// write made through tx.
type TxFunc func(ctx context.Context, tx Tx) error

// Store owns all persisted registration state.
type Store interface {
	Reader

	// InTx runs fn as one atomic unit. Locks taken through tx.Lock* are held
	// until the unit commits or rolls back.
	InTx(ctx context.Context, fn TxFunc) error

	Close() error
}

// Reader serves lock-free reads of committed state.
type Reader interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListEventIDsByStatus(ctx context.Context, statuses ...models.EventStatus) ([]string, error)

	FindRegistration(ctx context.Context, eventID, participantID string) (*models.Registration, error)
	ListRegistrationsByEvent(ctx context.Context, eventID string) ([]*models.Registration, error)

	GetTeam(ctx context.Context, id string) (*models.Team, error)
	GetTeamByInviteCode(ctx context.Context, code string) (*models.Team, error)

	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
	FindTicket(ctx context.Context, eventID, participantID string) (*models.Ticket, error)
	ListTicketsByParticipant(ctx context.Context, participantID string) ([]*models.Ticket, error)
	ListTicketsByTeam(ctx context.Context, teamID string) ([]*models.Ticket, error)

	// SetTicketArtifacts stores the display token and pass location once they
	// have been produced outside the unit of work. Empty values leave the
	// stored column untouched.
	SetTicketArtifacts(ctx context.Context, ticketID, token, passURL string) error
	// ClearTicketPass forgets the pass location after the pass was withdrawn.
	ClearTicketPass(ctx context.Context, ticketID string) error
}

// Tx is the write side of a unit of work. Reads through Tx observe the
// unit's own uncommitted writes.
type Tx interface {
	InsertEvent(ctx context.Context, e *models.Event) error
	// GetEvent reads without taking the event lock.
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	// LockEvent takes the exclusive per-event lock and returns the row.
	LockEvent(ctx context.Context, id string) (*models.Event, error)
	// SaveEvent writes status and aggregate counters of a locked event.
	SaveEvent(ctx context.Context, e *models.Event) error

	FindRegistration(ctx context.Context, eventID, participantID string) (*models.Registration, error)
	InsertRegistration(ctx context.Context, r *models.Registration) error
	UpdateRegistrationStatus(ctx context.Context, id string, status models.RegistrationStatus, at time.Time) error
	// CompleteActiveRegistrations moves every active record of the event to
	// completed and returns how many changed.
	CompleteActiveRegistrations(ctx context.Context, eventID string, at time.Time) (int, error)

	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
	FindTicket(ctx context.Context, eventID, participantID string) (*models.Ticket, error)
	InsertTicket(ctx context.Context, t *models.Ticket) error
	MarkTicketCheckedIn(ctx context.Context, id string, at time.Time) error
	// BindTicketTeam records the team a reused ticket now seats its holder through.
	BindTicketTeam(ctx context.Context, id string, teamID *string) error

	// LockTeam takes the exclusive per-team lock and returns the team with
	// its members.
	LockTeam(ctx context.Context, id string) (*models.Team, error)
	LockTeamByInviteCode(ctx context.Context, code string) (*models.Team, error)
	// FindActiveTeamFor returns the non-cancelled team the participant
	// belongs to in the event.
	FindActiveTeamFor(ctx context.Context, eventID, participantID string) (*models.Team, error)
	// InsertTeam stores a new team together with its initial members.
	InsertTeam(ctx context.Context, t *models.Team) error
	AddTeamMember(ctx context.Context, teamID string, m models.TeamMember) error
	RemoveTeamMember(ctx context.Context, teamID, participantID string) error
	// SaveTeam writes status, invite code and completion time of a locked team.
	SaveTeam(ctx context.Context, t *models.Team) error
}
