package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/event-registration/models"
	"github.com/Dosada05/event-registration/repositories"
	"github.com/Dosada05/event-registration/utils"
	"github.com/google/uuid"
)

const (
	inviteCodeLength      = 6 // random bytes, hex-encoded
	maxInviteCodeAttempts = 3
)

// TeamRegistry owns team membership, invite codes and the
// forming -> complete | cancelled state machine.
type TeamRegistry struct {
	store  repositories.Store
	issuer *TicketIssuer
	logger *slog.Logger
	now    func() time.Time

	generateCode func() (string, error)
	// beforeTransition runs after member tickets are allocated and before the
	// team is marked complete. Tests use it to fail the unit at that point.
	beforeTransition func(*models.Team) error
}

func NewTeamRegistry(store repositories.Store, issuer *TicketIssuer, logger *slog.Logger) *TeamRegistry {
	return &TeamRegistry{
		store:  store,
		issuer: issuer,
		logger: logger,
		now:    time.Now,
		generateCode: func() (string, error) {
			return utils.GenerateSecureToken(inviteCodeLength)
		},
	}
}

type CreateTeamInput struct {
	EventID    string
	LeaderID   string
	Name       string
	TargetSize int
}

// Create starts a forming team with the leader as its first member. When the
// leader already belongs to a live team in the event, that team is returned
// and created is false.
func (r *TeamRegistry) Create(ctx context.Context, in CreateTeamInput) (team *models.Team, created bool, err error) {
	for attempt := 0; attempt < maxInviteCodeAttempts; attempt++ {
		team, created, err = r.tryCreate(ctx, in)
		switch {
		case errors.Is(err, repositories.ErrInviteCodeConflict):
			r.logger.DebugContext(ctx, "invite code collision, retrying", "event_id", in.EventID, "attempt", attempt+1)
			continue
		case errors.Is(err, repositories.ErrMembershipConflict):
			// A concurrent create or join put the leader on a team first.
			existing, findErr := r.activeTeamFor(ctx, in.EventID, in.LeaderID)
			if findErr != nil {
				return nil, false, ErrAlreadyOnTeam
			}
			return existing, false, nil
		}
		return team, created, err
	}
	return nil, false, fmt.Errorf("%w after %d attempts", ErrInviteCodeGeneration, maxInviteCodeAttempts)
}

func (r *TeamRegistry) tryCreate(ctx context.Context, in CreateTeamInput) (*models.Team, bool, error) {
	var (
		team    *models.Team
		created bool
	)
	err := r.store.InTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		now := r.now().UTC()

		ev, err := tx.GetEvent(ctx, in.EventID)
		if err != nil {
			return handleRepositoryError(err, ErrEventNotFound, "get event")
		}
		if !ev.AcceptsRegistrations() {
			return ErrEventNotOpen
		}
		if now.After(ev.RegistrationDeadline) {
			return ErrDeadlinePassed
		}

		seat, err := CheckSeat(ctx, tx, in.EventID, in.LeaderID)
		if err != nil {
			return err
		}
		if seat.Team != nil {
			team = seat.Team
			return nil
		}
		if seat.Via() == models.SeatViaDirect {
			return ErrAlreadyRegistered
		}

		if in.TargetSize < 1 || in.TargetSize > ev.RegistrationLimit ||
			(ev.MaxTeamSize > 0 && in.TargetSize > ev.MaxTeamSize) {
			return fmt.Errorf("%w: %d", ErrInvalidTeamSize, in.TargetSize)
		}

		code, err := r.generateCode()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInviteCodeGeneration, err)
		}
		team = &models.Team{
			ID:         uuid.NewString(),
			EventID:    in.EventID,
			LeaderID:   in.LeaderID,
			Name:       in.Name,
			TargetSize: in.TargetSize,
			InviteCode: code,
			Status:     models.TeamStatusForming,
			Members:    []models.TeamMember{{ParticipantID: in.LeaderID, JoinedAt: now}},
			CreatedAt:  now,
		}
		if err := tx.InsertTeam(ctx, team); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return team, created, nil
}

// Join adds the participant to the team behind the invite code. The size
// check and the append happen under the team lock. Joining a team one already
// belongs to returns that team with joined false.
func (r *TeamRegistry) Join(ctx context.Context, code, participantID string) (team *models.Team, joined bool, err error) {
	err = r.store.InTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		now := r.now().UTC()

		t, err := tx.LockTeamByInviteCode(ctx, code)
		if err != nil {
			return handleRepositoryError(err, ErrInvalidInviteCode, "lock team by invite code")
		}
		if t.Status == models.TeamStatusCancelled {
			return ErrTeamCancelled
		}
		ev, err := tx.GetEvent(ctx, t.EventID)
		if err != nil {
			return handleRepositoryError(err, ErrEventNotFound, "get event")
		}
		if !ev.AcceptsRegistrations() {
			return ErrEventNotOpen
		}
		if now.After(ev.RegistrationDeadline) {
			return ErrDeadlinePassed
		}

		if t.HasMember(participantID) {
			team = t
			return nil
		}
		seat, err := CheckSeat(ctx, tx, t.EventID, participantID)
		if err != nil {
			return err
		}
		if seat.Team != nil {
			return ErrAlreadyOnTeam
		}
		if seat.Via() == models.SeatViaDirect {
			return ErrAlreadyRegistered
		}

		if t.Status == models.TeamStatusComplete {
			return ErrTeamAlreadyComplete
		}
		if t.IsFull() {
			return ErrTeamFull
		}

		member := models.TeamMember{ParticipantID: participantID, JoinedAt: now}
		if err := tx.AddTeamMember(ctx, t.ID, member); err != nil {
			return err
		}
		t.Members = append(t.Members, member)
		team = t
		joined = true
		return nil
	})
	if errors.Is(err, repositories.ErrMembershipConflict) {
		return nil, false, ErrAlreadyOnTeam
	}
	if err != nil {
		return nil, false, err
	}
	return team, joined, nil
}

// CompleteOutcome carries the team's tickets in member order.
type CompleteOutcome struct {
	Team            *models.Team
	Event           *models.Event
	Tickets         []*models.Ticket
	AlreadyComplete bool
}

// Complete issues one ticket per member, marks the team complete and adds
// the members to the event counters in one unit. The team lock is taken
// before the event lock. Completing a complete team returns its tickets and
// changes nothing.
func (r *TeamRegistry) Complete(ctx context.Context, teamID, requesterID string) (*CompleteOutcome, error) {
	var out *CompleteOutcome
	err := r.store.InTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		now := r.now().UTC()

		team, err := tx.LockTeam(ctx, teamID)
		if err != nil {
			return handleRepositoryError(err, ErrTeamNotFound, "lock team")
		}
		if !team.IsLeader(requesterID) {
			return ErrNotTeamLeader
		}
		if team.Status == models.TeamStatusCancelled {
			return ErrTeamCancelled
		}

		ev, err := tx.LockEvent(ctx, team.EventID)
		if err != nil {
			return handleRepositoryError(err, ErrEventNotFound, "lock event")
		}
		// A complete team already holds its seats; a retry returns them even
		// after registration has closed.
		if team.Status == models.TeamStatusComplete {
			tickets, err := memberTickets(ctx, tx, team)
			if err != nil {
				return err
			}
			out = &CompleteOutcome{Team: team, Event: ev, Tickets: tickets, AlreadyComplete: true}
			return nil
		}
		if !ev.AcceptsRegistrations() {
			return ErrEventNotOpen
		}
		if now.After(ev.RegistrationDeadline) {
			return ErrDeadlinePassed
		}

		if len(team.Members) < team.TargetSize {
			return fmt.Errorf("%w: %d of %d members", ErrTeamNotFull, len(team.Members), team.TargetSize)
		}
		for _, m := range team.Members {
			if err := ensureNoDirectSeat(ctx, tx, team.EventID, m.ParticipantID); err != nil {
				if errors.Is(err, ErrAlreadyRegistered) {
					return fmt.Errorf("%w: %s", ErrMemberHasSeat, m.ParticipantID)
				}
				return err
			}
		}
		if !ev.HasRoomFor(len(team.Members)) {
			return ErrCapacityExceeded
		}

		teamRef := team.ID
		tickets := make([]*models.Ticket, 0, len(team.Members))
		for _, m := range team.Members {
			t, _, err := r.issuer.Issue(ctx, tx, team.EventID, m.ParticipantID, &teamRef)
			if err != nil {
				return fmt.Errorf("issue ticket for %s: %w", m.ParticipantID, err)
			}
			tickets = append(tickets, t)
		}

		if r.beforeTransition != nil {
			if err := r.beforeTransition(team); err != nil {
				return err
			}
		}

		team.Status = models.TeamStatusComplete
		team.CompletedAt = &now
		if err := tx.SaveTeam(ctx, team); err != nil {
			return fmt.Errorf("save team: %w", err)
		}

		ev.RegisteredCount += len(team.Members)
		ev.TeamSeatCount += len(team.Members)
		ev.CompletedTeams++
		if err := tx.SaveEvent(ctx, ev); err != nil {
			return fmt.Errorf("save event counters: %w", err)
		}

		out = &CompleteOutcome{Team: team, Event: ev, Tickets: tickets}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveMember drops a member from a forming team. The leader may remove
// anyone but themselves; a member may remove themselves.
func (r *TeamRegistry) RemoveMember(ctx context.Context, teamID, memberID, requesterID string) (*models.Team, error) {
	var team *models.Team
	err := r.store.InTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		t, err := tx.LockTeam(ctx, teamID)
		if err != nil {
			return handleRepositoryError(err, ErrTeamNotFound, "lock team")
		}
		if !t.IsLeader(requesterID) && memberID != requesterID {
			return ErrNotTeamLeader
		}
		if err := requireForming(t); err != nil {
			return err
		}
		if memberID == t.LeaderID {
			return ErrLeaderCannotLeave
		}
		if !t.HasMember(memberID) {
			return ErrMemberNotFound
		}

		if err := tx.RemoveTeamMember(ctx, t.ID, memberID); err != nil {
			return handleRepositoryError(err, ErrMemberNotFound, "remove team member")
		}
		kept := make([]models.TeamMember, 0, len(t.Members)-1)
		for _, m := range t.Members {
			if m.ParticipantID != memberID {
				kept = append(kept, m)
			}
		}
		t.Members = kept
		team = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return team, nil
}

// Cancel moves a forming team to cancelled, freeing its members to join or
// start other teams. Cancelling a cancelled team is a no-op.
func (r *TeamRegistry) Cancel(ctx context.Context, teamID, requesterID string) (*models.Team, error) {
	var team *models.Team
	err := r.store.InTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		t, err := tx.LockTeam(ctx, teamID)
		if err != nil {
			return handleRepositoryError(err, ErrTeamNotFound, "lock team")
		}
		if !t.IsLeader(requesterID) {
			return ErrNotTeamLeader
		}
		team = t
		switch t.Status {
		case models.TeamStatusCancelled:
			return nil
		case models.TeamStatusComplete:
			return ErrTeamAlreadyComplete
		}

		t.Status = models.TeamStatusCancelled
		if err := tx.SaveTeam(ctx, t); err != nil {
			return fmt.Errorf("save team: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return team, nil
}

// RegenerateInviteCode replaces the invite code of a forming team. The old
// code stops working immediately.
func (r *TeamRegistry) RegenerateInviteCode(ctx context.Context, teamID, requesterID string) (*models.Team, error) {
	for attempt := 0; attempt < maxInviteCodeAttempts; attempt++ {
		var team *models.Team
		err := r.store.InTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
			t, err := tx.LockTeam(ctx, teamID)
			if err != nil {
				return handleRepositoryError(err, ErrTeamNotFound, "lock team")
			}
			if !t.IsLeader(requesterID) {
				return ErrNotTeamLeader
			}
			if err := requireForming(t); err != nil {
				return err
			}
			code, err := r.generateCode()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInviteCodeGeneration, err)
			}
			t.InviteCode = code
			if err := tx.SaveTeam(ctx, t); err != nil {
				return err
			}
			team = t
			return nil
		})
		if errors.Is(err, repositories.ErrInviteCodeConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return team, nil
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrInviteCodeGeneration, maxInviteCodeAttempts)
}

func (r *TeamRegistry) Get(ctx context.Context, teamID string) (*models.Team, error) {
	team, err := r.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, handleRepositoryError(err, ErrTeamNotFound, "get team")
	}
	return team, nil
}

func (r *TeamRegistry) activeTeamFor(ctx context.Context, eventID, participantID string) (*models.Team, error) {
	var team *models.Team
	err := r.store.InTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		t, err := tx.FindActiveTeamFor(ctx, eventID, participantID)
		if err != nil {
			return err
		}
		team = t
		return nil
	})
	return team, err
}

func memberTickets(ctx context.Context, tx repositories.Tx, team *models.Team) ([]*models.Ticket, error) {
	tickets := make([]*models.Ticket, 0, len(team.Members))
	for _, m := range team.Members {
		t, err := tx.FindTicket(ctx, team.EventID, m.ParticipantID)
		if err != nil {
			return nil, handleRepositoryError(err, ErrTicketNotFound, "find member ticket")
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

func requireForming(t *models.Team) error {
	switch t.Status {
	case models.TeamStatusComplete:
		return ErrTeamAlreadyComplete
	case models.TeamStatusCancelled:
		return ErrTeamCancelled
	}
	return nil
}

// ensureNoDirectSeat fails with ErrAlreadyRegistered when the participant
// holds a live direct registration for the event.
func ensureNoDirectSeat(ctx context.Context, tx seatLookup, eventID, participantID string) error {
	has, via, err := HasSeat(ctx, tx, eventID, participantID)
	if err != nil {
		return fmt.Errorf("check seat: %w", err)
	}
	if has && via == models.SeatViaDirect {
		return ErrAlreadyRegistered
	}
	return nil
}
