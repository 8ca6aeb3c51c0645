package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dosada05/event-registration/models"
	"github.com/Dosada05/event-registration/repositories"
)

// seatLookup is the part of a unit of work HasSeat needs.
type seatLookup interface {
	FindRegistration(ctx context.Context, eventID, participantID string) (*models.Registration, error)
	FindActiveTeamFor(ctx context.Context, eventID, participantID string) (*models.Team, error)
}

// SeatCheck is what a unit of work knows about a participant's place in an
// event.
type SeatCheck struct {
	// Registration is the direct record in any status, nil when none exists.
	Registration *models.Registration
	// Team is the non-cancelled team the participant belongs to.
	Team *models.Team
}

// Via reports how the participant occupies capacity, or "" when they hold no
// seat. A forming team does not hold a seat yet.
func (s SeatCheck) Via() models.SeatVia {
	switch {
	case s.Registration != nil && s.Registration.HoldsSeat():
		return models.SeatViaDirect
	case s.Team != nil && s.Team.Status == models.TeamStatusComplete:
		return models.SeatViaTeam
	}
	return ""
}

// CheckSeat looks up the participant's direct record and team membership for
// the event. The ledger and the team registry both decide from its result.
func CheckSeat(ctx context.Context, tx seatLookup, eventID, participantID string) (SeatCheck, error) {
	var seat SeatCheck

	reg, err := tx.FindRegistration(ctx, eventID, participantID)
	switch {
	case err == nil:
		seat.Registration = reg
	case !errors.Is(err, repositories.ErrNotFound):
		return SeatCheck{}, fmt.Errorf("find registration: %w", err)
	}

	team, err := tx.FindActiveTeamFor(ctx, eventID, participantID)
	switch {
	case err == nil:
		seat.Team = team
	case !errors.Is(err, repositories.ErrNotFound):
		return SeatCheck{}, fmt.Errorf("find team membership: %w", err)
	}
	return seat, nil
}

// HasSeat reports whether the participant already occupies capacity in the
// event, either through a live direct registration or as a member of a
// completed team.
func HasSeat(ctx context.Context, tx seatLookup, eventID, participantID string) (bool, models.SeatVia, error) {
	seat, err := CheckSeat(ctx, tx, eventID, participantID)
	if err != nil {
		return false, "", err
	}
	via := seat.Via()
	return via != "", via, nil
}

// ListSeats builds the "my events" view from the participant's tickets. A
// ticket counts as a seat when its direct record still holds one or when it
// was issued through a completed team.
func ListSeats(ctx context.Context, r repositories.Reader, participantID string) ([]models.Seat, error) {
	tickets, err := r.ListTicketsByParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}

	seats := make([]models.Seat, 0, len(tickets))
	for _, t := range tickets {
		if t.TeamID != nil {
			team, err := r.GetTeam(ctx, *t.TeamID)
			if err != nil && !errors.Is(err, repositories.ErrNotFound) {
				return nil, err
			}
			if err == nil && team.Status == models.TeamStatusComplete && team.HasMember(participantID) {
				status := string(models.RegistrationActive)
				if t.CheckedInAt != nil {
					status = string(models.RegistrationAttended)
				}
				seats = append(seats, models.Seat{
					EventID:       t.EventID,
					ParticipantID: participantID,
					TicketID:      t.ID,
					Via:           models.SeatViaTeam,
					TeamID:        t.TeamID,
					Status:        status,
					CheckedInAt:   t.CheckedInAt,
				})
				continue
			}
		}

		reg, err := r.FindRegistration(ctx, t.EventID, participantID)
		if errors.Is(err, repositories.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !reg.HoldsSeat() {
			continue
		}
		seats = append(seats, models.Seat{
			EventID:       t.EventID,
			ParticipantID: participantID,
			TicketID:      t.ID,
			Via:           models.SeatViaDirect,
			Status:        string(reg.Status),
			CheckedInAt:   t.CheckedInAt,
		})
	}
	return seats, nil
}
