package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/event-registration/models"
	"github.com/Dosada05/event-registration/repositories"
	"github.com/google/uuid"
)

// RegistrationLedger owns direct registrations and the event capacity
// counter they draw from.
type RegistrationLedger struct {
	store  repositories.Store
	issuer *TicketIssuer
	logger *slog.Logger
	now    func() time.Time
}

func NewRegistrationLedger(store repositories.Store, issuer *TicketIssuer, logger *slog.Logger) *RegistrationLedger {
	return &RegistrationLedger{store: store, issuer: issuer, logger: logger, now: time.Now}
}

// RegisterOutcome is the result of a direct registration. Created is false
// when an existing live registration was returned.
type RegisterOutcome struct {
	Registration *models.Registration
	Ticket       *models.Ticket
	Event        *models.Event
	Created      bool
}

// Register takes a seat for the participant. Every check and the counter
// increment run under the event lock: existence and lifecycle, deadline,
// duplicate registration, then capacity.
func (l *RegistrationLedger) Register(ctx context.Context, eventID, participantID string) (*RegisterOutcome, error) {
	var out *RegisterOutcome
	err := l.store.InTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		now := l.now().UTC()

		ev, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return handleRepositoryError(err, ErrEventNotFound, "lock event")
		}
		if !ev.AcceptsRegistrations() {
			return ErrEventNotOpen
		}
		if now.After(ev.RegistrationDeadline) {
			return ErrDeadlinePassed
		}

		seat, err := CheckSeat(ctx, tx, eventID, participantID)
		if err != nil {
			return err
		}
		existing := seat.Registration
		switch {
		case seat.Via() == models.SeatViaDirect:
			ticket, err := tx.GetTicket(ctx, existing.TicketID)
			if err != nil {
				return handleRepositoryError(err, ErrTicketNotFound, "get ticket")
			}
			out = &RegisterOutcome{Registration: existing, Ticket: ticket, Event: ev}
			return nil
		case seat.Team != nil:
			l.logger.DebugContext(ctx, "direct registration refused, participant is on a team",
				"event_id", eventID, "participant_id", participantID, "team_id", seat.Team.ID)
			return ErrAlreadyOnTeam
		}

		if !ev.HasRoomFor(1) {
			return ErrCapacityExceeded
		}

		ticket, _, err := l.issuer.Issue(ctx, tx, eventID, participantID, nil)
		if err != nil {
			return err
		}

		reg := existing
		if reg != nil {
			// A cancelled record is reactivated; the ticket stays the same.
			if err := tx.UpdateRegistrationStatus(ctx, reg.ID, models.RegistrationActive, now); err != nil {
				return fmt.Errorf("reactivate registration: %w", err)
			}
			reg.Status = models.RegistrationActive
			reg.UpdatedAt = now
		} else {
			reg = &models.Registration{
				ID:            uuid.NewString(),
				EventID:       eventID,
				ParticipantID: participantID,
				TicketID:      ticket.ID,
				Status:        models.RegistrationActive,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := tx.InsertRegistration(ctx, reg); err != nil {
				return fmt.Errorf("insert registration: %w", err)
			}
		}

		ev.RegisteredCount++
		ev.DirectCount++
		if err := tx.SaveEvent(ctx, ev); err != nil {
			return fmt.Errorf("save event counters: %w", err)
		}

		out = &RegisterOutcome{Registration: reg, Ticket: ticket, Event: ev, Created: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Cancel releases the participant's direct seat. The record is kept with
// status cancelled. Cancelling an already cancelled record is a no-op.
func (l *RegistrationLedger) Cancel(ctx context.Context, eventID, participantID string) (*models.Registration, *models.Event, error) {
	var (
		reg *models.Registration
		ev  *models.Event
	)
	err := l.store.InTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		ev, err = tx.LockEvent(ctx, eventID)
		if err != nil {
			return handleRepositoryError(err, ErrEventNotFound, "lock event")
		}
		reg, err = tx.FindRegistration(ctx, eventID, participantID)
		if err != nil {
			return handleRepositoryError(err, ErrRegistrationNotFound, "find registration")
		}
		if reg.Status == models.RegistrationCancelled {
			return nil
		}
		if reg.Status != models.RegistrationActive || !ev.AcceptsRegistrations() {
			return ErrRegistrationInactive
		}

		now := l.now().UTC()
		if err := tx.UpdateRegistrationStatus(ctx, reg.ID, models.RegistrationCancelled, now); err != nil {
			return fmt.Errorf("cancel registration: %w", err)
		}
		reg.Status = models.RegistrationCancelled
		reg.UpdatedAt = now

		ev.RegisteredCount--
		ev.DirectCount--
		if err := tx.SaveEvent(ctx, ev); err != nil {
			return fmt.Errorf("save event counters: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return reg, ev, nil
}

// markAttended moves a live direct record to attended inside the caller's
// unit of work.
func (l *RegistrationLedger) markAttended(ctx context.Context, tx repositories.Tx, reg *models.Registration, at time.Time) error {
	switch reg.Status {
	case models.RegistrationAttended:
		return nil
	case models.RegistrationActive, models.RegistrationCompleted:
	default:
		return ErrRegistrationInactive
	}
	if err := tx.UpdateRegistrationStatus(ctx, reg.ID, models.RegistrationAttended, at); err != nil {
		return fmt.Errorf("mark registration attended: %w", err)
	}
	reg.Status = models.RegistrationAttended
	reg.UpdatedAt = at
	return nil
}

// ListByEvent returns every direct record of the event, including cancelled ones.
func (l *RegistrationLedger) ListByEvent(ctx context.Context, eventID string) ([]*models.Registration, error) {
	regs, err := l.store.ListRegistrationsByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return regs, nil
}
