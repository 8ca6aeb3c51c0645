package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/event-registration/models"
	"github.com/Dosada05/event-registration/repositories"
	"github.com/google/uuid"
)

// TicketIssuer allocates tickets. Allocation happens inside the caller's unit
// of work and is idempotent per (event, participant); the display token and
// the pass are produced after commit and may fail without affecting the seat.
type TicketIssuer struct {
	store   repositories.Reader
	encoder TokenEncoder
	passes  PassPublisher
	logger  *slog.Logger
	now     func() time.Time
}

func NewTicketIssuer(store repositories.Reader, encoder TokenEncoder, passes PassPublisher, logger *slog.Logger) *TicketIssuer {
	return &TicketIssuer{
		store:   store,
		encoder: encoder,
		passes:  passes,
		logger:  logger,
		now:     time.Now,
	}
}

// Issue returns the participant's ticket for the event, creating it if none
// exists. The boolean is true when a new ticket was allocated.
func (i *TicketIssuer) Issue(ctx context.Context, tx repositories.Tx, eventID, participantID string, teamID *string) (*models.Ticket, bool, error) {
	existing, err := tx.FindTicket(ctx, eventID, participantID)
	if err == nil {
		if !sameTeam(existing.TeamID, teamID) {
			if err := tx.BindTicketTeam(ctx, existing.ID, teamID); err != nil {
				return nil, false, fmt.Errorf("bind ticket %s to team: %w", existing.ID, err)
			}
			existing.TeamID = teamID
			// The stored pass names the old team; finalize publishes a new one.
			existing.PassURL = ""
		}
		return existing, false, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, false, fmt.Errorf("find ticket: %w", err)
	}

	t := &models.Ticket{
		ID:            uuid.NewString(),
		EventID:       eventID,
		ParticipantID: participantID,
		TeamID:        teamID,
		IssuedAt:      i.now().UTC(),
	}
	if err := tx.InsertTicket(ctx, t); err != nil {
		return nil, false, fmt.Errorf("insert ticket: %w", err)
	}
	return t, true, nil
}

// Finalize fills in whatever display artifacts the ticket is still missing.
// Failures are logged and leave the ticket usable for manual check-in.
func (i *TicketIssuer) Finalize(ctx context.Context, t *models.Ticket) *models.Ticket {
	out := *t
	changed := false

	if out.Token == "" && i.encoder != nil {
		token, err := i.encoder.Encode(ctx, out.Payload())
		if err != nil {
			i.logger.WarnContext(ctx, "ticket token encoding failed", "ticket_id", out.ID, "event_id", out.EventID, "error", err)
		} else {
			out.Token = token
			changed = true
		}
	}

	if out.PassURL == "" && out.Token != "" && i.passes != nil {
		url, err := i.passes.Publish(ctx, &out)
		if err != nil {
			i.logger.WarnContext(ctx, "ticket pass upload failed", "ticket_id", out.ID, "event_id", out.EventID, "error", err)
		} else {
			out.PassURL = url
			changed = true
		}
	}

	if changed {
		if err := i.store.SetTicketArtifacts(ctx, out.ID, out.Token, out.PassURL); err != nil {
			i.logger.WarnContext(ctx, "failed to store ticket artifacts", "ticket_id", out.ID, "error", err)
		}
	}
	return &out
}

// Withdraw deletes the ticket's pass, used when the seat behind it is
// released. A later Finalize publishes it again. Failures are only logged.
func (i *TicketIssuer) Withdraw(ctx context.Context, ticketID string) {
	t, err := i.store.GetTicket(ctx, ticketID)
	if err != nil {
		i.logger.WarnContext(ctx, "ticket lookup for pass withdrawal failed", "ticket_id", ticketID, "error", err)
		return
	}
	if t.PassURL == "" || i.passes == nil {
		return
	}
	if err := i.passes.Withdraw(ctx, t); err != nil {
		i.logger.WarnContext(ctx, "ticket pass removal failed", "ticket_id", t.ID, "event_id", t.EventID, "error", err)
		return
	}
	if err := i.store.ClearTicketPass(ctx, t.ID); err != nil {
		i.logger.WarnContext(ctx, "failed to clear ticket pass", "ticket_id", t.ID, "error", err)
	}
}

func sameTeam(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
