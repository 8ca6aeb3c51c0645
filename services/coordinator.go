package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Dosada05/event-registration/models"
	"github.com/Dosada05/event-registration/repositories"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	finalizeConcurrency = 4
	// sharedCallTimeout bounds a collapsed call, which no longer follows any
	// single caller's context.
	sharedCallTimeout = 30 * time.Second
)

// Coordinator is the entry point for participant-facing registration
// operations. It dispatches on the event kind, runs the ledger or registry
// unit of work, and performs the post-commit side effects: display tokens,
// passes, notifications and live updates.
type Coordinator struct {
	store    repositories.Store
	catalog  EventCatalog
	ledger   *RegistrationLedger
	teams    *TeamRegistry
	issuer   *TicketIssuer
	decoder  TokenDecoder
	notifier Notifier
	feed     LiveFeed
	tracer   trace.Tracer
	logger   *slog.Logger
	now      func() time.Time

	inflight singleflight.Group
	pending  sync.WaitGroup
}

type CoordinatorDeps struct {
	Store    repositories.Store
	Catalog  EventCatalog
	Ledger   *RegistrationLedger
	Teams    *TeamRegistry
	Issuer   *TicketIssuer
	Decoder  TokenDecoder
	Notifier Notifier
	Feed     LiveFeed
	Tracer   trace.Tracer
	Logger   *slog.Logger
}

func NewCoordinator(d CoordinatorDeps) *Coordinator {
	c := &Coordinator{
		store:    d.Store,
		catalog:  d.Catalog,
		ledger:   d.Ledger,
		teams:    d.Teams,
		issuer:   d.Issuer,
		decoder:  d.Decoder,
		notifier: d.Notifier,
		feed:     d.Feed,
		tracer:   d.Tracer,
		logger:   d.Logger,
		now:      time.Now,
	}
	if c.feed == nil {
		c.feed = nopFeed{}
	}
	if c.notifier == nil {
		c.notifier = MultiNotifier{}
	}
	return c
}

type RegisterRequest struct {
	EventID string
	// PaymentApproved is the external approval signal merchandise events
	// with RequiresApproval wait for.
	PaymentApproved bool
}

type RegistrationResult struct {
	Registration *models.Registration
	Ticket       *models.Ticket
	Created      bool
}

// Register takes a direct seat for the caller. Retrying a successful call
// returns the same registration and ticket.
func (c *Coordinator) Register(ctx context.Context, auth models.AuthContext, req RegisterRequest) (res *RegistrationResult, err error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.Register", trace.WithAttributes(
		attribute.String("event.id", req.EventID),
		attribute.String("participant.id", auth.ParticipantID),
	))
	defer func() { endSpan(span, err) }()

	ev, err := c.catalog.Get(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	if err := checkDirectPath(ev, req); err != nil {
		return nil, err
	}

	key := "register/" + req.EventID + "/" + auth.ParticipantID
	v, shared, err := c.shared(ctx, key, func(ctx context.Context) (interface{}, error) {
		outcome, err := c.ledger.Register(ctx, req.EventID, auth.ParticipantID)
		if err != nil {
			return nil, err
		}
		ticket := c.finalize(ctx, []*models.Ticket{outcome.Ticket})[0]
		if outcome.Created {
			c.logger.InfoContext(ctx, "participant registered",
				"event_id", req.EventID, "participant_id", auth.ParticipantID, "ticket_id", ticket.ID,
				"registered_count", outcome.Event.RegisteredCount)
			c.afterSeats(ctx, outcome.Event, []*models.Ticket{ticket})
		}
		return &RegistrationResult{Registration: outcome.Registration, Ticket: ticket, Created: outcome.Created}, nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Bool("singleflight.shared", shared))
	return v.(*RegistrationResult), nil
}

// checkDirectPath dispatches on the event kind.
func checkDirectPath(ev *models.Event, req RegisterRequest) error {
	switch ev.Kind {
	case models.EventKindIndividual:
		return nil
	case models.EventKindMerchandise:
		if ev.RequiresApproval && !req.PaymentApproved {
			return ErrPaymentRequired
		}
		return nil
	case models.EventKindTeam:
		return fmt.Errorf("%w: %s events register through teams", ErrWrongRegistrationPath, ev.Kind)
	}
	return fmt.Errorf("%w: unknown kind %q", ErrWrongRegistrationPath, ev.Kind)
}

// CancelRegistration releases the caller's direct seat.
func (c *Coordinator) CancelRegistration(ctx context.Context, auth models.AuthContext, eventID string) (reg *models.Registration, err error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.CancelRegistration", trace.WithAttributes(attribute.String("event.id", eventID)))
	defer func() { endSpan(span, err) }()

	reg, ev, err := c.ledger.Cancel(ctx, eventID, auth.ParticipantID)
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "registration cancelled", "event_id", eventID, "participant_id", auth.ParticipantID)
	c.issuer.Withdraw(ctx, reg.TicketID)
	c.feed.Publish(eventID, models.NewEventUpdate(models.UpdateCapacity, ev, c.now().UTC()))
	return reg, nil
}

type CreateTeamRequest struct {
	EventID    string
	Name       string
	TargetSize int
}

// CreateTeam starts a team led by the caller, or returns the caller's
// existing team for the event.
func (c *Coordinator) CreateTeam(ctx context.Context, auth models.AuthContext, req CreateTeamRequest) (team *models.Team, created bool, err error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.CreateTeam", trace.WithAttributes(attribute.String("event.id", req.EventID)))
	defer func() { endSpan(span, err) }()

	ev, err := c.catalog.Get(ctx, req.EventID)
	if err != nil {
		return nil, false, err
	}
	if ev.Kind != models.EventKindTeam {
		return nil, false, fmt.Errorf("%w: %s events do not accept teams", ErrWrongRegistrationPath, ev.Kind)
	}

	team, created, err = c.teams.Create(ctx, CreateTeamInput{
		EventID:    req.EventID,
		LeaderID:   auth.ParticipantID,
		Name:       req.Name,
		TargetSize: req.TargetSize,
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		c.logger.InfoContext(ctx, "team created", "event_id", req.EventID, "team_id", team.ID, "target_size", team.TargetSize)
		c.publishTeam(team)
	}
	return team, created, nil
}

// JoinTeam adds the caller to the team behind the invite code.
func (c *Coordinator) JoinTeam(ctx context.Context, auth models.AuthContext, inviteCode string) (team *models.Team, joined bool, err error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.JoinTeam")
	defer func() { endSpan(span, err) }()

	team, joined, err = c.teams.Join(ctx, inviteCode, auth.ParticipantID)
	if err != nil {
		return nil, false, err
	}
	span.SetAttributes(attribute.String("team.id", team.ID))
	if joined {
		c.logger.InfoContext(ctx, "participant joined team", "team_id", team.ID, "participant_id", auth.ParticipantID,
			"members", len(team.Members), "target_size", team.TargetSize)
		c.publishTeam(team)
	}
	return team, joined, nil
}

// CompleteTeam finalizes a full team. Concurrent calls for the same team
// share one unit of work.
func (c *Coordinator) CompleteTeam(ctx context.Context, auth models.AuthContext, teamID string) (out *CompleteOutcome, err error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.CompleteTeam", trace.WithAttributes(attribute.String("team.id", teamID)))
	defer func() { endSpan(span, err) }()

	v, shared, err := c.shared(ctx, "complete/"+teamID+"/"+auth.ParticipantID, func(ctx context.Context) (interface{}, error) {
		outcome, err := c.teams.Complete(ctx, teamID, auth.ParticipantID)
		if err != nil {
			return nil, err
		}
		result := *outcome
		result.Tickets = c.finalize(ctx, outcome.Tickets)
		if !outcome.AlreadyComplete {
			c.logger.InfoContext(ctx, "team registration complete",
				"team_id", teamID, "event_id", outcome.Team.EventID, "members", len(outcome.Team.Members),
				"registered_count", outcome.Event.RegisteredCount)
			c.afterSeats(ctx, outcome.Event, result.Tickets)
			c.publishTeam(outcome.Team)
		}
		return &result, nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Bool("singleflight.shared", shared))
	return v.(*CompleteOutcome), nil
}

// RemoveMember drops a member from a forming team.
func (c *Coordinator) RemoveMember(ctx context.Context, auth models.AuthContext, teamID, memberID string) (team *models.Team, err error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.RemoveMember", trace.WithAttributes(attribute.String("team.id", teamID)))
	defer func() { endSpan(span, err) }()

	team, err = c.teams.RemoveMember(ctx, teamID, memberID, auth.ParticipantID)
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "team member removed", "team_id", teamID, "member_id", memberID, "by", auth.ParticipantID)
	c.publishTeam(team)
	return team, nil
}

// CancelTeam dissolves a forming team led by the caller.
func (c *Coordinator) CancelTeam(ctx context.Context, auth models.AuthContext, teamID string) (team *models.Team, err error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.CancelTeam", trace.WithAttributes(attribute.String("team.id", teamID)))
	defer func() { endSpan(span, err) }()

	team, err = c.teams.Cancel(ctx, teamID, auth.ParticipantID)
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "team cancelled", "team_id", teamID)
	c.publishTeam(team)
	return team, nil
}

func (c *Coordinator) RegenerateInviteCode(ctx context.Context, auth models.AuthContext, teamID string) (*models.Team, error) {
	return c.teams.RegenerateInviteCode(ctx, teamID, auth.ParticipantID)
}

// GetTeam returns the team. The invite code is only shown to members.
func (c *Coordinator) GetTeam(ctx context.Context, auth models.AuthContext, teamID string) (*models.Team, error) {
	team, err := c.teams.Get(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if !team.HasMember(auth.ParticipantID) && !auth.CanManageEvents() {
		team.InviteCode = ""
	}
	return team, nil
}

// Seats is the unified "my events" view of the caller.
func (c *Coordinator) Seats(ctx context.Context, auth models.AuthContext) ([]models.Seat, error) {
	seats, err := ListSeats(ctx, c.store, auth.ParticipantID)
	if err != nil {
		return nil, fmt.Errorf("list seats: %w", err)
	}
	return seats, nil
}

type CheckInResult struct {
	Ticket           *models.Ticket
	Via              models.SeatVia
	AlreadyCheckedIn bool
}

// CheckIn validates a presented display token and records attendance. It is
// idempotent per ticket.
func (c *Coordinator) CheckIn(ctx context.Context, auth models.AuthContext, token string) (res *CheckInResult, err error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.CheckIn")
	defer func() { endSpan(span, err) }()

	if !auth.CanManageEvents() {
		return nil, ErrForbiddenOperation
	}
	payload, err := c.decoder.Decode(token)
	if err != nil {
		return nil, err
	}

	var ev *models.Event
	err = c.store.InTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		now := c.now().UTC()

		var err error
		ev, err = tx.LockEvent(ctx, payload.EventID)
		if err != nil {
			return handleRepositoryError(err, ErrEventNotFound, "lock event")
		}
		if auth.Role != models.RoleAdmin && ev.OrganizerID != auth.ParticipantID {
			return ErrForbiddenOperation
		}
		ticket, err := tx.GetTicket(ctx, payload.TicketID)
		if err != nil {
			return handleRepositoryError(err, ErrTicketNotFound, "get ticket")
		}
		if ticket.EventID != payload.EventID || ticket.ParticipantID != payload.ParticipantID {
			return ErrInvalidTicketToken
		}

		has, via, err := HasSeat(ctx, tx, ticket.EventID, ticket.ParticipantID)
		if err != nil {
			return fmt.Errorf("check seat: %w", err)
		}
		if !has {
			return ErrRegistrationInactive
		}
		res = &CheckInResult{Ticket: ticket, Via: via}
		if ticket.CheckedInAt != nil {
			res.AlreadyCheckedIn = true
			return nil
		}

		if via == models.SeatViaDirect {
			reg, err := tx.FindRegistration(ctx, ticket.EventID, ticket.ParticipantID)
			if err != nil {
				return handleRepositoryError(err, ErrRegistrationNotFound, "find registration")
			}
			if err := c.ledger.markAttended(ctx, tx, reg, now); err != nil {
				return err
			}
		}
		if err := tx.MarkTicketCheckedIn(ctx, ticket.ID, now); err != nil {
			return fmt.Errorf("mark ticket checked in: %w", err)
		}
		ticket.CheckedInAt = &now

		ev.AttendedCount++
		if err := tx.SaveEvent(ctx, ev); err != nil {
			return fmt.Errorf("save event counters: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !res.AlreadyCheckedIn {
		c.logger.InfoContext(ctx, "ticket checked in", "event_id", ev.ID, "ticket_id", res.Ticket.ID, "via", res.Via)
		update := models.NewEventUpdate(models.UpdateCheckIn, ev, c.now().UTC())
		update.TicketID = res.Ticket.ID
		update.ParticipantID = res.Ticket.ParticipantID
		c.feed.Publish(ev.ID, update)
	}
	return res, nil
}

// shared runs fn once for all concurrent callers with the same key. fn gets
// a context detached from the caller that started it, so one caller's
// cancellation never fails the others; each caller stops waiting when its own
// ctx is done.
func (c *Coordinator) shared(ctx context.Context, key string, fn func(ctx context.Context) (interface{}, error)) (interface{}, bool, error) {
	ch := c.inflight.DoChan(key, func() (interface{}, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedCallTimeout)
		defer cancel()
		return fn(runCtx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Wait blocks until in-flight notifications have been delivered.
func (c *Coordinator) Wait() {
	c.pending.Wait()
}

// finalize produces missing display artifacts for the tickets in parallel.
// The result keeps the input order.
func (c *Coordinator) finalize(ctx context.Context, tickets []*models.Ticket) []*models.Ticket {
	out := make([]*models.Ticket, len(tickets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(finalizeConcurrency)
	for i, t := range tickets {
		if t.Token != "" && t.PassURL != "" {
			out[i] = t
			continue
		}
		g.Go(func() error {
			out[i] = c.issuer.Finalize(gctx, t)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// afterSeats announces new seats. Notifications run in the background and
// their failures are only logged.
func (c *Coordinator) afterSeats(ctx context.Context, ev *models.Event, tickets []*models.Ticket) {
	c.feed.Publish(ev.ID, models.NewEventUpdate(models.UpdateCapacity, ev, c.now().UTC()))

	bg := context.WithoutCancel(ctx)
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		for _, t := range tickets {
			if err := c.notifier.NotifyRegistrationComplete(bg, t.ParticipantID, t.EventID, t.ID); err != nil {
				c.logger.WarnContext(bg, "registration notification failed",
					"event_id", t.EventID, "participant_id", t.ParticipantID, "ticket_id", t.ID, "error", err)
			}
		}
	}()
}

func (c *Coordinator) publishTeam(team *models.Team) {
	c.feed.Publish(team.EventID, models.EventUpdate{
		Type:     models.UpdateTeamChanged,
		EventID:  team.EventID,
		TeamID:   team.ID,
		TeamSize: len(team.Members),
		At:       c.now().UTC(),
	})
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		span.RecordError(err)
		span.SetStatus(codes.Error, KindOf(err).String())
	}
	span.End()
}
