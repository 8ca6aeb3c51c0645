package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Dosada05/event-registration/models"
	"github.com/Dosada05/event-registration/repositories"
	"github.com/google/uuid"
)

type CreateEventInput struct {
	Name                 string
	Kind                 models.EventKind
	RegistrationLimit    int
	RegistrationDeadline time.Time
	StartsAt             time.Time
	EndsAt               time.Time
	MaxTeamSize          int
	RequiresApproval     bool
}

// EventService manages the event lifecycle: draft -> published -> ongoing ->
// completed, with closed reachable from published and ongoing.
type EventService struct {
	store   repositories.Store
	catalog EventCatalog
	feed    LiveFeed
	logger  *slog.Logger
	now     func() time.Time
}

func NewEventService(store repositories.Store, catalog EventCatalog, feed LiveFeed, logger *slog.Logger) *EventService {
	if feed == nil {
		feed = nopFeed{}
	}
	return &EventService{store: store, catalog: catalog, feed: feed, logger: logger, now: time.Now}
}

func validateEventInput(in CreateEventInput) error {
	var problems []string
	if strings.TrimSpace(in.Name) == "" {
		problems = append(problems, "name is required")
	}
	if !in.Kind.Valid() {
		problems = append(problems, fmt.Sprintf("unknown kind %q", in.Kind))
	}
	if in.RegistrationLimit <= 0 {
		problems = append(problems, "registration_limit must be positive")
	}
	if in.RegistrationDeadline.IsZero() || in.StartsAt.IsZero() || in.EndsAt.IsZero() {
		problems = append(problems, "registration_deadline, starts_at and ends_at are required")
	} else {
		if in.RegistrationDeadline.After(in.StartsAt) {
			problems = append(problems, "registration_deadline cannot be after starts_at")
		}
		if !in.StartsAt.Before(in.EndsAt) {
			problems = append(problems, "starts_at must be before ends_at")
		}
	}
	if in.Kind == models.EventKindTeam && in.MaxTeamSize < 1 {
		problems = append(problems, "team events need max_team_size >= 1")
	}
	if in.Kind != models.EventKindTeam && in.MaxTeamSize != 0 {
		problems = append(problems, "max_team_size only applies to team events")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidationFailed, strings.Join(problems, "; "))
	}
	return nil
}

// Create stores a draft event owned by the caller.
func (s *EventService) Create(ctx context.Context, auth models.AuthContext, in CreateEventInput) (*models.Event, error) {
	if !auth.CanManageEvents() {
		return nil, ErrForbiddenOperation
	}
	if err := validateEventInput(in); err != nil {
		return nil, err
	}

	ev := &models.Event{
		ID:                   uuid.NewString(),
		Name:                 strings.TrimSpace(in.Name),
		Kind:                 in.Kind,
		Status:               models.EventStatusDraft,
		OrganizerID:          auth.ParticipantID,
		RegistrationLimit:    in.RegistrationLimit,
		RegistrationDeadline: in.RegistrationDeadline.UTC(),
		StartsAt:             in.StartsAt.UTC(),
		EndsAt:               in.EndsAt.UTC(),
		MaxTeamSize:          in.MaxTeamSize,
		RequiresApproval:     in.RequiresApproval,
		CreatedAt:            s.now().UTC(),
	}
	err := s.store.InTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		return tx.InsertEvent(ctx, ev)
	})
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.logger.InfoContext(ctx, "event created", "event_id", ev.ID, "kind", ev.Kind, "limit", ev.RegistrationLimit)
	return ev, nil
}

func (s *EventService) Get(ctx context.Context, id string) (*models.Event, error) {
	ev, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, handleRepositoryError(err, ErrEventNotFound, "get event")
	}
	return ev, nil
}

// Publish makes the event's capacity enforceable and opens registration.
func (s *EventService) Publish(ctx context.Context, auth models.AuthContext, id string) (*models.Event, error) {
	return s.transition(ctx, &auth, id, models.EventStatusPublished)
}

// Close stops registration before the event's dates would.
func (s *EventService) Close(ctx context.Context, auth models.AuthContext, id string) (*models.Event, error) {
	return s.transition(ctx, &auth, id, models.EventStatusClosed)
}

// ListRegistrations returns the direct registrations of an event to its organizer.
func (s *EventService) ListRegistrations(ctx context.Context, auth models.AuthContext, eventID string) ([]*models.Registration, error) {
	ev, err := s.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !canManage(auth, ev) {
		return nil, ErrForbiddenOperation
	}
	regs, err := s.store.ListRegistrationsByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return regs, nil
}

func canManage(auth models.AuthContext, ev *models.Event) bool {
	return auth.Role == models.RoleAdmin || (auth.CanManageEvents() && ev.OrganizerID == auth.ParticipantID)
}

var allowedTransitions = map[models.EventStatus][]models.EventStatus{
	models.EventStatusDraft:     {models.EventStatusPublished},
	models.EventStatusPublished: {models.EventStatusOngoing, models.EventStatusClosed},
	models.EventStatusOngoing:   {models.EventStatusCompleted, models.EventStatusClosed},
	models.EventStatusClosed:    {models.EventStatusCompleted},
	models.EventStatusCompleted: {},
}

func isValidStatusTransition(current, next models.EventStatus) bool {
	for _, allowed := range allowedTransitions[current] {
		if next == allowed {
			return true
		}
	}
	return false
}

// transition moves the event under its lock. A nil auth is the scheduler.
func (s *EventService) transition(ctx context.Context, auth *models.AuthContext, id string, next models.EventStatus) (*models.Event, error) {
	var ev *models.Event
	err := s.store.InTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		ev, err = tx.LockEvent(ctx, id)
		if err != nil {
			return handleRepositoryError(err, ErrEventNotFound, "lock event")
		}
		if auth != nil && !canManage(*auth, ev) {
			return ErrForbiddenOperation
		}
		if ev.Status == next {
			return nil
		}
		if !isValidStatusTransition(ev.Status, next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusChange, ev.Status, next)
		}

		if next == models.EventStatusCompleted {
			n, err := tx.CompleteActiveRegistrations(ctx, ev.ID, s.now().UTC())
			if err != nil {
				return fmt.Errorf("complete registrations: %w", err)
			}
			s.logger.InfoContext(ctx, "registrations completed", "event_id", ev.ID, "count", n)
		}
		ev.Status = next
		return tx.SaveEvent(ctx, ev)
	})
	if err != nil {
		return nil, err
	}

	s.catalog.Invalidate(id)
	s.feed.Publish(id, models.NewEventUpdate(models.UpdateStatusChanged, ev, s.now().UTC()))
	s.logger.InfoContext(ctx, "event status changed", "event_id", id, "status", ev.Status)
	return ev, nil
}

// AutoUpdateEventStatusesByDates starts published events whose start time has
// passed and completes started or closed events whose end time has passed.
// Failures on one event do not stop the others.
func (s *EventService) AutoUpdateEventStatusesByDates(ctx context.Context) error {
	ids, err := s.store.ListEventIDsByStatus(ctx, models.EventStatusPublished, models.EventStatusOngoing, models.EventStatusClosed)
	if err != nil {
		return fmt.Errorf("list events for status update: %w", err)
	}

	now := s.now()
	var errs []error
	for _, id := range ids {
		ev, err := s.store.GetEvent(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", id, err))
			continue
		}

		var next models.EventStatus
		switch {
		case ev.Status != models.EventStatusCompleted && !now.Before(ev.EndsAt):
			next = models.EventStatusCompleted
			if ev.Status == models.EventStatusPublished {
				// Skipped the ongoing window entirely.
				if _, err := s.transition(ctx, nil, id, models.EventStatusOngoing); err != nil {
					errs = append(errs, fmt.Errorf("event %s: %w", id, err))
					continue
				}
			}
		case ev.Status == models.EventStatusPublished && !now.Before(ev.StartsAt):
			next = models.EventStatusOngoing
		default:
			continue
		}

		if _, err := s.transition(ctx, nil, id, next); err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
