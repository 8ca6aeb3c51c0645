package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/event-registration/models"
	"github.com/Dosada05/event-registration/repositories"
	"github.com/Dosada05/event-registration/storage"
	"github.com/Dosada05/event-registration/telemetry"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testSigningKey = "test-ticket-signing-key"

type recordingFeed struct {
	mu      sync.Mutex
	updates []models.EventUpdate
}

func (f *recordingFeed) Publish(eventID string, u models.EventUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
}

func (f *recordingFeed) ofType(kind models.EventUpdateType) []models.EventUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.EventUpdate
	for _, u := range f.updates {
		if u.Type == kind {
			out = append(out, u)
		}
	}
	return out
}

type notification struct {
	participantID, eventID, ticketID string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (n *recordingNotifier) NotifyRegistrationComplete(ctx context.Context, participantID, eventID, ticketID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{participantID, eventID, ticketID})
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type testEnv struct {
	store    repositories.Store
	codec    *JWTTicketCodec
	uploader *storage.MemoryUploader
	issuer   *TicketIssuer
	ledger   *RegistrationLedger
	teams    *TeamRegistry
	coord    *Coordinator
	events   *EventService
	feed     *recordingFeed
	notifier *recordingNotifier
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := discardLogger()
	store := repositories.NewMemoryStore()
	codec := NewJWTTicketCodec(testSigningKey)
	uploader := storage.NewMemoryUploader("https://passes.example.test")
	issuer := NewTicketIssuer(store, codec, NewStoragePassPublisher(uploader), logger)
	catalog := NewCachedCatalog(store, time.Minute)
	feed := &recordingFeed{}
	notifier := &recordingNotifier{}

	env := &testEnv{
		store:    store,
		codec:    codec,
		uploader: uploader,
		issuer:   issuer,
		ledger:   NewRegistrationLedger(store, issuer, logger),
		teams:    NewTeamRegistry(store, issuer, logger),
		feed:     feed,
		notifier: notifier,
	}
	env.coord = NewCoordinator(CoordinatorDeps{
		Store:    store,
		Catalog:  catalog,
		Ledger:   env.ledger,
		Teams:    env.teams,
		Issuer:   issuer,
		Decoder:  codec,
		Notifier: notifier,
		Feed:     feed,
		Tracer:   telemetry.NoopTracer(),
		Logger:   logger,
	})
	env.events = NewEventService(store, catalog, feed, logger)
	t.Cleanup(env.coord.Wait)
	return env
}

type eventOption func(*models.Event)

func withKind(k models.EventKind) eventOption {
	return func(e *models.Event) {
		e.Kind = k
		if k == models.EventKindTeam && e.MaxTeamSize == 0 {
			e.MaxTeamSize = 10
		}
	}
}

func withLimit(n int) eventOption {
	return func(e *models.Event) { e.RegistrationLimit = n }
}

func withStatus(s models.EventStatus) eventOption {
	return func(e *models.Event) { e.Status = s }
}

func withDeadline(at time.Time) eventOption {
	return func(e *models.Event) { e.RegistrationDeadline = at }
}

func withApproval() eventOption {
	return func(e *models.Event) { e.RequiresApproval = true }
}

// seedEvent stores a published event whose registration is open for an hour.
func (env *testEnv) seedEvent(t *testing.T, opts ...eventOption) *models.Event {
	t.Helper()
	now := time.Now().UTC()
	ev := &models.Event{
		ID:                   uuid.NewString(),
		Name:                 "Go meetup",
		Kind:                 models.EventKindIndividual,
		Status:               models.EventStatusPublished,
		OrganizerID:          "organizer",
		RegistrationLimit:    100,
		RegistrationDeadline: now.Add(time.Hour),
		StartsAt:             now.Add(2 * time.Hour),
		EndsAt:               now.Add(4 * time.Hour),
		CreatedAt:            now,
	}
	for _, opt := range opts {
		opt(ev)
	}
	require.NoError(t, env.store.InTx(context.Background(), func(ctx context.Context, tx repositories.Tx) error {
		return tx.InsertEvent(ctx, ev)
	}))
	return ev
}

func (env *testEnv) event(t *testing.T, id string) *models.Event {
	t.Helper()
	ev, err := env.store.GetEvent(context.Background(), id)
	require.NoError(t, err)
	return ev
}

func participant(id string) models.AuthContext {
	return models.AuthContext{ParticipantID: id, Role: models.RoleParticipant}
}

func organizer(id string) models.AuthContext {
	return models.AuthContext{ParticipantID: id, Role: models.RoleOrganizer}
}

// formTeam creates a team led by leader and joins the given members.
func (env *testEnv) formTeam(t *testing.T, eventID, leader string, size int, members ...string) *models.Team {
	t.Helper()
	ctx := context.Background()
	team, created, err := env.coord.CreateTeam(ctx, participant(leader), CreateTeamRequest{EventID: eventID, Name: leader + "'s team", TargetSize: size})
	require.NoError(t, err)
	require.True(t, created)
	for _, m := range members {
		_, joined, err := env.coord.JoinTeam(ctx, participant(m), team.InviteCode)
		require.NoError(t, err)
		require.True(t, joined)
	}
	team, err = env.teams.Get(ctx, team.ID)
	require.NoError(t, err)
	return team
}
