package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Dosada05/event-registration/models"
	"github.com/stretchr/testify/require"
)

func testEvent(id string) *models.Event {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return &models.Event{
		ID:                   id,
		Name:                 "meetup",
		Kind:                 models.EventKindIndividual,
		Status:               models.EventStatusPublished,
		OrganizerID:          "org",
		RegistrationLimit:    10,
		RegistrationDeadline: now.Add(24 * time.Hour),
		StartsAt:             now.Add(48 * time.Hour),
		EndsAt:               now.Add(50 * time.Hour),
		CreatedAt:            now,
	}
}

func seedEvent(t *testing.T, s Store, e *models.Event) {
	t.Helper()
	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.InsertEvent(ctx, e)
	}))
}

func TestMemoryStoreRollsBackFailedUnit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		require.NoError(t, tx.InsertEvent(ctx, testEvent("e1")))
		require.NoError(t, tx.InsertTicket(ctx, &models.Ticket{ID: "t1", EventID: "e1", ParticipantID: "p1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetEvent(ctx, "e1")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetTicket(ctx, "t1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreReadsOwnWrites(t *testing.T) {
	s := NewMemoryStore()
	seedEvent(t, s, testEvent("e1"))

	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		ev, err := tx.LockEvent(ctx, "e1")
		require.NoError(t, err)
		ev.RegisteredCount = 3
		require.NoError(t, tx.SaveEvent(ctx, ev))

		again, err := tx.GetEvent(ctx, "e1")
		require.NoError(t, err)
		require.Equal(t, 3, again.RegisteredCount)

		committed, err := s.GetEvent(ctx, "e1")
		require.NoError(t, err)
		require.Zero(t, committed.RegisteredCount)
		return nil
	}))

	ev, err := s.GetEvent(context.Background(), "e1")
	require.NoError(t, err)
	require.Equal(t, 3, ev.RegisteredCount)
}

func TestMemoryStoreTicketUniquePerSeat(t *testing.T) {
	s := NewMemoryStore()
	seedEvent(t, s, testEvent("e1"))
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertTicket(ctx, &models.Ticket{ID: "t1", EventID: "e1", ParticipantID: "p1"})
	}))
	err := s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertTicket(ctx, &models.Ticket{ID: "t2", EventID: "e1", ParticipantID: "p1"})
	})
	require.ErrorIs(t, err, ErrTicketConflict)
}

func TestMemoryStoreCommitRechecksMembership(t *testing.T) {
	s := NewMemoryStore()
	seedEvent(t, s, testEvent("e1"))
	ctx := context.Background()

	team := func(id, code string) *models.Team {
		return &models.Team{
			ID: id, EventID: "e1", LeaderID: "p1", TargetSize: 2, InviteCode: code,
			Status:  models.TeamStatusForming,
			Members: []models.TeamMember{{ParticipantID: "p1"}},
		}
	}

	// Both units pass their in-unit checks; only one may commit.
	started := make(chan struct{})
	release := make(chan struct{})
	errs := make(chan error, 1)
	go func() {
		errs <- s.InTx(ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.InsertTeam(ctx, team("a", "AAAAAA")); err != nil {
				return err
			}
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertTeam(ctx, team("b", "BBBBBB"))
	}))
	close(release)
	require.ErrorIs(t, <-errs, ErrMembershipConflict)

	_, err := s.GetTeam(ctx, "a")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreCancelledTeamReleasesMembers(t *testing.T) {
	s := NewMemoryStore()
	seedEvent(t, s, testEvent("e1"))
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertTeam(ctx, &models.Team{
			ID: "a", EventID: "e1", LeaderID: "p1", TargetSize: 2, InviteCode: "AAAAAA",
			Status:  models.TeamStatusForming,
			Members: []models.TeamMember{{ParticipantID: "p1"}},
		})
	}))
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		team, err := tx.LockTeam(ctx, "a")
		require.NoError(t, err)
		team.Status = models.TeamStatusCancelled
		return tx.SaveTeam(ctx, team)
	}))

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.FindActiveTeamFor(ctx, "e1", "p1")
		require.ErrorIs(t, err, ErrNotFound)
		return nil
	}))
}

func TestMemoryStoreLockWaitHonoursContext(t *testing.T) {
	s := NewMemoryStore()
	seedEvent(t, s, testEvent("e1"))

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
			if _, err := tx.LockEvent(ctx, "e1"); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.LockEvent(ctx, "e1")
		return err
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)

	// The lock is free again once the holder commits.
	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		_, err := tx.LockEvent(ctx, "e1")
		return err
	}))
}

func TestMemoryStoreCompleteActiveRegistrations(t *testing.T) {
	s := NewMemoryStore()
	seedEvent(t, s, testEvent("e1"))
	ctx := context.Background()
	at := time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		for i, st := range []models.RegistrationStatus{models.RegistrationActive, models.RegistrationCancelled, models.RegistrationActive} {
			pid := string(rune('a' + i))
			if err := tx.InsertRegistration(ctx, &models.Registration{ID: "r" + pid, EventID: "e1", ParticipantID: pid, Status: st}); err != nil {
				return err
			}
		}
		return nil
	}))

	var n int
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		n, err = tx.CompleteActiveRegistrations(ctx, "e1", at)
		return err
	}))
	require.Equal(t, 2, n)

	regs, err := s.ListRegistrationsByEvent(ctx, "e1")
	require.NoError(t, err)
	counts := map[models.RegistrationStatus]int{}
	for _, r := range regs {
		counts[r.Status]++
	}
	require.Equal(t, 2, counts[models.RegistrationCompleted])
	require.Equal(t, 1, counts[models.RegistrationCancelled])
}
