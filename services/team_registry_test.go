package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/event-registration/models"
	"github.com/Dosada05/event-registration/repositories"
	"github.com/stretchr/testify/require"
)

func TestTeamCompletionScenario(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seedEvent(t, withKind(models.EventKindTeam), withLimit(10))
	ctx := context.Background()

	team := env.formTeam(t, ev.ID, "L", 3, "M1")

	_, err := env.coord.CompleteTeam(ctx, participant("L"), team.ID)
	require.ErrorIs(t, err, ErrTeamNotFull)
	require.Zero(t, env.event(t, ev.ID).RegisteredCount)

	_, joined, err := env.coord.JoinTeam(ctx, participant("M2"), team.InviteCode)
	require.NoError(t, err)
	require.True(t, joined)

	out, err := env.coord.CompleteTeam(ctx, participant("L"), team.ID)
	require.NoError(t, err)
	require.False(t, out.AlreadyComplete)
	require.Len(t, out.Tickets, 3)
	for i, pid := range []string{"L", "M1", "M2"} {
		require.Equal(t, pid, out.Tickets[i].ParticipantID)
		require.NotNil(t, out.Tickets[i].TeamID)
		require.Equal(t, team.ID, *out.Tickets[i].TeamID)
		require.NotEmpty(t, out.Tickets[i].Token)
	}

	got := env.event(t, ev.ID)
	require.Equal(t, 3, got.RegisteredCount)
	require.Equal(t, 3, got.TeamSeatCount)
	require.Equal(t, 1, got.CompletedTeams)

	stored, err := env.teams.Get(ctx, team.ID)
	require.NoError(t, err)
	require.Equal(t, models.TeamStatusComplete, stored.Status)
	require.NotNil(t, stored.CompletedAt)

	env.coord.Wait()
	require.Equal(t, 3, env.notifier.count())
}

func TestCompleteFailsForEveryShortTeam(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for size := 1; size <= 10; size++ {
		for count := 1; count < size; count++ {
			ev := env.seedEvent(t, withKind(models.EventKindTeam), withLimit(10))
			leader := fmt.Sprintf("lead-%d-%d", size, count)
			members := make([]string, 0, count-1)
			for i := 1; i < count; i++ {
				members = append(members, fmt.Sprintf("%s-m%d", leader, i))
			}
			team := env.formTeam(t, ev.ID, leader, size, members...)
			require.Len(t, team.Members, count)

			_, err := env.coord.CompleteTeam(ctx, participant(leader), team.ID)
			require.ErrorIs(t, err, ErrTeamNotFull, "size=%d count=%d", size, count)

			stored, err := env.teams.Get(ctx, team.ID)
			require.NoError(t, err)
			require.Equal(t, models.TeamStatusForming, stored.Status)
			require.Zero(t, env.event(t, ev.ID).RegisteredCount)
		}
	}
}

func TestSoloTeamCompletesImmediately(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seedEvent(t, withKind(models.EventKindTeam))

	team := env.formTeam(t, ev.ID, "solo", 1)
	out, err := env.coord.CompleteTeam(context.Background(), participant("solo"), team.ID)
	require.NoError(t, err)
	require.Len(t, out.Tickets, 1)
}

func TestCompletionIsAtomic(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seedEvent(t, withKind(models.EventKindTeam))
	ctx := context.Background()
	team := env.formTeam(t, ev.ID, "L", 3, "M1", "M2")

	crash := errors.New("crash after ticket issuance")
	env.teams.beforeTransition = func(*models.Team) error { return crash }

	_, err := env.coord.CompleteTeam(ctx, participant("L"), team.ID)
	require.ErrorIs(t, err, crash)

	stored, err := env.teams.Get(ctx, team.ID)
	require.NoError(t, err)
	require.Equal(t, models.TeamStatusForming, stored.Status)
	for _, m := range team.MemberIDs() {
		_, err := env.store.FindTicket(ctx, ev.ID, m)
		require.ErrorIs(t, err, repositories.ErrNotFound, "member %s", m)
	}
	require.Zero(t, env.event(t, ev.ID).RegisteredCount)

	env.teams.beforeTransition = nil
	out, err := env.coord.CompleteTeam(ctx, participant("L"), team.ID)
	require.NoError(t, err)
	require.Len(t, out.Tickets, 3)
	require.Equal(t, 3, env.event(t, ev.ID).RegisteredCount)
}

func TestCompletionIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seedEvent(t, withKind(models.EventKindTeam))
	ctx := context.Background()
	team := env.formTeam(t, ev.ID, "L", 2, "M1")

	first, err := env.coord.CompleteTeam(ctx, participant("L"), team.ID)
	require.NoError(t, err)
	second, err := env.coord.CompleteTeam(ctx, participant("L"), team.ID)
	require.NoError(t, err)
	require.True(t, second.AlreadyComplete)

	require.Len(t, second.Tickets, len(first.Tickets))
	for i := range first.Tickets {
		require.Equal(t, first.Tickets[i].ID, second.Tickets[i].ID)
		require.Equal(t, first.Tickets[i].Token, second.Tickets[i].Token)
	}
	got := env.event(t, ev.ID)
	require.Equal(t, 2, got.RegisteredCount)
	require.Equal(t, 1, got.CompletedTeams)

	env.coord.Wait()
	require.Equal(t, 2, env.notifier.count())
}

func TestConcurrentCompletionCountsOnce(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seedEvent(t, withKind(models.EventKindTeam))
	team := env.formTeam(t, ev.ID, "L", 3, "M1", "M2")

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.coord.CompleteTeam(context.Background(), participant("L"), team.ID)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 3, env.event(t, ev.ID).RegisteredCount)
}

func TestConcurrentRegistryCompletionCountsOnce(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seedEvent(t, withKind(models.EventKindTeam))
	team := env.formTeam(t, ev.ID, "L", 3, "M1", "M2")

	var wg sync.WaitGroup
	outs := make([]*CompleteOutcome, 8)
	errs := make([]error, len(outs))
	for i := range outs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outs[i], errs[i] = env.teams.Complete(context.Background(), team.ID, "L")
		}()
	}
	wg.Wait()

	fresh := 0
	for i := range outs {
		require.NoError(t, errs[i])
		require.Len(t, outs[i].Tickets, 3)
		if !outs[i].AlreadyComplete {
			fresh++
		}
	}
	require.Equal(t, 1, fresh)

	got := env.event(t, ev.ID)
	require.Equal(t, 3, got.RegisteredCount)
	require.Equal(t, 3, got.TeamSeatCount)
	require.Equal(t, 1, got.CompletedTeams)
}

func TestCompleteRetryAfterDeadlineReturnsTickets(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seedEvent(t, withKind(models.EventKindTeam))
	ctx := context.Background()
	team := env.formTeam(t, ev.ID, "L", 2, "M1")
	late := env.formTeam(t, ev.ID, "X", 1)

	first, err := env.coord.CompleteTeam(ctx, participant("L"), team.ID)
	require.NoError(t, err)

	env.teams.now = func() time.Time { return ev.RegistrationDeadline.Add(time.Hour) }
	retry, err := env.coord.CompleteTeam(ctx, participant("L"), team.ID)
	require.NoError(t, err)
	require.True(t, retry.AlreadyComplete)
	require.Equal(t, first.Tickets[0].ID, retry.Tickets[0].ID)
	require.Equal(t, 2, env.event(t, ev.ID).RegisteredCount)

	// A team that never completed still cannot after the deadline.
	_, err = env.coord.CompleteTeam(ctx, participant("X"), late.ID)
	require.ErrorIs(t, err, ErrDeadlinePassed)
}

func TestCompleteRespectsCapacity(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seedEvent(t, withKind(models.EventKindTeam), withLimit(4))
	ctx := context.Background()

	first := env.formTeam(t, ev.ID, "A", 3, "A1", "A2")
	second := env.formTeam(t, ev.ID, "B", 3, "B1", "B2")

	_, err := env.coord.CompleteTeam(ctx, participant("A"), first.ID)
	require.NoError(t, err)
	_, err = env.coord.CompleteTeam(ctx, participant("B"), second.ID)
	require.ErrorIs(t, err, ErrCapacityExceeded)
	require.Equal(t, 3, env.event(t, ev.ID).RegisteredCount)
}

func TestCompleteRejectsMemberWithDirectSeat(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seedEvent(t, withKind(models.EventKindTeam))
	ctx := context.Background()
	team := env.formTeam(t, ev.ID, "L", 2, "M1")

	// A direct record that slipped in outside the team path.
	require.NoError(t, env.store.InTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		return tx.InsertRegistration(ctx, &models.Registration{
			ID: "r-m1", EventID: ev.ID, ParticipantID: "M1", TicketID: "t-m1", Status: models.RegistrationActive,
		})
	}))

	_, err := env.coord.CompleteTeam(ctx, participant("L"), team.ID)
	require.ErrorIs(t, err, ErrMemberHasSeat)
}

func TestCompleteRequiresLeader(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seedEvent(t, withKind(models.EventKindTeam))
	team := env.formTeam(t, ev.ID, "L", 2, "M1")

	_, err := env.coord.CompleteTeam(context.Background(), participant("M1"), team.ID)
	require.ErrorIs(t, err, ErrNotTeamLeader)
}

func TestConcurrentJoinForLastSlot(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seedEvent(t, withKind(models.EventKindTeam))
	team := env.formTeam(t, ev.ID, "L", 3, "M1")

	const joiners = 12
	var wg sync.WaitGroup
	errs := make([]error, joiners)
	joined := make([]bool, joiners)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, joined[i], errs[i] = env.coord.JoinTeam(context.Background(), participant(fmt.Sprintf("J%d", i)), team.InviteCode)
		}()
	}
	wg.Wait()

	ok := 0
	for i, err := range errs {
		if err == nil {
			require.True(t, joined[i])
			ok++
			continue
		}
		require.ErrorIs(t, err, ErrTeamFull)
	}
	require.Equal(t, 1, ok)

	stored, err := env.teams.Get(context.Background(), team.ID)
	require.NoError(t, err)
	require.Len(t, stored.Members, 3)
}

func TestJoinRules(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ev := env.seedEvent(t, withKind(models.EventKindTeam))

	red := env.formTeam(t, ev.ID, "red", 3, "r1")
	blue := env.formTeam(t, ev.ID, "blue", 3)

	t.Run("own team is idempotent", func(t *testing.T) {
		team, joined, err := env.coord.JoinTeam(ctx, participant("r1"), red.InviteCode)
		require.NoError(t, err)
		require.False(t, joined)
		require.Equal(t, red.ID, team.ID)
	})

	t.Run("member of another team", func(t *testing.T) {
		_, _, err := env.coord.JoinTeam(ctx, participant("r1"), blue.InviteCode)
		require.ErrorIs(t, err, ErrAlreadyOnTeam)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, _, err := env.coord.JoinTeam(ctx, participant("x"), "nope")
		require.ErrorIs(t, err, ErrInvalidInviteCode)
	})

	t.Run("complete team", func(t *testing.T) {
		single := env.formTeam(t, ev.ID, "single", 1)
		_, err := env.coord.CompleteTeam(ctx, participant("single"), single.ID)
		require.NoError(t, err)
		_, _, err = env.coord.JoinTeam(ctx, participant("late"), single.InviteCode)
		require.ErrorIs(t, err, ErrTeamAlreadyComplete)
	})

	t.Run("deadline passed", func(t *testing.T) {
		env.teams.now = func() time.Time { return ev.RegistrationDeadline.Add(time.Minute) }
		defer func() { env.teams.now = time.Now }()
		_, _, err := env.coord.JoinTeam(ctx, participant("late"), blue.InviteCode)
		require.ErrorIs(t, err, ErrDeadlinePassed)
	})
}

func TestDirectSeatBlocksTeamPath(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seedEvent(t, withKind(models.EventKindTeam))
	ctx := context.Background()
	team := env.formTeam(t, ev.ID, "L", 3)

	require.NoError(t, env.store.InTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		return tx.InsertRegistration(ctx, &models.Registration{
			ID: "r-d", EventID: ev.ID, ParticipantID: "direct", TicketID: "t-d", Status: models.RegistrationActive,
		})
	}))

	_, _, err := env.coord.JoinTeam(ctx, participant("direct"), team.InviteCode)
	require.ErrorIs(t, err, ErrAlreadyRegistered)

	_, _, err = env.coord.CreateTeam(ctx, participant("direct"), CreateTeamRequest{EventID: ev.ID, TargetSize: 2})
	require.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestCreateTeamRules(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ev := env.seedEvent(t, withKind(models.EventKindTeam), withLimit(5))

	t.Run("returns existing team", func(t *testing.T) {
		first, created, err := env.coord.CreateTeam(ctx, participant("L"), CreateTeamRequest{EventID: ev.ID, TargetSize: 3})
		require.NoError(t, err)
		require.True(t, created)
		again, created, err := env.coord.CreateTeam(ctx, participant("L"), CreateTeamRequest{EventID: ev.ID, TargetSize: 2})
		require.NoError(t, err)
		require.False(t, created)
		require.Equal(t, first.ID, again.ID)
		require.Equal(t, 3, again.TargetSize)
	})

	t.Run("size bounds", func(t *testing.T) {
		for _, size := range []int{0, -1, 11} {
			_, _, err := env.coord.CreateTeam(ctx, participant(fmt.Sprintf("s%d", size)), CreateTeamRequest{EventID: ev.ID, TargetSize: size})
			require.ErrorIs(t, err, ErrInvalidTeamSize, "size %d", size)
		}
	})

	t.Run("size above limit", func(t *testing.T) {
		_, _, err := env.coord.CreateTeam(ctx, participant("big"), CreateTeamRequest{EventID: ev.ID, TargetSize: 6})
		require.ErrorIs(t, err, ErrInvalidTeamSize)
	})

	t.Run("individual event", func(t *testing.T) {
		solo := env.seedEvent(t)
		_, _, err := env.coord.CreateTeam(ctx, participant("L"), CreateTeamRequest{EventID: solo.ID, TargetSize: 2})
		require.ErrorIs(t, err, ErrWrongRegistrationPath)
	})
}

func TestConcurrentCreateYieldsOneTeam(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seedEvent(t, withKind(models.EventKindTeam))

	var wg sync.WaitGroup
	ids := make([]string, 8)
	errs := make([]error, 8)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			team, _, err := env.coord.CreateTeam(context.Background(), participant("L"), CreateTeamRequest{EventID: ev.ID, TargetSize: 2})
			errs[i] = err
			if err == nil {
				ids[i] = team.ID
			}
		}()
	}
	wg.Wait()
	for i := range ids {
		require.NoError(t, errs[i])
		require.Equal(t, ids[0], ids[i])
	}
}

func TestRemoveMember(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seedEvent(t, withKind(models.EventKindTeam))
	ctx := context.Background()
	team := env.formTeam(t, ev.ID, "L", 3, "M1", "M2")

	_, err := env.coord.RemoveMember(ctx, participant("M1"), team.ID, "M2")
	require.ErrorIs(t, err, ErrNotTeamLeader)

	_, err = env.coord.RemoveMember(ctx, participant("L"), team.ID, "L")
	require.ErrorIs(t, err, ErrLeaderCannotLeave)

	_, err = env.coord.RemoveMember(ctx, participant("L"), team.ID, "ghost")
	require.ErrorIs(t, err, ErrMemberNotFound)

	updated, err := env.coord.RemoveMember(ctx, participant("L"), team.ID, "M1")
	require.NoError(t, err)
	require.Equal(t, []string{"L", "M2"}, updated.MemberIDs())

	updated, err = env.coord.RemoveMember(ctx, participant("M2"), team.ID, "M2")
	require.NoError(t, err)
	require.Equal(t, []string{"L"}, updated.MemberIDs())

	// Removed members are free to start their own team.
	_, created, err := env.coord.CreateTeam(ctx, participant("M1"), CreateTeamRequest{EventID: ev.ID, TargetSize: 2})
	require.NoError(t, err)
	require.True(t, created)
}

func TestCancelTeam(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seedEvent(t, withKind(models.EventKindTeam))
	ctx := context.Background()
	team := env.formTeam(t, ev.ID, "L", 3, "M1")

	_, err := env.coord.CancelTeam(ctx, participant("M1"), team.ID)
	require.ErrorIs(t, err, ErrNotTeamLeader)

	cancelled, err := env.coord.CancelTeam(ctx, participant("L"), team.ID)
	require.NoError(t, err)
	require.Equal(t, models.TeamStatusCancelled, cancelled.Status)

	_, err = env.coord.CancelTeam(ctx, participant("L"), team.ID)
	require.NoError(t, err)

	_, _, err = env.coord.JoinTeam(ctx, participant("new"), team.InviteCode)
	require.ErrorIs(t, err, ErrTeamCancelled)
	_, err = env.coord.CompleteTeam(ctx, participant("L"), team.ID)
	require.ErrorIs(t, err, ErrTeamCancelled)

	// Members of a cancelled team can join elsewhere.
	other := env.formTeam(t, ev.ID, "O", 3)
	_, joined, err := env.coord.JoinTeam(ctx, participant("M1"), other.InviteCode)
	require.NoError(t, err)
	require.True(t, joined)

	done := env.formTeam(t, ev.ID, "D", 1)
	_, err = env.coord.CompleteTeam(ctx, participant("D"), done.ID)
	require.NoError(t, err)
	_, err = env.coord.CancelTeam(ctx, participant("D"), done.ID)
	require.ErrorIs(t, err, ErrTeamAlreadyComplete)
}

func TestRegenerateInviteCode(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seedEvent(t, withKind(models.EventKindTeam))
	ctx := context.Background()
	team := env.formTeam(t, ev.ID, "L", 3)

	_, err := env.coord.RegenerateInviteCode(ctx, participant("X"), team.ID)
	require.ErrorIs(t, err, ErrNotTeamLeader)

	rotated, err := env.coord.RegenerateInviteCode(ctx, participant("L"), team.ID)
	require.NoError(t, err)
	require.NotEqual(t, team.InviteCode, rotated.InviteCode)

	_, _, err = env.coord.JoinTeam(ctx, participant("M"), team.InviteCode)
	require.ErrorIs(t, err, ErrInvalidInviteCode)
	_, joined, err := env.coord.JoinTeam(ctx, participant("M"), rotated.InviteCode)
	require.NoError(t, err)
	require.True(t, joined)
}

func TestInviteCodeCollisionRetries(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seedEvent(t, withKind(models.EventKindTeam))
	ctx := context.Background()

	codes := []string{"SAME", "SAME", "OTHER"}
	env.teams.generateCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	first, _, err := env.coord.CreateTeam(ctx, participant("A"), CreateTeamRequest{EventID: ev.ID, TargetSize: 2})
	require.NoError(t, err)
	require.Equal(t, "SAME", first.InviteCode)

	second, _, err := env.coord.CreateTeam(ctx, participant("B"), CreateTeamRequest{EventID: ev.ID, TargetSize: 2})
	require.NoError(t, err)
	require.Equal(t, "OTHER", second.InviteCode)

	env.teams.generateCode = func() (string, error) { return "SAME", nil }
	_, _, err = env.coord.CreateTeam(ctx, participant("C"), CreateTeamRequest{EventID: ev.ID, TargetSize: 2})
	require.ErrorIs(t, err, ErrInviteCodeGeneration)
}

func TestGetTeamHidesInviteCode(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seedEvent(t, withKind(models.EventKindTeam))
	ctx := context.Background()
	team := env.formTeam(t, ev.ID, "L", 3, "M1")

	asMember, err := env.coord.GetTeam(ctx, participant("M1"), team.ID)
	require.NoError(t, err)
	require.Equal(t, team.InviteCode, asMember.InviteCode)

	asStranger, err := env.coord.GetTeam(ctx, participant("S"), team.ID)
	require.NoError(t, err)
	require.Empty(t, asStranger.InviteCode)

	_, err = env.coord.GetTeam(ctx, participant("S"), "missing")
	require.ErrorIs(t, err, ErrTeamNotFound)
}
