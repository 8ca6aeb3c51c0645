package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Dosada05/event-registration/models"
	"github.com/Dosada05/event-registration/repositories"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	to            []string
	subject, body string
}

func newTestMailNotifier(store repositories.Reader) (*MailNotifier, *[]sentMail) {
	var outbox []sentMail
	n := NewMailNotifier(SMTPConfig{Host: "smtp.example.test", Port: 587, From: "events@example.test"}, store, discardLogger())
	n.send = func(to []string, subject, body string) error {
		outbox = append(outbox, sentMail{to, subject, body})
		return nil
	}
	return n, &outbox
}

func TestMailNotifierSendsConfirmation(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seedEvent(t)
	ctx := context.Background()

	res, err := env.coord.Register(ctx, participant("ada@example.test"), RegisterRequest{EventID: ev.ID})
	require.NoError(t, err)

	n, outbox := newTestMailNotifier(env.store)
	require.NoError(t, n.NotifyRegistrationComplete(ctx, "ada@example.test", ev.ID, res.Ticket.ID))

	require.Len(t, *outbox, 1)
	mail := (*outbox)[0]
	require.Equal(t, []string{"ada@example.test"}, mail.to)
	require.Equal(t, "Registration confirmed: Go meetup", mail.subject)
	require.Contains(t, mail.body, res.Ticket.ID)
	require.Contains(t, mail.body, res.Ticket.PassURL)
}

func TestMailNotifierSkipsNonEmailParticipants(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seedEvent(t)

	n, outbox := newTestMailNotifier(env.store)
	require.NoError(t, n.NotifyRegistrationComplete(context.Background(), "user-42", ev.ID, "t1"))
	require.Empty(t, *outbox)
}

func TestMailNotifierReportsFailures(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seedEvent(t)

	n, _ := newTestMailNotifier(env.store)
	n.send = func([]string, string, string) error { return errors.New("connection refused") }
	err := n.NotifyRegistrationComplete(context.Background(), "ada@example.test", ev.ID, "t1")
	require.ErrorContains(t, err, "connection refused")

	err = n.NotifyRegistrationComplete(context.Background(), "ada@example.test", "missing", "t1")
	require.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestMultiNotifierJoinsErrors(t *testing.T) {
	ok := &recordingNotifier{}
	failing := &recordingNotifier{err: errors.New("down")}
	feed := &recordingFeed{}

	m := MultiNotifier{failing, NewFeedNotifier(feed), ok}
	err := m.NotifyRegistrationComplete(context.Background(), "p", "e", "t")
	require.ErrorContains(t, err, "down")
	require.Equal(t, 1, ok.count())

	updates := feed.ofType(models.UpdateRegistrationComplete)
	require.Len(t, updates, 1)
	require.Equal(t, "t", updates[0].TicketID)
}

func TestJWTTicketCodec(t *testing.T) {
	codec := NewJWTTicketCodec(testSigningKey)
	payload := models.TicketPayload{TicketID: "t1", EventID: "e1", ParticipantID: "p1"}

	token, err := codec.Encode(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, 2, strings.Count(token, "."))

	got, err := codec.Decode(token)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	_, err = NewJWTTicketCodec("another-key").Decode(token)
	require.ErrorIs(t, err, ErrInvalidTicketToken)

	_, err = codec.Encode(context.Background(), models.TicketPayload{EventID: "e1"})
	require.ErrorIs(t, err, ErrTokenEncoding)
}

func TestCachedCatalog(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	catalog := NewCachedCatalog(env.store, time.Minute)

	_, err := catalog.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrEventNotFound)

	ev := env.seedEvent(t)
	first, err := catalog.Get(ctx, ev.ID)
	require.NoError(t, err)
	first.Name = "mutated by caller"

	cached, err := catalog.Get(ctx, ev.ID)
	require.NoError(t, err)
	require.Equal(t, ev.Name, cached.Name)

	require.NoError(t, env.store.InTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		locked, err := tx.LockEvent(ctx, ev.ID)
		if err != nil {
			return err
		}
		locked.Status = models.EventStatusClosed
		return tx.SaveEvent(ctx, locked)
	}))
	stale, err := catalog.Get(ctx, ev.ID)
	require.NoError(t, err)
	require.Equal(t, models.EventStatusPublished, stale.Status)

	catalog.Invalidate(ev.ID)
	fresh, err := catalog.Get(ctx, ev.ID)
	require.NoError(t, err)
	require.Equal(t, models.EventStatusClosed, fresh.Status)
}
