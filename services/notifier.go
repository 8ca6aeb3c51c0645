package services

import (
	"context"
	"errors"
	"time"

	"github.com/Dosada05/event-registration/models"
)

// Notifier is told about every seat that became final. Calls happen after
// commit and their failures never undo the registration.
type Notifier interface {
	NotifyRegistrationComplete(ctx context.Context, participantID, eventID, ticketID string) error
}

// LiveFeed pushes updates to clients watching an event.
type LiveFeed interface {
	Publish(eventID string, update models.EventUpdate)
}

type nopFeed struct{}

func (nopFeed) Publish(string, models.EventUpdate) {}

// MultiNotifier fans a notification out to every notifier and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) NotifyRegistrationComplete(ctx context.Context, participantID, eventID, ticketID string) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyRegistrationComplete(ctx, participantID, eventID, ticketID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FeedNotifier announces completed registrations on the event's live feed.
type FeedNotifier struct {
	feed LiveFeed
	now  func() time.Time
}

func NewFeedNotifier(feed LiveFeed) *FeedNotifier {
	return &FeedNotifier{feed: feed, now: time.Now}
}

func (n *FeedNotifier) NotifyRegistrationComplete(ctx context.Context, participantID, eventID, ticketID string) error {
	n.feed.Publish(eventID, models.EventUpdate{
		Type:          models.UpdateRegistrationComplete,
		EventID:       eventID,
		ParticipantID: participantID,
		TicketID:      ticketID,
		At:            n.now().UTC(),
	})
	return nil
}
