package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Dosada05/event-registration/models"
	"github.com/Dosada05/event-registration/storage"
)

// PassPublisher stores a downloadable pass for an issued ticket and returns
// where it can be fetched. Withdraw removes it again.
type PassPublisher interface {
	Publish(ctx context.Context, ticket *models.Ticket) (string, error)
	Withdraw(ctx context.Context, ticket *models.Ticket) error
}

type ticketPass struct {
	TicketID      string    `json:"ticket_id"`
	EventID       string    `json:"event_id"`
	ParticipantID string    `json:"participant_id"`
	TeamID        *string   `json:"team_id,omitempty"`
	Token         string    `json:"token"`
	IssuedAt      time.Time `json:"issued_at"`
}

type storagePassPublisher struct {
	uploader storage.FileUploader
}

func NewStoragePassPublisher(uploader storage.FileUploader) PassPublisher {
	return &storagePassPublisher{uploader: uploader}
}

func passKey(t *models.Ticket) string {
	return fmt.Sprintf("passes/%s/%s.json", t.EventID, t.ID)
}

func (p *storagePassPublisher) Publish(ctx context.Context, t *models.Ticket) (string, error) {
	body, err := json.Marshal(ticketPass{
		TicketID:      t.ID,
		EventID:       t.EventID,
		ParticipantID: t.ParticipantID,
		TeamID:        t.TeamID,
		Token:         t.Token,
		IssuedAt:      t.IssuedAt,
	})
	if err != nil {
		return "", fmt.Errorf("marshal ticket pass: %w", err)
	}

	res, err := p.uploader.Upload(ctx, passKey(t), "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	if res.Location != "" {
		return res.Location, nil
	}
	return res.Key, nil
}

func (p *storagePassPublisher) Withdraw(ctx context.Context, t *models.Ticket) error {
	return p.uploader.Delete(ctx, passKey(t))
}
