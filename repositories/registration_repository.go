package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/Dosada05/event-registration/models"
)

const registrationColumns = ` id, event_id, participant_id, ticket_id, status, created_at, updated_at`

func scanRegistration(row rowScanner) (*models.Registration, error) {
	var r models.Registration
	err := row.Scan(&r.ID, &r.EventID, &r.ParticipantID, &r.TicketID, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, mapPQError(err)
	}
	return &r, nil
}

func (p pgQueries) FindRegistration(ctx context.Context, eventID, participantID string) (*models.Registration, error) {
	query := `SELECT` + registrationColumns + ` FROM registrations WHERE event_id = $1 AND participant_id = $2`
	return scanRegistration(p.q.QueryRowContext(ctx, query, eventID, participantID))
}

func (p pgQueries) ListRegistrationsByEvent(ctx context.Context, eventID string) ([]*models.Registration, error) {
	query := `SELECT` + registrationColumns + ` FROM registrations WHERE event_id = $1 ORDER BY created_at, id`
	rows, err := p.q.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, mapPQError(fmt.Errorf("failed to list registrations: %w", err))
	}
	defer rows.Close()

	regs := make([]*models.Registration, 0)
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registration row: %w", err)
		}
		regs = append(regs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating registration rows: %w", err)
	}
	return regs, nil
}

func (t *postgresTx) InsertRegistration(ctx context.Context, r *models.Registration) error {
	query := `
		INSERT INTO registrations (id, event_id, participant_id, ticket_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := t.q.ExecContext(ctx, query, r.ID, r.EventID, r.ParticipantID, r.TicketID, r.Status, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return mapPQError(fmt.Errorf("failed to insert registration: %w", err))
	}
	return nil
}

func (t *postgresTx) UpdateRegistrationStatus(ctx context.Context, id string, status models.RegistrationStatus, at time.Time) error {
	query := `UPDATE registrations SET status = $2, updated_at = $3 WHERE id = $1`
	result, err := t.q.ExecContext(ctx, query, id, status, at)
	if err != nil {
		return mapPQError(fmt.Errorf("failed to update registration status: %w", err))
	}
	return checkAffectedRows(result, ErrNotFound)
}

func (t *postgresTx) CompleteActiveRegistrations(ctx context.Context, eventID string, at time.Time) (int, error) {
	query := `UPDATE registrations SET status = 'completed', updated_at = $2 WHERE event_id = $1 AND status = 'active'`
	result, err := t.q.ExecContext(ctx, query, eventID, at)
	if err != nil {
		return 0, mapPQError(fmt.Errorf("failed to complete registrations: %w", err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return int(n), nil
}
