package repositories

import (
	"context"
	"fmt"

	"github.com/Dosada05/event-registration/models"
	"github.com/lib/pq"
)

const eventColumns = `
	id, name, kind, status, organizer_id, registration_limit, registration_deadline,
	starts_at, ends_at, max_team_size, requires_approval,
	registered_count, direct_count, team_seat_count, completed_teams, attended_count, created_at`

func scanEvent(row rowScanner) (*models.Event, error) {
	var e models.Event
	err := row.Scan(
		&e.ID, &e.Name, &e.Kind, &e.Status, &e.OrganizerID, &e.RegistrationLimit, &e.RegistrationDeadline,
		&e.StartsAt, &e.EndsAt, &e.MaxTeamSize, &e.RequiresApproval,
		&e.RegisteredCount, &e.DirectCount, &e.TeamSeatCount, &e.CompletedTeams, &e.AttendedCount, &e.CreatedAt,
	)
	if err != nil {
		return nil, mapPQError(err)
	}
	return &e, nil
}

func (p pgQueries) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	query := `SELECT` + eventColumns + ` FROM events WHERE id = $1`
	return scanEvent(p.q.QueryRowContext(ctx, query, id))
}

func (p pgQueries) ListEventIDsByStatus(ctx context.Context, statuses ...models.EventStatus) ([]string, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}

	query := `SELECT id FROM events WHERE status::text = ANY($1) ORDER BY starts_at, id`
	rows, err := p.q.QueryContext(ctx, query, pq.Array(values))
	if err != nil {
		return nil, fmt.Errorf("failed to list events by status: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan event id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return ids, nil
}

func (t *postgresTx) InsertEvent(ctx context.Context, e *models.Event) error {
	query := `
		INSERT INTO events (
			id, name, kind, status, organizer_id, registration_limit, registration_deadline,
			starts_at, ends_at, max_team_size, requires_approval, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := t.q.ExecContext(ctx, query,
		e.ID, e.Name, e.Kind, e.Status, e.OrganizerID, e.RegistrationLimit, e.RegistrationDeadline,
		e.StartsAt, e.EndsAt, e.MaxTeamSize, e.RequiresApproval, e.CreatedAt,
	)
	if err != nil {
		return mapPQError(fmt.Errorf("failed to insert event: %w", err))
	}
	return nil
}

func (t *postgresTx) LockEvent(ctx context.Context, id string) (*models.Event, error) {
	query := `SELECT` + eventColumns + ` FROM events WHERE id = $1 FOR UPDATE`
	return scanEvent(t.q.QueryRowContext(ctx, query, id))
}

func (t *postgresTx) SaveEvent(ctx context.Context, e *models.Event) error {
	query := `
		UPDATE events SET
			status = $2, registered_count = $3, direct_count = $4, team_seat_count = $5,
			completed_teams = $6, attended_count = $7
		WHERE id = $1`

	result, err := t.q.ExecContext(ctx, query,
		e.ID, e.Status, e.RegisteredCount, e.DirectCount, e.TeamSeatCount, e.CompletedTeams, e.AttendedCount,
	)
	if err != nil {
		return mapPQError(fmt.Errorf("failed to save event: %w", err))
	}
	return checkAffectedRows(result, ErrNotFound)
}
