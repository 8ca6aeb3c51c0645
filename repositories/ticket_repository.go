package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Dosada05/event-registration/models"
)

const ticketColumns = ` id, event_id, participant_id, team_id, token, pass_url, issued_at, checked_in_at`

func scanTicket(row rowScanner) (*models.Ticket, error) {
	var (
		t         models.Ticket
		teamID    sql.NullString
		checkedIn sql.NullTime
	)
	err := row.Scan(&t.ID, &t.EventID, &t.ParticipantID, &teamID, &t.Token, &t.PassURL, &t.IssuedAt, &checkedIn)
	if err != nil {
		return nil, mapPQError(err)
	}
	if teamID.Valid {
		t.TeamID = &teamID.String
	}
	if checkedIn.Valid {
		t.CheckedInAt = &checkedIn.Time
	}
	return &t, nil
}

func (p pgQueries) listTickets(ctx context.Context, where string, arg string) ([]*models.Ticket, error) {
	query := `SELECT` + ticketColumns + ` FROM tickets WHERE ` + where + ` ORDER BY issued_at, id`
	rows, err := p.q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, mapPQError(fmt.Errorf("failed to list tickets: %w", err))
	}
	defer rows.Close()

	tickets := make([]*models.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket row: %w", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ticket rows: %w", err)
	}
	return tickets, nil
}

func (p pgQueries) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	query := `SELECT` + ticketColumns + ` FROM tickets WHERE id = $1`
	return scanTicket(p.q.QueryRowContext(ctx, query, id))
}

func (p pgQueries) FindTicket(ctx context.Context, eventID, participantID string) (*models.Ticket, error) {
	query := `SELECT` + ticketColumns + ` FROM tickets WHERE event_id = $1 AND participant_id = $2`
	return scanTicket(p.q.QueryRowContext(ctx, query, eventID, participantID))
}

func (p pgQueries) ListTicketsByParticipant(ctx context.Context, participantID string) ([]*models.Ticket, error) {
	return p.listTickets(ctx, "participant_id = $1", participantID)
}

func (p pgQueries) ListTicketsByTeam(ctx context.Context, teamID string) ([]*models.Ticket, error) {
	return p.listTickets(ctx, "team_id = $1", teamID)
}

func (p pgQueries) SetTicketArtifacts(ctx context.Context, ticketID, token, passURL string) error {
	query := `
		UPDATE tickets SET
			token = COALESCE(NULLIF($2, ''), token),
			pass_url = COALESCE(NULLIF($3, ''), pass_url)
		WHERE id = $1`

	result, err := p.q.ExecContext(ctx, query, ticketID, token, passURL)
	if err != nil {
		return mapPQError(fmt.Errorf("failed to set ticket artifacts: %w", err))
	}
	return checkAffectedRows(result, ErrNotFound)
}

func (p pgQueries) ClearTicketPass(ctx context.Context, ticketID string) error {
	query := `UPDATE tickets SET pass_url = '' WHERE id = $1`

	result, err := p.q.ExecContext(ctx, query, ticketID)
	if err != nil {
		return mapPQError(fmt.Errorf("failed to clear ticket pass: %w", err))
	}
	return checkAffectedRows(result, ErrNotFound)
}

func (t *postgresTx) InsertTicket(ctx context.Context, tk *models.Ticket) error {
	query := `
		INSERT INTO tickets (id, event_id, participant_id, team_id, token, pass_url, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := t.q.ExecContext(ctx, query, tk.ID, tk.EventID, tk.ParticipantID, tk.TeamID, tk.Token, tk.PassURL, tk.IssuedAt)
	if err != nil {
		return mapPQError(fmt.Errorf("failed to insert ticket: %w", err))
	}
	return nil
}

func (t *postgresTx) MarkTicketCheckedIn(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE tickets SET checked_in_at = $2 WHERE id = $1`
	result, err := t.q.ExecContext(ctx, query, id, at)
	if err != nil {
		return mapPQError(fmt.Errorf("failed to mark ticket checked in: %w", err))
	}
	return checkAffectedRows(result, ErrNotFound)
}

func (t *postgresTx) BindTicketTeam(ctx context.Context, id string, teamID *string) error {
	query := `UPDATE tickets SET team_id = $2 WHERE id = $1`
	result, err := t.q.ExecContext(ctx, query, id, teamID)
	if err != nil {
		return mapPQError(fmt.Errorf("failed to bind ticket team: %w", err))
	}
	return checkAffectedRows(result, ErrNotFound)
}
