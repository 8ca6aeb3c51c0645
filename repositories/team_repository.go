package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Dosada05/event-registration/models"
)

const teamColumns = ` id, event_id, leader_id, name, target_size, invite_code, status, created_at, completed_at`

func scanTeam(row rowScanner) (*models.Team, error) {
	var (
		t           models.Team
		completedAt sql.NullTime
	)
	err := row.Scan(&t.ID, &t.EventID, &t.LeaderID, &t.Name, &t.TargetSize, &t.InviteCode, &t.Status, &t.CreatedAt, &completedAt)
	if err != nil {
		return nil, mapPQError(err)
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return &t, nil
}

func (p pgQueries) loadMembers(ctx context.Context, t *models.Team) (*models.Team, error) {
	query := `SELECT participant_id, joined_at FROM team_members WHERE team_id = $1 ORDER BY joined_at, participant_id`
	rows, err := p.q.QueryContext(ctx, query, t.ID)
	if err != nil {
		return nil, mapPQError(fmt.Errorf("failed to load team members: %w", err))
	}
	defer rows.Close()

	t.Members = make([]models.TeamMember, 0, t.TargetSize)
	for rows.Next() {
		var m models.TeamMember
		if err := rows.Scan(&m.ParticipantID, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", err)
		}
		t.Members = append(t.Members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating team member rows: %w", err)
	}
	return t, nil
}

func (p pgQueries) teamWhere(ctx context.Context, where string, arg string, forUpdate bool) (*models.Team, error) {
	query := `SELECT` + teamColumns + ` FROM teams WHERE ` + where
	if forUpdate {
		query += ` FOR UPDATE`
	}
	t, err := scanTeam(p.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, err
	}
	return p.loadMembers(ctx, t)
}

func (p pgQueries) GetTeam(ctx context.Context, id string) (*models.Team, error) {
	return p.teamWhere(ctx, "id = $1", id, false)
}

func (p pgQueries) GetTeamByInviteCode(ctx context.Context, code string) (*models.Team, error) {
	return p.teamWhere(ctx, "invite_code = $1", code, false)
}

func (t *postgresTx) LockTeam(ctx context.Context, id string) (*models.Team, error) {
	return t.teamWhere(ctx, "id = $1", id, true)
}

// LockTeamByInviteCode relies on READ COMMITTED re-evaluating the WHERE
// clause after the row lock is granted, so a code rotated meanwhile yields
// ErrNotFound.
func (t *postgresTx) LockTeamByInviteCode(ctx context.Context, code string) (*models.Team, error) {
	return t.teamWhere(ctx, "invite_code = $1", code, true)
}

func (t *postgresTx) FindActiveTeamFor(ctx context.Context, eventID, participantID string) (*models.Team, error) {
	var teamID string
	query := `SELECT team_id FROM team_members WHERE event_id = $1 AND participant_id = $2 AND active`
	if err := t.q.QueryRowContext(ctx, query, eventID, participantID).Scan(&teamID); err != nil {
		return nil, mapPQError(err)
	}
	return t.GetTeam(ctx, teamID)
}

func (t *postgresTx) InsertTeam(ctx context.Context, team *models.Team) error {
	query := `
		INSERT INTO teams (id, event_id, leader_id, name, target_size, invite_code, status, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := t.q.ExecContext(ctx, query,
		team.ID, team.EventID, team.LeaderID, team.Name, team.TargetSize, team.InviteCode, team.Status, team.CreatedAt, team.CompletedAt,
	)
	if err != nil {
		return mapPQError(fmt.Errorf("failed to insert team: %w", err))
	}
	for _, m := range team.Members {
		if err := t.AddTeamMember(ctx, team.ID, m); err != nil {
			return err
		}
	}
	return nil
}

func (t *postgresTx) AddTeamMember(ctx context.Context, teamID string, m models.TeamMember) error {
	query := `
		INSERT INTO team_members (team_id, event_id, participant_id, joined_at, active)
		SELECT id, event_id, $2, $3, status <> 'cancelled' FROM teams WHERE id = $1`

	result, err := t.q.ExecContext(ctx, query, teamID, m.ParticipantID, m.JoinedAt)
	if err != nil {
		return mapPQError(fmt.Errorf("failed to add team member: %w", err))
	}
	return checkAffectedRows(result, ErrNotFound)
}

func (t *postgresTx) RemoveTeamMember(ctx context.Context, teamID, participantID string) error {
	query := `DELETE FROM team_members WHERE team_id = $1 AND participant_id = $2`
	result, err := t.q.ExecContext(ctx, query, teamID, participantID)
	if err != nil {
		return mapPQError(fmt.Errorf("failed to remove team member: %w", err))
	}
	return checkAffectedRows(result, ErrNotFound)
}

func (t *postgresTx) SaveTeam(ctx context.Context, team *models.Team) error {
	query := `UPDATE teams SET status = $2, invite_code = $3, completed_at = $4 WHERE id = $1`
	result, err := t.q.ExecContext(ctx, query, team.ID, team.Status, team.InviteCode, team.CompletedAt)
	if err != nil {
		return mapPQError(fmt.Errorf("failed to save team: %w", err))
	}
	if err := checkAffectedRows(result, ErrNotFound); err != nil {
		return err
	}

	membersQuery := `UPDATE team_members SET active = $2 WHERE team_id = $1`
	if _, err := t.q.ExecContext(ctx, membersQuery, team.ID, team.Status != models.TeamStatusCancelled); err != nil {
		return mapPQError(fmt.Errorf("failed to update team membership: %w", err))
	}
	return nil
}
