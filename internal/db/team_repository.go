package db

import (
	"context"
	"database/sql"

	"github.com/kimhsiao/taskin/backend/internal/models"
)

// =====================================================
// Team Operations
// =====================================================

// ReplaceTeams installs the server's view of the teams userID belongs to,
// dropping any locally cached team the user is no longer part of.
func (r *Repository) ReplaceTeams(ctx context.Context, userID models.UUID, teams []models.TeamWithMembers) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.InTx(ctx, func(tx *Repository) error {
		stale := `SELECT team_id FROM team_members WHERE user_id = ?`
		if _, err := tx.q.ExecContext(ctx, `DELETE FROM teams WHERE id IN (`+stale+`)`, userID); err != nil {
			return wrapDBError("failed to clear teams", err)
		}
		if _, err := tx.q.ExecContext(ctx, `DELETE FROM team_members WHERE team_id IN (`+stale+`)`, userID); err != nil {
			return wrapDBError("failed to clear team members", err)
		}
		for i := range teams {
			if err := tx.UpsertTeam(ctx, &teams[i].Team); err != nil {
				return err
			}
			for j := range teams[i].Members {
				m := teams[i].Members[j]
				m.TeamID = teams[i].ID
				if err := tx.PutTeamMember(ctx, &m); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// UpsertTeam inserts or replaces a team row.
func (r *Repository) UpsertTeam(ctx context.Context, t *models.Team) error {
	if err := r.ready(); err != nil {
		return err
	}
	now := r.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
	_, err := r.q.ExecContext(ctx, `
	INSERT INTO teams (id, name, description, owner_id, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description,
		owner_id = excluded.owner_id, updated_at = excluded.updated_at`,
		t.ID, t.Name, nullString(t.Description), t.OwnerID, t.CreatedAt, t.UpdatedAt)
	return wrapDBError("failed to upsert team", err)
}

// PutTeamMember inserts or updates a membership row.
func (r *Repository) PutTeamMember(ctx context.Context, m *models.TeamMember) error {
	if err := r.ready(); err != nil {
		return err
	}
	if m.Role == "" {
		m.Role = models.RoleMember
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = r.Now()
	}
	_, err := r.q.ExecContext(ctx, `
	INSERT INTO team_members (team_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)
	ON CONFLICT(team_id, user_id) DO UPDATE SET role = excluded.role`,
		m.TeamID, m.UserID, string(m.Role), m.JoinedAt)
	return wrapDBError("failed to put team member", err)
}

// ListTeams returns the teams userID belongs to, with their members.
func (r *Repository) ListTeams(ctx context.Context, userID models.UUID) ([]models.TeamWithMembers, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	rows, err := r.q.QueryContext(ctx, `
	SELECT t.id, t.name, t.description, t.owner_id, t.created_at, t.updated_at
	FROM teams t JOIN team_members m ON m.team_id = t.id
	WHERE m.user_id = ? ORDER BY t.name COLLATE NOCASE`, userID)
	if err != nil {
		return nil, wrapDBError("failed to list teams", err)
	}
	var teams []models.TeamWithMembers
	for rows.Next() {
		var t models.TeamWithMembers
		var description sql.NullString
		if err := rows.Scan(&t.ID, &t.Name, &description, &t.OwnerID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			rows.Close()
			return nil, wrapDBError("failed to scan team", err)
		}
		t.Description = description.String
		teams = append(teams, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("failed to list teams", err)
	}

	for i := range teams {
		members, err := r.listTeamMembers(ctx, teams[i].ID)
		if err != nil {
			return nil, err
		}
		teams[i].Members = members
	}
	return teams, nil
}

func (r *Repository) listTeamMembers(ctx context.Context, teamID models.UUID) ([]models.TeamMember, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT team_id, user_id, role, joined_at FROM team_members WHERE team_id = ? ORDER BY joined_at, user_id`, teamID)
	if err != nil {
		return nil, wrapDBError("failed to list team members", err)
	}
	defer rows.Close()

	var members []models.TeamMember
	for rows.Next() {
		var m models.TeamMember
		if err := rows.Scan(&m.TeamID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, wrapDBError("failed to scan team member", err)
		}
		members = append(members, m)
	}
	return members, wrapDBError("failed to list team members", rows.Err())
}

// TeamIDsForUser returns the ids of the teams userID belongs to.
func (r *Repository) TeamIDsForUser(ctx context.Context, userID models.UUID) ([]models.UUID, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	rows, err := r.q.QueryContext(ctx, `SELECT team_id FROM team_members WHERE user_id = ? ORDER BY team_id`, userID)
	if err != nil {
		return nil, wrapDBError("failed to list team ids", err)
	}
	defer rows.Close()

	var ids []models.UUID
	for rows.Next() {
		var id models.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBError("failed to scan team id", err)
		}
		ids = append(ids, id)
	}
	return ids, wrapDBError("failed to list team ids", rows.Err())
}
