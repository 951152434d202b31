package authority

import (
	"context"
	"time"

	apperrors "github.com/kimhsiao/taskin/backend/internal/errors"
	"github.com/kimhsiao/taskin/backend/internal/logging"
	"github.com/kimhsiao/taskin/backend/internal/models"
	"github.com/kimhsiao/taskin/backend/internal/sync/protocol"
)

// Service implements the delta exchange on top of a Store.
type Service struct {
	store *Store
}

// NewService creates a new Service.
func NewService(store *Store) *Service {
	return &Service{store: store}
}

// ProcessDelta accepts the caller's changes and returns everything visible
// to the caller after its cursor.
//
// A create or update conflicts when the stored version is at least the
// change's version; a delete conflicts only when the stored version is
// newer than the tombstone. A byte-identical resubmission of the stored
// change is accepted without a new row. Conflicting entities have their
// authoritative change included in the response.
func (s *Service) ProcessDelta(ctx context.Context, userID models.UUID, req *protocol.DeltaRequest) (*protocol.DeltaResponse, error) {
	if userID == "" {
		return nil, apperrors.New(apperrors.ErrUnauthorized, "missing user")
	}
	if req == nil {
		req = &protocol.DeltaRequest{}
	}

	resp := &protocol.DeltaResponse{
		Changes:   []protocol.Change{},
		Conflicts: []protocol.Conflict{},
	}
	accepted, rejected := 0, 0

	err := s.store.Transaction(ctx, func(tx *Store) error {
		teamIDs, err := tx.TeamIDs(ctx, userID)
		if err != nil {
			return err
		}
		teams := make(map[models.UUID]bool, len(teamIDs))
		for _, id := range teamIDs {
			teams[id] = true
		}

		authoritative := make(map[models.EntityKey]*ServerChange)
		for i := range req.Changes {
			ch := &req.Changes[i]
			if err := ch.Validate(); err != nil {
				logging.Warn("Rejected invalid change", map[string]interface{}{
					"user_id":   string(userID),
					"entity_id": string(ch.EntityID),
					"error":     err.Error(),
				})
				rejected++
				continue
			}

			latest, err := tx.Latest(ctx, ch.EntityType, ch.EntityID)
			if err != nil {
				return err
			}
			if latest != nil && latest.UserID != userID && (latest.TeamID == "" || !teams[latest.TeamID]) {
				logging.Warn("Rejected change to entity not visible to caller", map[string]interface{}{
					"user_id":   string(userID),
					"entity_id": string(ch.EntityID),
				})
				rejected++
				continue
			}

			if latest != nil && isResubmission(latest, ch) {
				continue
			}
			if latest != nil && conflicts(latest.Version, ch) {
				resp.Conflicts = append(resp.Conflicts, protocol.Conflict{
					EntityType:    ch.EntityType,
					EntityID:      ch.EntityID,
					LocalVersion:  ch.Version,
					ServerVersion: latest.Version,
					ServerData:    protocol.Snapshot(latest.DataSnapshot),
					LocalData:     ch.Data,
				})
				authoritative[ch.Key()] = latest
				continue
			}

			meta, _ := ch.Data.Meta()
			if err := tx.Append(ctx, &ServerChange{
				UserID:       userID,
				EntityType:   ch.EntityType,
				EntityID:     ch.EntityID,
				Action:       ch.Action,
				TeamID:       meta.TeamID,
				Version:      ch.Version,
				DataSnapshot: string(ch.Data),
			}); err != nil {
				return err
			}
			accepted++
		}

		changes, err := tx.ChangesSince(ctx, userID, teamIDs, req.LastSyncAt)
		if err != nil {
			return err
		}
		seen := make(map[uint64]bool, len(changes))
		for i := range changes {
			seen[changes[i].Seq] = true
			resp.Changes = append(resp.Changes, toProtocol(&changes[i]))
		}
		for _, c := range authoritative {
			if !seen[c.Seq] {
				seen[c.Seq] = true
				resp.Changes = append(resp.Changes, toProtocol(c))
			}
		}

		latest, err := tx.LatestTimestamp(ctx)
		if err != nil {
			return err
		}
		resp.LastSyncAt = latest
		if req.LastSyncAt.After(latest) {
			resp.LastSyncAt = req.LastSyncAt
		}
		if resp.LastSyncAt.IsZero() {
			resp.LastSyncAt = models.Epoch
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Info("Delta processed", map[string]interface{}{
		"user_id":   string(userID),
		"received":  len(req.Changes),
		"accepted":  accepted,
		"rejected":  rejected,
		"conflicts": len(resp.Conflicts),
		"returned":  len(resp.Changes),
	})
	return resp, nil
}

func conflicts(serverVersion int, ch *protocol.Change) bool {
	if ch.Action == models.ActionDelete {
		return serverVersion > ch.Version
	}
	return serverVersion >= ch.Version
}

func isResubmission(latest *ServerChange, ch *protocol.Change) bool {
	return latest.Version == ch.Version &&
		latest.Action == ch.Action &&
		latest.DataSnapshot == string(ch.Data)
}

func toProtocol(c *ServerChange) protocol.Change {
	return protocol.Change{
		EntityType: c.EntityType,
		EntityID:   c.EntityID,
		Action:     c.Action,
		Data:       protocol.Snapshot(c.DataSnapshot),
		Timestamp:  c.Timestamp,
		Version:    c.Version,
	}
}

// Teams returns the caller's teams.
func (s *Service) Teams(ctx context.Context, userID models.UUID) ([]models.TeamWithMembers, error) {
	return s.store.Teams(ctx, userID)
}

// MemberInput is one member in a team membership update.
type MemberInput struct {
	UserID models.UUID     `json:"userId" binding:"required"`
	Role   models.TeamRole `json:"role"`
}

// TeamMembersRequest is the body of PUT /teams/:id/members.
type TeamMembersRequest struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Members     []MemberInput `json:"members"`
}

// PutTeamMembers creates the team on first use, owned by the caller, and
// replaces its members. Only the owner may change an existing team. The
// owner is always kept as a member.
func (s *Service) PutTeamMembers(ctx context.Context, callerID, teamID models.UUID, req *TeamMembersRequest) (*models.TeamWithMembers, error) {
	if teamID == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "team id is required")
	}
	existing, err := s.store.Team(ctx, teamID)
	if err != nil {
		return nil, err
	}

	team := &ServerTeam{ID: teamID, Name: req.Name, Description: req.Description, OwnerID: callerID}
	if existing != nil {
		if existing.OwnerID != callerID {
			return nil, apperrors.Newf(apperrors.ErrForbidden, "only the owner may change team %s", teamID)
		}
		team.CreatedAt = existing.CreatedAt
		if team.Name == "" {
			team.Name = existing.Name
		}
		if team.Description == "" {
			team.Description = existing.Description
		}
	}
	if team.Name == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "team name is required")
	}

	now := time.Now().UTC()
	members := []ServerTeamMember{{TeamID: teamID, UserID: callerID, Role: models.RoleOwner, JoinedAt: now}}
	for _, m := range req.Members {
		if m.UserID == "" || m.UserID == callerID {
			continue
		}
		role := m.Role
		if role != models.RoleOwner {
			role = models.RoleMember
		}
		members = append(members, ServerTeamMember{TeamID: teamID, UserID: m.UserID, Role: role, JoinedAt: now})
	}

	if err := s.store.PutTeam(ctx, team, members); err != nil {
		return nil, err
	}
	logging.Info("Team members replaced", map[string]interface{}{
		"team_id": string(teamID),
		"members": len(members),
	})

	teams, err := s.store.Teams(ctx, callerID)
	if err != nil {
		return nil, err
	}
	for i := range teams {
		if teams[i].ID == teamID {
			return &teams[i], nil
		}
	}
	return nil, apperrors.Newf(apperrors.ErrNotFound, "team %s not found", teamID)
}
