package models

// TeamRole is a member's role inside a team.
type TeamRole string

const (
	RoleOwner  TeamRole = "owner"
	RoleMember TeamRole = "member"
)

// Team owns shared tasks, projects and categories.
type Team struct {
	ID          UUID      `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description,omitempty"`
	OwnerID     UUID      `db:"owner_id" json:"ownerId"`
	CreatedAt   Timestamp `db:"created_at" json:"createdAt"`
	UpdatedAt   Timestamp `db:"updated_at" json:"updatedAt"`
}

// TableName returns the table name for Team.
func (Team) TableName() string {
	return "teams"
}

// TeamMember grants a user visibility into team-owned rows.
type TeamMember struct {
	TeamID   UUID      `db:"team_id" json:"teamId"`
	UserID   UUID      `db:"user_id" json:"userId"`
	Role     TeamRole  `db:"role" json:"role"`
	JoinedAt Timestamp `db:"joined_at" json:"joinedAt"`
}

// TableName returns the table name for TeamMember.
func (TeamMember) TableName() string {
	return "team_members"
}

// TeamWithMembers is the replication unit for teams.
type TeamWithMembers struct {
	Team
	Members []TeamMember `json:"members"`
}
