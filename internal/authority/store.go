// Package authority is a reference delta-sync server: it stores every
// accepted change, decides conflicts by version and serves deltas by cursor.
package authority

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	apperrors "github.com/kimhsiao/taskin/backend/internal/errors"
	"github.com/kimhsiao/taskin/backend/internal/logging"
	"github.com/kimhsiao/taskin/backend/internal/models"
	"github.com/kimhsiao/taskin/backend/internal/sync/changelog"
)

// ServerChange is one accepted change. Rows are append-only.
type ServerChange struct {
	Seq          uint64              `gorm:"primaryKey;autoIncrement"`
	UserID       models.UUID         `gorm:"type:text;not null;index"`
	EntityType   models.EntityType   `gorm:"type:text;not null;index:idx_server_changes_entity"`
	EntityID     models.UUID         `gorm:"type:text;not null;index:idx_server_changes_entity"`
	Action       models.ChangeAction `gorm:"type:text;not null"`
	TeamID       models.UUID         `gorm:"type:text;index"`
	Version      int                 `gorm:"not null"`
	Timestamp    models.Timestamp    `gorm:"type:text;not null;index"`
	DataSnapshot string              `gorm:"type:text"`
}

// TableName returns the table name for ServerChange.
func (ServerChange) TableName() string {
	return "server_changes"
}

// ServerTeam is a team known to the authority.
type ServerTeam struct {
	ID          models.UUID `gorm:"primaryKey;type:text"`
	Name        string      `gorm:"not null"`
	Description string
	OwnerID     models.UUID `gorm:"type:text;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName returns the table name for ServerTeam.
func (ServerTeam) TableName() string {
	return "server_teams"
}

// ServerTeamMember links a user to a team.
type ServerTeamMember struct {
	TeamID   models.UUID     `gorm:"primaryKey;type:text"`
	UserID   models.UUID     `gorm:"primaryKey;type:text;index"`
	Role     models.TeamRole `gorm:"type:text;not null"`
	JoinedAt time.Time
}

// TableName returns the table name for ServerTeamMember.
func (ServerTeamMember) TableName() string {
	return "server_team_members"
}

// Store persists the authority's changes and teams.
type Store struct {
	db    *gorm.DB
	clock *changelog.Clock
}

// OpenStore opens a SQLite database and runs migrations.
func OpenStore(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = "taskin-authority.db"
	}
	if err := ensureDirForSQLite(dsn); err != nil {
		return nil, err
	}

	dbLogger := logger.New(
		logging.Get(),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: dbLogger})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "open authority db", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "open authority db", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return NewStore(db)
}

// NewStore migrates db and seeds the change clock from the stored changes.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&ServerChange{}, &ServerTeam{}, &ServerTeamMember{}); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrMigration, "migrate authority db", err)
	}
	s := &Store{db: db, clock: changelog.NewClock(nil)}
	latest, err := s.LatestTimestamp(context.Background())
	if err != nil {
		return nil, err
	}
	s.clock.Observe(latest)
	return s, nil
}

// ensureDirForSQLite creates parent dir for SQLite file if needed.
func ensureDirForSQLite(dsn string) error {
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	clean := strings.TrimPrefix(dsn, "file:")
	clean = strings.Split(clean, "?")[0]
	dir := filepath.Dir(clean)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction runs fn against a store bound to one database transaction.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, clock: s.clock})
	})
}

// =====================================================
// Changes
// =====================================================

// Latest returns the highest-version change for an entity, nil if none.
func (s *Store) Latest(ctx context.Context, entityType models.EntityType, entityID models.UUID) (*ServerChange, error) {
	var c ServerChange
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("version DESC, seq DESC").
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "find latest change", err)
	}
	return &c, nil
}

// Append stores c, stamping it with a timestamp later than every stored one.
func (s *Store) Append(ctx context.Context, c *ServerChange) error {
	c.Timestamp = s.clock.Next()
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "append change", err)
	}
	return nil
}

// ChangesSince returns changes after since that userID owns or that belong
// to one of teamIDs, oldest first. A zero since returns everything visible.
func (s *Store) ChangesSince(ctx context.Context, userID models.UUID, teamIDs []models.UUID, since models.Timestamp) ([]ServerChange, error) {
	q := s.db.WithContext(ctx).Model(&ServerChange{})
	if len(teamIDs) > 0 {
		q = q.Where("user_id = ? OR team_id IN ?", userID, teamIDs)
	} else {
		q = q.Where("user_id = ?", userID)
	}
	if !since.IsZero() {
		q = q.Where("timestamp > ?", since)
	}

	var changes []ServerChange
	if err := q.Order("timestamp ASC, seq ASC").Find(&changes).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "list changes", err)
	}
	return changes, nil
}

// LatestTimestamp returns the newest change timestamp, zero when empty.
func (s *Store) LatestTimestamp(ctx context.Context) (models.Timestamp, error) {
	var c ServerChange
	err := s.db.WithContext(ctx).Order("timestamp DESC").First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Timestamp{}, nil
	}
	if err != nil {
		return models.Timestamp{}, apperrors.Wrap(apperrors.ErrDatabase, "find latest timestamp", err)
	}
	return c.Timestamp, nil
}

// =====================================================
// Teams
// =====================================================

// TeamIDs returns the teams userID belongs to.
func (s *Store) TeamIDs(ctx context.Context, userID models.UUID) ([]models.UUID, error) {
	var ids []models.UUID
	err := s.db.WithContext(ctx).Model(&ServerTeamMember{}).
		Where("user_id = ?", userID).
		Order("team_id").
		Pluck("team_id", &ids).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "list team ids", err)
	}
	return ids, nil
}

// Team returns a team, nil if unknown.
func (s *Store) Team(ctx context.Context, id models.UUID) (*ServerTeam, error) {
	var t ServerTeam
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "find team", err)
	}
	return &t, nil
}

// PutTeam creates or updates team and replaces its members.
func (s *Store) PutTeam(ctx context.Context, team *ServerTeam, members []ServerTeamMember) error {
	return s.Transaction(ctx, func(tx *Store) error {
		if err := tx.db.WithContext(ctx).Save(team).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrDatabase, "save team", err)
		}
		if err := tx.db.WithContext(ctx).Where("team_id = ?", team.ID).Delete(&ServerTeamMember{}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrDatabase, "clear team members", err)
		}
		if len(members) == 0 {
			return nil
		}
		if err := tx.db.WithContext(ctx).Create(&members).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrDatabase, "save team members", err)
		}
		return nil
	})
}

// Teams returns every team userID belongs to with its members.
func (s *Store) Teams(ctx context.Context, userID models.UUID) ([]models.TeamWithMembers, error) {
	ids, err := s.TeamIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.TeamWithMembers{}, nil
	}

	var teams []ServerTeam
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("name, id").Find(&teams).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "list teams", err)
	}
	var members []ServerTeamMember
	if err := s.db.WithContext(ctx).Where("team_id IN ?", ids).Order("joined_at, user_id").Find(&members).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "list team members", err)
	}

	byTeam := make(map[models.UUID][]models.TeamMember)
	for _, m := range members {
		byTeam[m.TeamID] = append(byTeam[m.TeamID], models.TeamMember{
			TeamID:   m.TeamID,
			UserID:   m.UserID,
			Role:     m.Role,
			JoinedAt: models.NewTimestamp(m.JoinedAt),
		})
	}

	out := make([]models.TeamWithMembers, 0, len(teams))
	for _, t := range teams {
		out = append(out, models.TeamWithMembers{
			Team: models.Team{
				ID:          t.ID,
				Name:        t.Name,
				Description: t.Description,
				OwnerID:     t.OwnerID,
				CreatedAt:   models.NewTimestamp(t.CreatedAt),
				UpdatedAt:   models.NewTimestamp(t.UpdatedAt),
			},
			Members: byTeam[t.ID],
		})
	}
	return out, nil
}
