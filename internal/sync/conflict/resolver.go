// Package conflict applies the server's decision for entities where a local
// change lost. The server is ground truth; the resolver discards the local
// history for the entity and installs the server snapshot.
package conflict

import (
	"context"

	"github.com/kimhsiao/taskin/backend/internal/db"
	apperrors "github.com/kimhsiao/taskin/backend/internal/errors"
	"github.com/kimhsiao/taskin/backend/internal/logging"
	"github.com/kimhsiao/taskin/backend/internal/models"
	"github.com/kimhsiao/taskin/backend/internal/sync/changelog"
	"github.com/kimhsiao/taskin/backend/internal/sync/protocol"
	"github.com/kimhsiao/taskin/backend/internal/uuid"
)

// ResolutionStrategy defines how conflicts are resolved.
type ResolutionStrategy string

const (
	// ResolutionStrategyServerWins keeps the server version in every case.
	ResolutionStrategyServerWins ResolutionStrategy = "server_wins"
	// ResolutionStrategyDeleteWins keeps the server version unless the lost
	// local change was a delete, which is then re-applied and retried.
	ResolutionStrategyDeleteWins ResolutionStrategy = "delete_wins"
)

// ResolutionNotInstalled is logged when the server version was chosen but
// the store rejected its snapshot.
const ResolutionNotInstalled = "server_wins_not_installed"

// ParseStrategy maps a config value to a strategy, defaulting to server wins.
func ParseStrategy(s string) ResolutionStrategy {
	if ResolutionStrategy(s) == ResolutionStrategyDeleteWins {
		return ResolutionStrategyDeleteWins
	}
	return ResolutionStrategyServerWins
}

// Store is what resolution writes to. It is normally bound to the
// transaction that applies the server response.
type Store interface {
	protocol.Applier
	db.ChangeLogRepository
	db.ConflictLogRepository
}

// Conflict is one entity the server refused to take from this device.
type Conflict struct {
	EntityType    models.EntityType
	EntityID      models.UUID
	UserID        models.UUID
	LocalAction   models.ChangeAction
	LocalVersion  int
	ServerVersion int

	// Authoritative is the server's current state of the entity, taken from
	// the response changes or the conflict's serverData. Nil when the server
	// sent neither.
	Authoritative *protocol.Change
}

// Key returns the entity the conflict refers to.
func (c *Conflict) Key() models.EntityKey {
	return models.EntityKey{Type: c.EntityType, ID: c.EntityID}
}

// ResolveResult represents the outcome of conflict resolution.
type ResolveResult struct {
	Strategy    ResolutionStrategy
	Resolution  string
	Applied     bool  // a row was written or removed
	Requeued    bool  // a local delete was queued again
	Err         error // why the server version could not be installed
	ConflictLog *models.ConflictLog
}

// Resolver handles conflict resolution during synchronization.
type Resolver struct {
	strategy ResolutionStrategy
	log      *changelog.Log
}

// NewResolver creates a new Resolver with the specified strategy. log is used
// to queue retried deletes.
func NewResolver(strategy ResolutionStrategy, log *changelog.Log) *Resolver {
	if strategy == "" {
		strategy = ResolutionStrategyServerWins
	}
	return &Resolver{strategy: strategy, log: log}
}

// Strategy returns the configured strategy.
func (r *Resolver) Strategy() ResolutionStrategy {
	return r.strategy
}

// Resolve settles one conflict inside store.
func (r *Resolver) Resolve(ctx context.Context, store Store, c *Conflict) (*ResolveResult, error) {
	if c == nil || !c.EntityType.Valid() || c.EntityID == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "invalid conflict")
	}

	logging.Info("Resolving conflict", map[string]interface{}{
		"entity_type":    string(c.EntityType),
		"entity_id":      string(c.EntityID),
		"local_action":   string(c.LocalAction),
		"local_version":  c.LocalVersion,
		"server_version": c.ServerVersion,
		"strategy":       string(r.strategy),
	})

	if r.strategy == ResolutionStrategyDeleteWins && c.LocalAction == models.ActionDelete {
		return r.resolveDeleteWins(ctx, store, c)
	}
	return r.resolveServerWins(ctx, store, c)
}

// resolveServerWins drops the local history for the entity and installs the
// server snapshot.
func (r *Resolver) resolveServerWins(ctx context.Context, store Store, c *Conflict) (*ResolveResult, error) {
	if _, err := store.DeleteSyncLogsForEntity(ctx, c.EntityType, c.EntityID); err != nil {
		return nil, err
	}

	applied := false
	var installErr error
	if c.Authoritative != nil {
		var err error
		if applied, err = c.Authoritative.Apply(ctx, store, true); err != nil {
			if apperrors.Is(err, apperrors.ErrDatabase) {
				return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to install server version", err)
			}
			// A snapshot the store rejects is left out. The local change
			// is still dropped.
			installErr = err
			logging.Warn("Server version not installed", map[string]interface{}{
				"entity_type": string(c.EntityType),
				"entity_id":   string(c.EntityID),
				"error":       err.Error(),
			})
		}
	} else {
		logging.Warn("Conflict without server snapshot", map[string]interface{}{
			"entity_type": string(c.EntityType),
			"entity_id":   string(c.EntityID),
		})
	}

	result := &ResolveResult{
		Strategy:   r.strategy,
		Resolution: string(ResolutionStrategyServerWins),
		Applied:    applied,
	}
	if installErr != nil {
		result.Resolution = ResolutionNotInstalled
		result.Err = installErr
	}
	if err := r.record(ctx, store, c, result); err != nil {
		return nil, err
	}

	logging.Warn("Local change superseded by server", map[string]interface{}{
		"entity_type":    string(c.EntityType),
		"entity_id":      string(c.EntityID),
		"server_version": c.ServerVersion,
		"code":           string(apperrors.ErrConflictLost),
	})
	return result, nil
}

// resolveDeleteWins removes the entity locally and queues a new tombstone at
// the server version, so the next cycle's delete is accepted.
func (r *Resolver) resolveDeleteWins(ctx context.Context, store Store, c *Conflict) (*ResolveResult, error) {
	if _, err := store.DeleteSyncLogsForEntity(ctx, c.EntityType, c.EntityID); err != nil {
		return nil, err
	}

	del := &protocol.Change{EntityType: c.EntityType, EntityID: c.EntityID, Action: models.ActionDelete}
	applied, err := del.Apply(ctx, store, true)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to re-apply local delete", err)
	}

	version := c.ServerVersion
	if version < c.LocalVersion {
		version = c.LocalVersion
	}
	tomb := models.Tombstone{ID: c.EntityID, UserID: c.UserID, Version: version}
	if c.Authoritative != nil {
		if meta, err := c.Authoritative.Data.Meta(); err == nil {
			tomb.UserID = meta.UserID
			tomb.TeamID = meta.TeamID
		}
	}
	if r.log == nil {
		return nil, apperrors.New(apperrors.ErrNotInitialized, "resolver has no change log")
	}
	if _, err := r.log.With(store).Append(ctx, c.UserID, c.EntityType, c.EntityID, models.ActionDelete, tomb); err != nil {
		return nil, err
	}

	result := &ResolveResult{
		Strategy:   r.strategy,
		Resolution: string(ResolutionStrategyDeleteWins),
		Applied:    applied,
		Requeued:   true,
	}
	if err := r.record(ctx, store, c, result); err != nil {
		return nil, err
	}

	logging.Info("Local delete kept and queued for retry", map[string]interface{}{
		"entity_type": string(c.EntityType),
		"entity_id":   string(c.EntityID),
		"version":     version,
	})
	return result, nil
}

func (r *Resolver) record(ctx context.Context, store Store, c *Conflict, result *ResolveResult) error {
	entry := &models.ConflictLog{
		ID:            models.UUID(uuid.New()),
		EntityType:    c.EntityType,
		EntityID:      c.EntityID,
		LocalAction:   c.LocalAction,
		LocalVersion:  c.LocalVersion,
		ServerVersion: c.ServerVersion,
		Resolution:    result.Resolution,
	}
	if err := store.CreateConflictLog(ctx, entry); err != nil {
		return err
	}
	result.ConflictLog = entry
	return nil
}
