package models

// EntityType names a synced table.
type EntityType string

const (
	EntityTask     EntityType = "task"
	EntityProject  EntityType = "project"
	EntityCategory EntityType = "category"
)

// Valid reports whether e is a synced entity type.
func (e EntityType) Valid() bool {
	switch e {
	case EntityTask, EntityProject, EntityCategory:
		return true
	}
	return false
}

// ChangeAction is the kind of mutation recorded in the change log.
type ChangeAction string

const (
	ActionCreate ChangeAction = "create"
	ActionUpdate ChangeAction = "update"
	ActionDelete ChangeAction = "delete"
)

// Valid reports whether a is a known action.
func (a ChangeAction) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// EntityKey identifies one synced row.
type EntityKey struct {
	Type EntityType
	ID   UUID
}

// ChangeLogEntry records one local mutation. Entries are immutable and are
// removed only by pruning or conflict resolution.
type ChangeLogEntry struct {
	ID           UUID         `db:"id" json:"id"`
	UserID       UUID         `db:"user_id" json:"userId"`
	EntityType   EntityType   `db:"entity_type" json:"entityType"`
	EntityID     UUID         `db:"entity_id" json:"entityId"`
	Action       ChangeAction `db:"action" json:"action"`
	TeamID       UUID         `db:"team_id" json:"teamId,omitempty"`
	Timestamp    Timestamp    `db:"timestamp" json:"timestamp"`
	DataSnapshot string       `db:"data_snapshot" json:"dataSnapshot"`
}

// TableName returns the table name for ChangeLogEntry.
func (ChangeLogEntry) TableName() string {
	return "sync_logs"
}

// Key returns the entity the entry refers to.
func (e *ChangeLogEntry) Key() EntityKey {
	return EntityKey{Type: e.EntityType, ID: e.EntityID}
}

// Version reads the entity version carried by the snapshot, 0 if unreadable.
func (e *ChangeLogEntry) Version() int {
	meta, err := DecodeSnapshotMeta(e.DataSnapshot)
	if err != nil {
		return 0
	}
	return meta.Version
}
