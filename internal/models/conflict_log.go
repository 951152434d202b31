package models

// ConflictLog records a local change that lost to the server's version.
type ConflictLog struct {
	ID            UUID         `db:"id" json:"id"`
	EntityType    EntityType   `db:"entity_type" json:"entityType"`
	EntityID      UUID         `db:"entity_id" json:"entityId"`
	LocalAction   ChangeAction `db:"local_action" json:"localAction,omitempty"`
	LocalVersion  int          `db:"local_version" json:"localVersion"`
	ServerVersion int          `db:"server_version" json:"serverVersion"`
	Resolution    string       `db:"resolution" json:"resolution"`
	DetectedAt    Timestamp    `db:"detected_at" json:"detectedAt"`
}

// TableName returns the table name for ConflictLog.
func (ConflictLog) TableName() string {
	return "conflict_log"
}
