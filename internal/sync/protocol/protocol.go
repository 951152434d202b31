// Package protocol holds the wire types of the delta sync endpoint, shared by
// the sync client and the reference authority.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/kimhsiao/taskin/backend/internal/models"
)

// Endpoint paths.
const (
	DeltaPath   = "/sync/delta"
	TeamsPath   = "/teams"
	HealthPath  = "/api/health"
	ContentType = "application/json"
)

// Snapshot is an entity snapshot in JSON. It travels as a JSON string; an
// embedded object is accepted on decode.
type Snapshot string

// MarshalJSON encodes the snapshot as a JSON string.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON accepts a JSON string, an object, or null.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*s = ""
	case data[0] == '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Snapshot(str)
	case data[0] == '{':
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return err
		}
		*s = Snapshot(buf.String())
	default:
		return fmt.Errorf("snapshot must be a string or object, got %s", data)
	}
	return nil
}

// Meta reads the fields every snapshot carries.
func (s Snapshot) Meta() (models.SnapshotMeta, error) {
	return models.DecodeSnapshotMeta(string(s))
}

// Change is one entity mutation in either direction.
type Change struct {
	EntityType models.EntityType   `json:"entityType"`
	EntityID   models.UUID         `json:"entityId"`
	Action     models.ChangeAction `json:"action"`
	Data       Snapshot            `json:"data"`
	Timestamp  models.Timestamp    `json:"timestamp"`
	Version    int                 `json:"version"`
}

// FromEntry converts a change-log entry for sending.
func FromEntry(e *models.ChangeLogEntry) Change {
	return Change{
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Action:     e.Action,
		Data:       Snapshot(e.DataSnapshot),
		Timestamp:  e.Timestamp,
		Version:    e.Version(),
	}
}

// Validate checks the fields the receiver relies on.
func (c *Change) Validate() error {
	if !c.EntityType.Valid() {
		return fmt.Errorf("unknown entity type %q", c.EntityType)
	}
	if !c.Action.Valid() {
		return fmt.Errorf("unknown action %q", c.Action)
	}
	if c.EntityID == "" {
		return fmt.Errorf("entity id is required")
	}
	if c.Version < 1 {
		return fmt.Errorf("version must be positive, got %d", c.Version)
	}
	meta, err := c.Data.Meta()
	if err != nil {
		return err
	}
	if meta.ID != "" && meta.ID != c.EntityID {
		return fmt.Errorf("snapshot id %s does not match entity id %s", meta.ID, c.EntityID)
	}
	return nil
}

// Key returns the entity the change refers to.
func (c *Change) Key() models.EntityKey {
	return models.EntityKey{Type: c.EntityType, ID: c.EntityID}
}

// DeltaRequest is the body of POST /sync/delta.
type DeltaRequest struct {
	Changes    []Change         `json:"changes"`
	LastSyncAt models.Timestamp `json:"lastSyncAt,omitzero"`
}

// Conflict reports an entity where the server kept its own version.
type Conflict struct {
	EntityType    models.EntityType `json:"entityType"`
	EntityID      models.UUID       `json:"entityId"`
	LocalVersion  int               `json:"localVersion,omitempty"`
	ServerVersion int               `json:"serverVersion,omitempty"`
	ServerData    Snapshot          `json:"serverData,omitempty"`
	LocalData     Snapshot          `json:"localData,omitempty"`
}

// Key returns the entity the conflict refers to.
func (c *Conflict) Key() models.EntityKey {
	return models.EntityKey{Type: c.EntityType, ID: c.EntityID}
}

// DeltaResponse is the reply to POST /sync/delta.
type DeltaResponse struct {
	Changes    []Change         `json:"changes"`
	Conflicts  []Conflict       `json:"conflicts"`
	LastSyncAt models.Timestamp `json:"lastSyncAt"`
}

// TeamsResponse is the reply to GET /teams.
type TeamsResponse struct {
	Teams []models.TeamWithMembers `json:"teams"`
}

// ErrorResponse is the body of a non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
