package models

import (
	"encoding/json"
	"fmt"
)

// SnapshotMeta holds the fields every snapshot carries, tombstones included.
type SnapshotMeta struct {
	ID      UUID `json:"id"`
	UserID  UUID `json:"userId"`
	TeamID  UUID `json:"teamId,omitempty"`
	Version int  `json:"version"`
}

// Tombstone is the snapshot recorded for a delete.
type Tombstone = SnapshotMeta

// EncodeSnapshot serializes an entity or tombstone for the change log.
func EncodeSnapshot(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return string(b), nil
}

// DecodeSnapshotMeta reads the shared snapshot fields.
func DecodeSnapshotMeta(data string) (SnapshotMeta, error) {
	var meta SnapshotMeta
	if err := json.Unmarshal([]byte(data), &meta); err != nil {
		return SnapshotMeta{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return meta, nil
}

// DecodeTask reads a task snapshot.
func DecodeTask(data string) (*Task, error) {
	var t Task
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("decode task snapshot: %w", err)
	}
	return &t, nil
}

// DecodeProject reads a project snapshot.
func DecodeProject(data string) (*Project, error) {
	var p Project
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("decode project snapshot: %w", err)
	}
	return &p, nil
}

// DecodeCategory reads a category snapshot.
func DecodeCategory(data string) (*Category, error) {
	var c Category
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, fmt.Errorf("decode category snapshot: %w", err)
	}
	return &c, nil
}
