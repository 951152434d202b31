package models

import (
	"strings"

	apperrors "github.com/kimhsiao/taskin/backend/internal/errors"
)

const (
	DefaultProjectColor = "#007AFF"
	DefaultProjectIcon  = "briefcase"
)

// Project groups tasks. Deleting one detaches its tasks instead of deleting them.
type Project struct {
	ID             UUID      `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Description    string    `db:"description" json:"description,omitempty"`
	Color          string    `db:"color" json:"color"`
	Icon           string    `db:"icon" json:"icon,omitempty"`
	CategoryID     UUID      `db:"category_id" json:"categoryId,omitempty"`
	TeamID         UUID      `db:"team_id" json:"teamId,omitempty"`
	UserID         UUID      `db:"user_id" json:"userId"`
	LastModifiedBy UUID      `db:"last_modified_by" json:"lastModifiedBy,omitempty"`
	Version        int       `db:"version" json:"version"`
	CreatedAt      Timestamp `db:"created_at" json:"createdAt"`
	UpdatedAt      Timestamp `db:"updated_at" json:"updatedAt"`
}

// TableName returns the table name for Project.
func (Project) TableName() string {
	return "projects"
}

// ApplyDefaults fills color and icon.
func (p *Project) ApplyDefaults() {
	if p.Color == "" {
		p.Color = DefaultProjectColor
	}
	if p.Icon == "" {
		p.Icon = DefaultProjectIcon
	}
}

// Validate checks the user-editable fields.
func (p *Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return apperrors.New(apperrors.ErrValidation, "project name is required")
	}
	return nil
}

// ProjectPatch is a partial project update.
type ProjectPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
	Icon        *string `json:"icon,omitempty"`
	CategoryID  *UUID   `json:"categoryId,omitempty"`
	TeamID      *UUID   `json:"teamId,omitempty"`
}

// Apply merges the patch into p.
func (pp ProjectPatch) Apply(p *Project) {
	if pp.Name != nil {
		p.Name = *pp.Name
	}
	if pp.Description != nil {
		p.Description = *pp.Description
	}
	if pp.Color != nil {
		p.Color = *pp.Color
	}
	if pp.Icon != nil {
		p.Icon = *pp.Icon
	}
	if pp.CategoryID != nil {
		p.CategoryID = *pp.CategoryID
	}
	if pp.TeamID != nil {
		p.TeamID = *pp.TeamID
	}
}
