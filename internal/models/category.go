package models

import (
	"strings"

	apperrors "github.com/kimhsiao/taskin/backend/internal/errors"
)

// Category labels tasks and projects.
type Category struct {
	ID             UUID      `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Color          string    `db:"color" json:"color"`
	Icon           string    `db:"icon" json:"icon,omitempty"`
	Description    string    `db:"description" json:"description,omitempty"`
	TeamID         UUID      `db:"team_id" json:"teamId,omitempty"`
	UserID         UUID      `db:"user_id" json:"userId"`
	LastModifiedBy UUID      `db:"last_modified_by" json:"lastModifiedBy,omitempty"`
	Version        int       `db:"version" json:"version"`
	CreatedAt      Timestamp `db:"created_at" json:"createdAt"`
	UpdatedAt      Timestamp `db:"updated_at" json:"updatedAt"`
}

// TableName returns the table name for Category.
func (Category) TableName() string {
	return "categories"
}

// Validate checks the user-editable fields.
func (c *Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return apperrors.New(apperrors.ErrValidation, "category name is required")
	}
	return nil
}

// CategoryPatch is a partial category update.
type CategoryPatch struct {
	Name        *string `json:"name,omitempty"`
	Color       *string `json:"color,omitempty"`
	Icon        *string `json:"icon,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Apply merges the patch into c.
func (cp CategoryPatch) Apply(c *Category) {
	if cp.Name != nil {
		c.Name = *cp.Name
	}
	if cp.Color != nil {
		c.Color = *cp.Color
	}
	if cp.Icon != nil {
		c.Icon = *cp.Icon
	}
	if cp.Description != nil {
		c.Description = *cp.Description
	}
}

// DefaultCategory is one entry of the built-in category set.
type DefaultCategory struct {
	Key         string
	Name        string
	Color       string
	Icon        string
	Description string
}

// DefaultCategories is seeded for every user on first open.
var DefaultCategories = []DefaultCategory{
	{"personal", "Personal", "#6366f1", "person", "Personal tasks and reminders"},
	{"work", "Work", "#059669", "briefcase", "Work related tasks"},
	{"home", "Home", "#dc2626", "home", "Chores and maintenance"},
	{"bills", "Bills", "#ca8a04", "card", "Bills, payments and subscriptions"},
	{"shopping", "Shopping", "#7c2d92", "basket", "Groceries and purchases"},
	{"health", "Health", "#ea580c", "medical", "Appointments and exercise"},
	{"transport", "Transport", "#0891b2", "car", "Car maintenance and travel"},
	{"ideas", "Ideas", "#9333ea", "bulb", "Future projects and notes"},
}
