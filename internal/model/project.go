package model

import "time"

type Project struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Description *string       `json:"description,omitempty"`
	TeamID      int64         `json:"team_id"`
	Status      ProjectStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
}

type ProjectCreate struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
	TeamID      int64   `json:"team_id" validate:"required"`
}

// ProjectUpdate carries the mutable fields; the owning team is fixed.
type ProjectUpdate struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
}

// IssueTally counts the non-deleted issues of one project.
type IssueTally struct {
	Total int
	Done  int
}

// DeriveProjectStatus is the single source of truth for the status shown
// on every project read. Cancelled is terminal; otherwise a project is
// Completed once it has issues and all of them are Done.
func DeriveProjectStatus(stored ProjectStatus, tally IssueTally) ProjectStatus {
	if stored == ProjectStatusCancelled {
		return ProjectStatusCancelled
	}
	if tally.Total > 0 && tally.Done == tally.Total {
		return ProjectStatusCompleted
	}
	return ProjectStatusActive
}
