package model

import "time"

type Issue struct {
	ID             int64        `json:"id"`
	Title          string       `json:"title"`
	Description    *string      `json:"description,omitempty"`
	Status         IssueStatus  `json:"status"`
	Order          int          `json:"order"`
	DueDate        *time.Time   `json:"due_date,omitempty"`
	EstimatedHours *int         `json:"estimated_hours,omitempty"`
	ProjectID      int64        `json:"project_id"`
	ProjectName    string       `json:"project_name"`
	Assignee       *UserSummary `json:"assignee,omitempty"`
	Reporter       *UserSummary `json:"reporter"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

type IssueCreate struct {
	Title          string     `json:"title" validate:"required,max=200"`
	Description    *string    `json:"description,omitempty" validate:"omitempty,max=2000"`
	ProjectID      int64      `json:"project_id" validate:"required"`
	AssigneeID     *int64     `json:"assignee_id,omitempty"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	EstimatedHours *int       `json:"estimated_hours,omitempty" validate:"omitempty,min=0"`
}

type IssueUpdate struct {
	Title          string     `json:"title" validate:"required,max=200"`
	Description    *string    `json:"description,omitempty" validate:"omitempty,max=2000"`
	AssigneeID     *int64     `json:"assignee_id,omitempty"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	EstimatedHours *int       `json:"estimated_hours,omitempty" validate:"omitempty,min=0"`
}

// IssueMove places an issue at Order within the NewStatus column.
type IssueMove struct {
	NewStatus IssueStatus `json:"new_status" validate:"required"`
	NewOrder  int         `json:"new_order" validate:"min=0"`
}

// IssueFilter is a conjunction of the set fields.
type IssueFilter struct {
	ProjectID  *int64
	AssigneeID *int64
	Status     *IssueStatus
	Title      string
}
