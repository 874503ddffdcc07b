package model

import (
	"slices"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrUnknownRole        = errors.New("unknown role")
	ErrUnknownIssueStatus = errors.New("unknown issue status")
)

type Role string

const (
	RoleBusinessUser Role = "BusinessUser"
	RoleDeveloper    Role = "Developer"
	RoleTeamLead     Role = "TeamLead"
)

var roles = []Role{RoleBusinessUser, RoleDeveloper, RoleTeamLead}

// ParseRole matches s against the known roles ignoring case.
func ParseRole(s string) (Role, error) {
	for _, r := range roles {
		if strings.EqualFold(string(r), strings.TrimSpace(s)) {
			return r, nil
		}
	}
	return "", errors.Wrap(ErrUnknownRole, s)
}

type ProjectStatus string

const (
	ProjectStatusActive    ProjectStatus = "Active"
	ProjectStatusCompleted ProjectStatus = "Completed"
	ProjectStatusCancelled ProjectStatus = "Cancelled"
)

type IssueStatus string

const (
	IssueStatusToDo       IssueStatus = "ToDo"
	IssueStatusInProgress IssueStatus = "InProgress"
	IssueStatusInReview   IssueStatus = "InReview"
	IssueStatusDone       IssueStatus = "Done"
)

var issueStatuses = []IssueStatus{IssueStatusToDo, IssueStatusInProgress, IssueStatusInReview, IssueStatusDone}

// ParseIssueStatus matches s against the Kanban columns ignoring case.
func ParseIssueStatus(s string) (IssueStatus, error) {
	for _, st := range issueStatuses {
		if strings.EqualFold(string(st), strings.TrimSpace(s)) {
			return st, nil
		}
	}
	return "", errors.Wrap(ErrUnknownIssueStatus, s)
}

func (s IssueStatus) Valid() bool {
	return slices.Contains(issueStatuses, s)
}
