package service

import (
	"strings"

	"github.com/yakoovad/flowboard/internal/model"
	"github.com/yakoovad/flowboard/internal/repository"
)

func fullName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

func toUser(u *repository.User) *model.User {
	return &model.User{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
		AvatarURL: u.AvatarURL,
		CreatedAt: u.CreatedAt,
	}
}

func toUsers(rows []*repository.User) []*model.User {
	users := make([]*model.User, 0, len(rows))
	for _, u := range rows {
		users = append(users, toUser(u))
	}
	return users
}

func toUserSummary(u *repository.User) *model.UserSummary {
	return &model.UserSummary{
		ID:        u.ID,
		FullName:  fullName(u.FirstName, u.LastName),
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
	}
}

func refSummary(r *repository.UserRef) *model.UserSummary {
	if r == nil {
		return nil
	}
	return &model.UserSummary{
		ID:        r.ID,
		FullName:  fullName(r.FirstName, r.LastName),
		Email:     r.Email,
		AvatarURL: r.AvatarURL,
	}
}

func toIssue(v *repository.IssueView) *model.Issue {
	return &model.Issue{
		ID:             v.ID,
		Title:          v.Title,
		Description:    v.Description,
		Status:         v.Status,
		Order:          v.Position,
		DueDate:        v.DueDate,
		EstimatedHours: v.EstimatedHours,
		ProjectID:      v.ProjectID,
		ProjectName:    v.ProjectName,
		Assignee:       refSummary(v.Assignee),
		Reporter:       refSummary(v.Reporter),
		CompletedAt:    v.CompletedAt,
		CreatedAt:      v.CreatedAt,
	}
}

func toIssues(views []*repository.IssueView) []*model.Issue {
	issues := make([]*model.Issue, 0, len(views))
	for _, v := range views {
		issues = append(issues, toIssue(v))
	}
	return issues
}

// toProject applies status derivation; every project read goes through it.
func toProject(p *repository.Project, tally model.IssueTally) *model.Project {
	return &model.Project{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		TeamID:      p.TeamID,
		Status:      model.DeriveProjectStatus(p.Status, tally),
		CreatedAt:   p.CreatedAt,
	}
}
