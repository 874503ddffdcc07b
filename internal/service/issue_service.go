package service

import (
	"context"
	"slices"
	"time"

	"github.com/pkg/errors"
	"github.com/yakoovad/flowboard/internal/authz"
	"github.com/yakoovad/flowboard/internal/db"
	"github.com/yakoovad/flowboard/internal/model"
	"github.com/yakoovad/flowboard/internal/repository"
	"github.com/yakoovad/flowboard/pkg/logger"
	"go.uber.org/zap"
)

// IssueService keeps every Kanban column of a project densely ordered
// 0..n-1. Column mutations lock the project row first, so concurrent
// writers on one project are serialized.
type IssueService struct {
	tx    db.Transactor
	guard *authz.Guard
	now   func() time.Time

	teams    repository.TeamRepository
	projects repository.ProjectRepository
	issues   repository.IssueRepository
}

func NewIssueService(tx db.Transactor) *IssueService {
	return &IssueService{
		tx:    tx,
		guard: authz.NewGuard(),
		now:   time.Now,
	}
}

// CreateIssue appends a ToDo issue to the bottom of its column.
func (s *IssueService) CreateIssue(ctx context.Context, dto *model.IssueCreate, reporter model.Actor) (*model.Issue, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("project_id", dto.ProjectID))
	l.Info("creating issue", zap.Int64("reporter_id", reporter.UserID))

	var issue *model.Issue
	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		err := s.projects.Lock(txCtx, dto.ProjectID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			l.Warn("project not found")
			return NewError(ErrorCodeBadRequest, "project not found")
		case err != nil:
			l.Error("failed to lock project", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to create issue")
		}

		n, err := s.issues.CountInColumn(txCtx, dto.ProjectID, model.IssueStatusToDo)
		if err != nil {
			l.Error("failed to count column", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to create issue")
		}

		row := &repository.Issue{
			Title:          dto.Title,
			Description:    dto.Description,
			Status:         model.IssueStatusToDo,
			Position:       n,
			DueDate:        dto.DueDate,
			EstimatedHours: dto.EstimatedHours,
			ProjectID:      dto.ProjectID,
			AssigneeID:     dto.AssigneeID,
			ReporterID:     reporter.UserID,
		}
		err = s.issues.Create(txCtx, row)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			l.Warn("issue references a missing user", zap.Error(err))
			return NewError(ErrorCodeBadRequest, "assignee or reporter not found")
		case err != nil:
			l.Error("failed to create issue", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to create issue")
		}

		if issue, err = s.view(txCtx, row.ID); err != nil {
			l.Error("failed to load issue", zap.Int64("issue_id", row.ID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to create issue")
		}

		l.Debug("issue created", zap.Int64("issue_id", row.ID), zap.Int("order", n))
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "failed to create issue")
	}

	return issue, nil
}

func (s *IssueService) UpdateIssue(ctx context.Context, issueID int64, dto *model.IssueUpdate, actor model.Actor) (*model.Issue, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("issue_id", issueID))
	l.Info("updating issue")

	var issue *model.Issue
	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		row, serr := s.authorize(txCtx, issueID, actor, authz.ActionIssueUpdate)
		if serr != nil {
			return serr
		}

		row.Title = dto.Title
		row.Description = dto.Description
		row.AssigneeID = dto.AssigneeID
		row.DueDate = dto.DueDate
		row.EstimatedHours = dto.EstimatedHours

		err := s.issues.Update(txCtx, row)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			l.Warn("issue update references a missing row", zap.Error(err))
			return NewError(ErrorCodeBadRequest, "assignee not found")
		case err != nil:
			l.Error("failed to update issue", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to update issue")
		}

		if issue, err = s.view(txCtx, issueID); err != nil {
			l.Error("failed to load issue", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to update issue")
		}
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "failed to update issue")
	}

	return issue, nil
}

// MoveIssue places the issue at move.NewOrder in the destination column,
// clamped to the column bounds, and renumbers the affected columns.
func (s *IssueService) MoveIssue(ctx context.Context, issueID int64, move *model.IssueMove, actor model.Actor) (*model.Issue, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("issue_id", issueID))
	l.Info("moving issue", zap.String("status", string(move.NewStatus)), zap.Int("order", move.NewOrder))

	if !move.NewStatus.Valid() {
		l.Warn("unknown issue status", zap.String("status", string(move.NewStatus)))
		return nil, NewError(ErrorCodeBadRequest, "unknown issue status")
	}

	var issue *model.Issue
	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		row, serr := s.authorize(txCtx, issueID, actor, authz.ActionIssueMove)
		if serr != nil {
			return serr
		}

		if serr = s.lock(txCtx, row.ProjectID); serr != nil {
			return serr
		}

		// Re-read under the lock: a concurrent move may have changed the column.
		row, err := s.issues.Get(txCtx, issueID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return NewError(ErrorCodeNotFound, "issue not found")
		case err != nil:
			l.Error("failed to get issue", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to move issue")
		}

		if err = s.relocate(txCtx, row, move.NewStatus, move.NewOrder); err != nil {
			l.Error("failed to reorder columns", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to move issue")
		}

		if issue, err = s.view(txCtx, issueID); err != nil {
			l.Error("failed to load issue", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to move issue")
		}
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "failed to move issue")
	}

	return issue, nil
}

func (s *IssueService) relocate(ctx context.Context, row *repository.Issue, status model.IssueStatus, order int) error {
	src, err := s.issues.ColumnIDs(ctx, row.ProjectID, row.Status)
	if err != nil {
		return err
	}
	src = slices.DeleteFunc(src, func(id int64) bool { return id == row.ID })

	dst := src
	if status != row.Status {
		if dst, err = s.issues.ColumnIDs(ctx, row.ProjectID, status); err != nil {
			return err
		}
	}

	order = min(max(order, 0), len(dst))
	dst = slices.Insert(dst, order, row.ID)

	if status != row.Status {
		completedAt := row.CompletedAt
		switch {
		case status == model.IssueStatusDone:
			now := s.now()
			completedAt = &now
		case row.Status == model.IssueStatusDone:
			completedAt = nil
		}

		if err = s.issues.SetStatus(ctx, row.ID, status, completedAt); err != nil {
			return err
		}
		if err = s.issues.Reposition(ctx, src); err != nil {
			return err
		}
	}

	return s.issues.Reposition(ctx, dst)
}

func (s *IssueService) DeleteIssue(ctx context.Context, issueID int64, actor model.Actor) *Error {
	l := logger.FromContext(ctx).With(zap.Int64("issue_id", issueID))
	l.Info("deleting issue")

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		row, serr := s.authorize(txCtx, issueID, actor, authz.ActionIssueDelete)
		if serr != nil {
			return serr
		}

		if serr = s.lock(txCtx, row.ProjectID); serr != nil {
			return serr
		}

		err := s.issues.SoftDelete(txCtx, issueID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return NewError(ErrorCodeNotFound, "issue not found")
		case err != nil:
			l.Error("failed to delete issue", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to delete issue")
		}

		ids, err := s.issues.ColumnIDs(txCtx, row.ProjectID, row.Status)
		if err == nil {
			err = s.issues.Reposition(txCtx, ids)
		}
		if err != nil {
			l.Error("failed to reorder column", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to delete issue")
		}
		return nil
	})

	return asServiceError(err, "failed to delete issue")
}

func (s *IssueService) FilterIssues(ctx context.Context, filter model.IssueFilter) ([]*model.Issue, *Error) {
	l := logger.FromContext(ctx)
	l.Debug("filtering issues", zap.Any("filter", filter))

	views, err := s.issues.Find(ctx, filter)
	if err != nil {
		l.Error("failed to filter issues", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get issues")
	}

	return toIssues(views), nil
}

func (s *IssueService) GetIssueById(ctx context.Context, issueID int64) (*model.Issue, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("issue_id", issueID))
	l.Debug("getting issue")

	issue, err := s.view(ctx, issueID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		l.Warn("issue not found")
		return nil, NewError(ErrorCodeNotFound, "issue not found")
	case err != nil:
		l.Error("failed to get issue", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get issue")
	}

	return issue, nil
}

func (s *IssueService) GetIssuesByProjectId(ctx context.Context, projectID int64) ([]*model.Issue, *Error) {
	return s.FilterIssues(ctx, model.IssueFilter{ProjectID: &projectID})
}

func (s *IssueService) view(ctx context.Context, issueID int64) (*model.Issue, error) {
	v, err := s.issues.GetView(ctx, issueID)
	if err != nil {
		return nil, err
	}
	return toIssue(v), nil
}

func (s *IssueService) lock(ctx context.Context, projectID int64) *Error {
	err := s.projects.Lock(ctx, projectID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return NewError(ErrorCodeUnprocessableEntity, "issue project is missing")
	case err != nil:
		logger.FromContext(ctx).Error("failed to lock project", zap.Int64("project_id", projectID), zap.Error(err))
		return NewError(ErrorCodeUnspecified, "failed to lock project")
	}
	return nil
}

// authorize loads the issue and the facts of its owning team. A broken
// issue→project→team chain is UNPROCESSABLE_ENTITY.
func (s *IssueService) authorize(ctx context.Context, issueID int64, actor model.Actor, action authz.Action) (*repository.Issue, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("issue_id", issueID))

	row, err := s.issues.Get(ctx, issueID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		l.Warn("issue not found")
		return nil, NewError(ErrorCodeNotFound, "issue not found")
	case err != nil:
		l.Error("failed to get issue", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get issue")
	}

	project, err := s.projects.Get(ctx, row.ProjectID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		l.Warn("issue project is missing", zap.Int64("project_id", row.ProjectID))
		return nil, NewError(ErrorCodeUnprocessableEntity, "issue project is missing")
	case err != nil:
		l.Error("failed to get issue project", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get issue project")
	}

	team, err := s.teams.Get(ctx, project.TeamID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		l.Warn("issue team is missing", zap.Int64("team_id", project.TeamID))
		return nil, NewError(ErrorCodeUnprocessableEntity, "issue team is missing")
	case err != nil:
		l.Error("failed to get issue team", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get issue team")
	}

	res := s.guard.CanPerform(actor, action, authz.Resource{
		Team:  authz.TeamFacts{LeadID: team.LeadID},
		Issue: &authz.IssueFacts{ReporterID: row.ReporterID, AssigneeID: row.AssigneeID},
	})
	if !res.Allowed() {
		l.Warn("issue action denied",
			zap.Int64("actor_id", actor.UserID),
			zap.String("action", string(action)),
			zap.Stringer("reason", res.Reason))
		return nil, NewError(ErrorCodeForbidden, res.Reason.String())
	}

	return row, nil
}

func (s *IssueService) WithTeamRepo(r repository.TeamRepository) *IssueService {
	s.teams = r
	return s
}

func (s *IssueService) WithProjectRepo(r repository.ProjectRepository) *IssueService {
	s.projects = r
	return s
}

func (s *IssueService) WithIssueRepo(r repository.IssueRepository) *IssueService {
	s.issues = r
	return s
}

// WithClock replaces the time source used for completion timestamps.
func (s *IssueService) WithClock(now func() time.Time) *IssueService {
	s.now = now
	return s
}
