package service

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/yakoovad/flowboard/internal/authz"
	"github.com/yakoovad/flowboard/internal/db"
	"github.com/yakoovad/flowboard/internal/model"
	"github.com/yakoovad/flowboard/internal/repository"
	"github.com/yakoovad/flowboard/pkg/logger"
	"go.uber.org/zap"
)

type ProjectService struct {
	tx    db.Transactor
	guard *authz.Guard

	teams    repository.TeamRepository
	projects repository.ProjectRepository
}

func NewProjectService(tx db.Transactor) *ProjectService {
	return &ProjectService{
		tx:    tx,
		guard: authz.NewGuard(),
	}
}

func (p *ProjectService) CreateProject(ctx context.Context, dto *model.ProjectCreate, actor model.Actor) (*model.Project, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("team_id", dto.TeamID))
	l.Info("creating project", zap.String("project_name", dto.Name))

	var project *model.Project
	err := p.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		team, err := p.teams.Get(txCtx, dto.TeamID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			l.Warn("team not found")
			return NewError(ErrorCodeNotFound, "team not found")
		case err != nil:
			l.Error("failed to get team", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get team")
		}

		res := p.guard.CanPerform(actor, authz.ActionProjectCreate, authz.Resource{Team: authz.TeamFacts{LeadID: team.LeadID}})
		if !res.Allowed() {
			l.Warn("project create denied", zap.Int64("actor_id", actor.UserID), zap.Stringer("reason", res.Reason))
			return NewError(ErrorCodeForbidden, "only the team lead can create projects")
		}

		row := &repository.Project{
			Name:        dto.Name,
			Description: dto.Description,
			TeamID:      team.ID,
			Status:      model.ProjectStatusActive,
		}
		if err = p.projects.Create(txCtx, row); err != nil {
			l.Error("failed to create project", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to create project")
		}

		project = toProject(row, model.IssueTally{})
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "failed to create project")
	}

	return project, nil
}

func (p *ProjectService) UpdateProject(ctx context.Context, projectID int64, dto *model.ProjectUpdate, actor model.Actor) (*model.Project, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("project_id", projectID))
	l.Info("updating project")

	return p.patch(ctx, projectID, actor, authz.ActionProjectUpdate, &repository.ProjectPatch{
		ID:          projectID,
		Name:        &dto.Name,
		Description: dto.Description,
	})
}

// CancelProject is terminal: derivation never overrides Cancelled.
func (p *ProjectService) CancelProject(ctx context.Context, projectID int64, actor model.Actor) (*model.Project, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("project_id", projectID))
	l.Info("cancelling project")

	status := model.ProjectStatusCancelled
	return p.patch(ctx, projectID, actor, authz.ActionProjectCancel, &repository.ProjectPatch{
		ID:     projectID,
		Status: &status,
	})
}

func (p *ProjectService) patch(ctx context.Context, projectID int64, actor model.Actor, action authz.Action, patch *repository.ProjectPatch) (*model.Project, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("project_id", projectID))

	var project *model.Project
	err := p.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		if _, serr := p.authorize(txCtx, projectID, actor, action); serr != nil {
			return serr
		}

		row, err := p.projects.Patch(txCtx, patch)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return NewError(ErrorCodeNotFound, "project not found")
		case err != nil:
			l.Error("failed to update project", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to update project")
		}

		if project, err = p.derive(txCtx, row); err != nil {
			l.Error("failed to derive project status", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to update project")
		}
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "failed to update project")
	}

	return project, nil
}

func (p *ProjectService) DeleteProject(ctx context.Context, projectID int64, actor model.Actor) *Error {
	l := logger.FromContext(ctx).With(zap.Int64("project_id", projectID))
	l.Info("deleting project")

	err := p.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		if _, serr := p.authorize(txCtx, projectID, actor, authz.ActionProjectDelete); serr != nil {
			return serr
		}

		err := p.projects.SoftDelete(txCtx, projectID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return NewError(ErrorCodeNotFound, "project not found")
		case err != nil:
			l.Error("failed to delete project", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to delete project")
		}
		return nil
	})

	return asServiceError(err, "failed to delete project")
}

func (p *ProjectService) GetProjectById(ctx context.Context, projectID int64, actor model.Actor) (*model.Project, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("project_id", projectID))
	l.Debug("getting project")

	row, team, serr := p.load(ctx, projectID)
	if serr != nil {
		return nil, serr
	}

	member, err := p.teams.IsMember(ctx, team.ID, actor.UserID)
	if err != nil {
		l.Error("failed to check team membership", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get project")
	}

	res := p.guard.CanPerform(actor, authz.ActionProjectView, authz.Resource{
		Team: authz.TeamFacts{LeadID: team.LeadID, ActorIsMember: member},
	})
	if !res.Allowed() {
		l.Warn("project view denied", zap.Int64("actor_id", actor.UserID), zap.Stringer("reason", res.Reason))
		return nil, NewError(ErrorCodeForbidden, "only team members can view the project")
	}

	project, err := p.derive(ctx, row)
	if err != nil {
		l.Error("failed to derive project status", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get project")
	}

	return project, nil
}

func (p *ProjectService) GetProjectsForUser(ctx context.Context, userID int64) ([]*model.Project, *Error) {
	return p.list(ctx, userID, "")
}

func (p *ProjectService) SearchProjectsByName(ctx context.Context, term string, userID int64) ([]*model.Project, *Error) {
	return p.list(ctx, userID, strings.TrimSpace(term))
}

func (p *ProjectService) list(ctx context.Context, userID int64, term string) ([]*model.Project, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("user_id", userID))
	l.Debug("listing projects", zap.String("term", term))

	rows, err := p.projects.ListForUser(ctx, userID, term)
	if err != nil {
		l.Error("failed to list projects", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get projects")
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	tallies, err := p.projects.IssueTallies(ctx, ids)
	if err != nil {
		l.Error("failed to count project issues", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get projects")
	}

	projects := make([]*model.Project, 0, len(rows))
	for _, row := range rows {
		projects = append(projects, toProject(row, tallies[row.ID]))
	}

	return projects, nil
}

// load returns the project with its owning team. A project whose team was
// deleted is reported as missing.
func (p *ProjectService) load(ctx context.Context, projectID int64) (*repository.Project, *repository.Team, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("project_id", projectID))

	row, err := p.projects.Get(ctx, projectID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		l.Warn("project not found")
		return nil, nil, NewError(ErrorCodeNotFound, "project not found")
	case err != nil:
		l.Error("failed to get project", zap.Error(err))
		return nil, nil, NewError(ErrorCodeUnspecified, "failed to get project")
	}

	team, err := p.teams.Get(ctx, row.TeamID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		l.Warn("project team not found", zap.Int64("team_id", row.TeamID))
		return nil, nil, NewError(ErrorCodeNotFound, "project not found")
	case err != nil:
		l.Error("failed to get project team", zap.Error(err))
		return nil, nil, NewError(ErrorCodeUnspecified, "failed to get project")
	}

	return row, team, nil
}

func (p *ProjectService) authorize(ctx context.Context, projectID int64, actor model.Actor, action authz.Action) (*repository.Project, *Error) {
	row, team, serr := p.load(ctx, projectID)
	if serr != nil {
		return nil, serr
	}

	res := p.guard.CanPerform(actor, action, authz.Resource{Team: authz.TeamFacts{LeadID: team.LeadID}})
	if !res.Allowed() {
		logger.FromContext(ctx).Warn("project action denied",
			zap.Int64("project_id", projectID),
			zap.Int64("actor_id", actor.UserID),
			zap.String("action", string(action)),
			zap.Stringer("reason", res.Reason))
		return nil, NewError(ErrorCodeForbidden, "only the team lead can manage the project")
	}
	return row, nil
}

func (p *ProjectService) derive(ctx context.Context, row *repository.Project) (*model.Project, error) {
	tallies, err := p.projects.IssueTallies(ctx, []int64{row.ID})
	if err != nil {
		return nil, err
	}
	return toProject(row, tallies[row.ID]), nil
}

func (p *ProjectService) WithTeamRepo(r repository.TeamRepository) *ProjectService {
	p.teams = r
	return p
}

func (p *ProjectService) WithProjectRepo(r repository.ProjectRepository) *ProjectService {
	p.projects = r
	return p
}
