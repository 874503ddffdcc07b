package service

import (
	"context"

	"github.com/pkg/errors"
	"github.com/yakoovad/flowboard/internal/authz"
	"github.com/yakoovad/flowboard/internal/db"
	"github.com/yakoovad/flowboard/internal/model"
	"github.com/yakoovad/flowboard/internal/repository"
	"github.com/yakoovad/flowboard/pkg/logger"
	"go.uber.org/zap"
)

type TeamService struct {
	tx    db.Transactor
	guard *authz.Guard

	users repository.UserRepository
	teams repository.TeamRepository
}

func NewTeamService(tx db.Transactor) *TeamService {
	return &TeamService{
		tx:    tx,
		guard: authz.NewGuard(),
	}
}

// CreateTeam makes the lead the first member and promotes them to TeamLead.
func (t *TeamService) CreateTeam(ctx context.Context, dto *model.TeamCreate, actor model.Actor) (*model.Team, *Error) {
	l := logger.FromContext(ctx)
	l.Info("creating team", zap.String("team_name", dto.Name), zap.Int64("lead_id", dto.LeadID))

	res := t.guard.CanPerform(actor, authz.ActionTeamCreate, authz.Resource{Team: authz.TeamFacts{LeadID: dto.LeadID}})
	if !res.Allowed() {
		l.Warn("team create denied", zap.Int64("actor_id", actor.UserID), zap.Stringer("reason", res.Reason))
		return nil, NewError(ErrorCodeForbidden, "only the team lead can create the team")
	}

	var team *model.Team
	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		lead, err := t.users.Get(txCtx, dto.LeadID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			l.Warn("team lead not found", zap.Int64("lead_id", dto.LeadID))
			return NewError(ErrorCodeBadRequest, "team lead not found")
		case err != nil:
			l.Error("failed to get team lead", zap.Int64("lead_id", dto.LeadID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get team lead")
		}

		row := &repository.Team{Name: dto.Name, LeadID: lead.ID}
		if err = t.teams.Create(txCtx, row); err != nil {
			l.Error("failed to create team", zap.String("team_name", dto.Name), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to create team")
		}

		if lead.Role != model.RoleTeamLead {
			role := model.RoleTeamLead
			if lead, err = t.users.Patch(txCtx, &repository.UserPatch{ID: lead.ID, Role: &role}); err != nil {
				l.Error("failed to promote team lead", zap.Int64("lead_id", dto.LeadID), zap.Error(err))
				return NewError(ErrorCodeUnspecified, "failed to promote team lead")
			}
		}

		if err = t.teams.AddMember(txCtx, row.ID, lead.ID); err != nil {
			l.Error("failed to add team lead as member", zap.Int64("team_id", row.ID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to add team lead as member")
		}

		summary := toUserSummary(lead)
		team = &model.Team{
			ID:      row.ID,
			Name:    row.Name,
			LeadID:  lead.ID,
			Lead:    summary,
			Members: []*model.UserSummary{summary},
		}

		l.Debug("team created", zap.Int64("team_id", row.ID))
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "failed to create team")
	}

	return team, nil
}

func (t *TeamService) AddMember(ctx context.Context, teamID, userID int64, actor model.Actor) (*model.Team, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("team_id", teamID), zap.Int64("user_id", userID))
	l.Info("adding team member")

	var team *model.Team
	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		row, serr := t.authorize(txCtx, teamID, actor, authz.ActionTeamManageMembers)
		if serr != nil {
			return serr
		}

		_, err := t.users.Get(txCtx, userID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			l.Warn("user not found")
			return NewError(ErrorCodeNotFound, "user not found")
		case err != nil:
			l.Error("failed to get user", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get user")
		}

		if err = t.teams.AddMember(txCtx, teamID, userID); err != nil {
			l.Error("failed to add team member", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to add team member")
		}

		if team, err = t.assemble(txCtx, row); err != nil {
			l.Error("failed to load team", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to load team")
		}
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "failed to add team member")
	}

	return team, nil
}

// RemoveMember refuses to remove the lead no matter who asks.
func (t *TeamService) RemoveMember(ctx context.Context, teamID, userID int64, actor model.Actor) (*model.Team, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("team_id", teamID), zap.Int64("user_id", userID))
	l.Info("removing team member")

	var team *model.Team
	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		row, serr := t.getTeam(txCtx, teamID)
		if serr != nil {
			return serr
		}

		if row.LeadID == userID {
			l.Warn("attempt to remove team lead")
			return NewError(ErrorCodeBadRequest, "the team lead cannot be removed from the team")
		}

		res := t.guard.CanPerform(actor, authz.ActionTeamManageMembers, authz.Resource{Team: authz.TeamFacts{LeadID: row.LeadID}})
		if !res.Allowed() {
			l.Warn("member removal denied", zap.Int64("actor_id", actor.UserID), zap.Stringer("reason", res.Reason))
			return NewError(ErrorCodeForbidden, "only the team lead can remove members")
		}

		err := t.teams.RemoveMember(txCtx, teamID, userID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			l.Error("failed to remove team member", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to remove team member")
		}

		if team, err = t.assemble(txCtx, row); err != nil {
			l.Error("failed to load team", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to load team")
		}
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "failed to remove team member")
	}

	return team, nil
}

func (t *TeamService) UpdateTeam(ctx context.Context, teamID int64, dto *model.TeamUpdate, actor model.Actor) (*model.Team, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("team_id", teamID))
	l.Info("updating team", zap.String("team_name", dto.Name))

	var team *model.Team
	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		if _, serr := t.authorize(txCtx, teamID, actor, authz.ActionTeamUpdate); serr != nil {
			return serr
		}

		row, err := t.teams.Patch(txCtx, &repository.TeamPatch{ID: teamID, Name: &dto.Name})
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return NewError(ErrorCodeNotFound, "team not found")
		case err != nil:
			l.Error("failed to update team", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to update team")
		}

		if team, err = t.assemble(txCtx, row); err != nil {
			l.Error("failed to load team", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to load team")
		}
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "failed to update team")
	}

	return team, nil
}

func (t *TeamService) DeleteTeam(ctx context.Context, teamID int64, actor model.Actor) *Error {
	l := logger.FromContext(ctx).With(zap.Int64("team_id", teamID))
	l.Info("deleting team")

	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		if _, serr := t.authorize(txCtx, teamID, actor, authz.ActionTeamDelete); serr != nil {
			return serr
		}

		err := t.teams.SoftDelete(txCtx, teamID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return NewError(ErrorCodeNotFound, "team not found")
		case err != nil:
			l.Error("failed to delete team", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to delete team")
		}
		return nil
	})

	return asServiceError(err, "failed to delete team")
}

func (t *TeamService) GetTeamsForUser(ctx context.Context, userID int64) ([]*model.Team, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("user_id", userID))
	l.Debug("getting user teams")

	rows, err := t.teams.ListForUser(ctx, userID)
	if err != nil {
		l.Error("failed to list user teams", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get teams")
	}

	teams := make([]*model.Team, 0, len(rows))
	for _, row := range rows {
		team, err := t.assemble(ctx, row)
		if err != nil {
			l.Error("failed to load team", zap.Int64("team_id", row.ID), zap.Error(err))
			return nil, NewError(ErrorCodeUnspecified, "failed to get teams")
		}
		teams = append(teams, team)
	}

	return teams, nil
}

func (t *TeamService) GetTeamById(ctx context.Context, teamID int64) (*model.Team, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("team_id", teamID))
	l.Debug("getting team")

	row, serr := t.getTeam(ctx, teamID)
	if serr != nil {
		return nil, serr
	}

	team, err := t.assemble(ctx, row)
	if err != nil {
		l.Error("failed to load team", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get team")
	}

	return team, nil
}

func (t *TeamService) getTeam(ctx context.Context, teamID int64) (*repository.Team, *Error) {
	row, err := t.teams.Get(ctx, teamID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		logger.FromContext(ctx).Warn("team not found", zap.Int64("team_id", teamID))
		return nil, NewError(ErrorCodeNotFound, "team not found")
	case err != nil:
		logger.FromContext(ctx).Error("failed to get team", zap.Int64("team_id", teamID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get team")
	}
	return row, nil
}

// authorize loads the team and checks a lead-only action on it.
func (t *TeamService) authorize(ctx context.Context, teamID int64, actor model.Actor, action authz.Action) (*repository.Team, *Error) {
	row, serr := t.getTeam(ctx, teamID)
	if serr != nil {
		return nil, serr
	}

	res := t.guard.CanPerform(actor, action, authz.Resource{Team: authz.TeamFacts{LeadID: row.LeadID}})
	if !res.Allowed() {
		logger.FromContext(ctx).Warn("team action denied",
			zap.Int64("team_id", teamID),
			zap.Int64("actor_id", actor.UserID),
			zap.String("action", string(action)),
			zap.Stringer("reason", res.Reason))
		return nil, NewError(ErrorCodeForbidden, "only the team lead can manage the team")
	}
	return row, nil
}

// assemble attaches the lead and member summaries to a team row.
func (t *TeamService) assemble(ctx context.Context, row *repository.Team) (*model.Team, error) {
	members, err := t.teams.GetTeamMembers(ctx, row.ID)
	if err != nil {
		return nil, err
	}

	team := &model.Team{
		ID:      row.ID,
		Name:    row.Name,
		LeadID:  row.LeadID,
		Members: make([]*model.UserSummary, 0, len(members)),
	}
	for _, m := range members {
		s := toUserSummary(m)
		if m.ID == row.LeadID {
			team.Lead = s
		}
		team.Members = append(team.Members, s)
	}

	if team.Lead == nil {
		lead, err := t.users.Get(ctx, row.LeadID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		if lead != nil {
			team.Lead = toUserSummary(lead)
		}
	}

	return team, nil
}

func (t *TeamService) WithUserRepo(r repository.UserRepository) *TeamService {
	t.users = r
	return t
}

func (t *TeamService) WithTeamRepo(r repository.TeamRepository) *TeamService {
	t.teams = r
	return t
}
