package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/yakoovad/flowboard/internal/model"
	"github.com/yakoovad/flowboard/pkg/logger"
	"go.uber.org/zap"
)

func (h *Handler) CreateTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req model.TeamCreate
	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	l.Info("creating team", zap.String("team_name", req.Name), zap.Int64("lead_id", req.LeadID))

	team, err := h.team.CreateTeam(e.Request().Context(), &req, actorFrom(e))
	if err != nil {
		l.Error("failed to create team", zap.String("team_name", req.Name), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, team)
}

func (h *Handler) GetTeamsForUser(e echo.Context) error {
	actor := actorFrom(e)

	teams, err := h.team.GetTeamsForUser(e.Request().Context(), actor.UserID)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, teams)
}

func (h *Handler) GetTeamById(e echo.Context) error {
	teamID, err := h.pathID(e, "id")
	if err != nil {
		return h.transportError(e, err)
	}

	team, err := h.team.GetTeamById(e.Request().Context(), teamID)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}

func (h *Handler) UpdateTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID, err := h.pathID(e, "id")
	if err != nil {
		return h.transportError(e, err)
	}

	var req model.TeamUpdate
	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	team, err := h.team.UpdateTeam(e.Request().Context(), teamID, &req, actorFrom(e))
	if err != nil {
		l.Error("failed to update team", zap.Int64("team_id", teamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}

func (h *Handler) DeleteTeam(e echo.Context) error {
	teamID, err := h.pathID(e, "id")
	if err != nil {
		return h.transportError(e, err)
	}

	if err := h.team.DeleteTeam(e.Request().Context(), teamID, actorFrom(e)); err != nil {
		logger.FromContext(e.Request().Context()).Error("failed to delete team", zap.Int64("team_id", teamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.NoContent(http.StatusNoContent)
}

func (h *Handler) AddMember(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID, err := h.pathID(e, "id")
	if err != nil {
		return h.transportError(e, err)
	}

	var req struct {
		UserID int64 `json:"user_id" validate:"required"`
	}
	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	l.Info("adding team member", zap.Int64("team_id", teamID), zap.Int64("user_id", req.UserID))

	team, err := h.team.AddMember(e.Request().Context(), teamID, req.UserID, actorFrom(e))
	if err != nil {
		l.Error("failed to add team member", zap.Int64("team_id", teamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}

func (h *Handler) RemoveMember(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID, err := h.pathID(e, "id")
	if err != nil {
		return h.transportError(e, err)
	}
	userID, err := h.pathID(e, "user_id")
	if err != nil {
		return h.transportError(e, err)
	}

	l.Info("removing team member", zap.Int64("team_id", teamID), zap.Int64("user_id", userID))

	team, err := h.team.RemoveMember(e.Request().Context(), teamID, userID, actorFrom(e))
	if err != nil {
		l.Error("failed to remove team member", zap.Int64("team_id", teamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}
