package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/yakoovad/flowboard/internal/model"
	"github.com/yakoovad/flowboard/pkg/logger"
	"go.uber.org/zap"
)

func (h *Handler) CreateProject(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req model.ProjectCreate
	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	l.Info("creating project", zap.String("project_name", req.Name), zap.Int64("team_id", req.TeamID))

	project, err := h.project.CreateProject(e.Request().Context(), &req, actorFrom(e))
	if err != nil {
		l.Error("failed to create project", zap.String("project_name", req.Name), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, project)
}

func (h *Handler) GetProjectsForUser(e echo.Context) error {
	projects, err := h.project.GetProjectsForUser(e.Request().Context(), actorFrom(e).UserID)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, projects)
}

func (h *Handler) SearchProjectsByName(e echo.Context) error {
	projects, err := h.project.SearchProjectsByName(e.Request().Context(), e.QueryParam("name"), actorFrom(e).UserID)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, projects)
}

func (h *Handler) GetProjectById(e echo.Context) error {
	projectID, err := h.pathID(e, "id")
	if err != nil {
		return h.transportError(e, err)
	}

	project, err := h.project.GetProjectById(e.Request().Context(), projectID, actorFrom(e))
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, project)
}

func (h *Handler) UpdateProject(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	projectID, err := h.pathID(e, "id")
	if err != nil {
		return h.transportError(e, err)
	}

	var req model.ProjectUpdate
	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	project, err := h.project.UpdateProject(e.Request().Context(), projectID, &req, actorFrom(e))
	if err != nil {
		l.Error("failed to update project", zap.Int64("project_id", projectID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, project)
}

func (h *Handler) CancelProject(e echo.Context) error {
	projectID, err := h.pathID(e, "id")
	if err != nil {
		return h.transportError(e, err)
	}

	project, err := h.project.CancelProject(e.Request().Context(), projectID, actorFrom(e))
	if err != nil {
		logger.FromContext(e.Request().Context()).Error("failed to cancel project", zap.Int64("project_id", projectID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, project)
}

func (h *Handler) DeleteProject(e echo.Context) error {
	projectID, err := h.pathID(e, "id")
	if err != nil {
		return h.transportError(e, err)
	}

	if err := h.project.DeleteProject(e.Request().Context(), projectID, actorFrom(e)); err != nil {
		logger.FromContext(e.Request().Context()).Error("failed to delete project", zap.Int64("project_id", projectID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.NoContent(http.StatusNoContent)
}
