package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/yakoovad/flowboard/internal/model"
	"github.com/yakoovad/flowboard/internal/service"
	"github.com/yakoovad/flowboard/pkg/logger"
	"go.uber.org/zap"
)

func (h *Handler) CreateIssue(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req model.IssueCreate
	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	l.Info("creating issue", zap.String("title", req.Title), zap.Int64("project_id", req.ProjectID))

	issue, err := h.issue.CreateIssue(e.Request().Context(), &req, actorFrom(e))
	if err != nil {
		l.Error("failed to create issue", zap.Int64("project_id", req.ProjectID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, issue)
}

func (h *Handler) UpdateIssue(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	issueID, err := h.pathID(e, "id")
	if err != nil {
		return h.transportError(e, err)
	}

	var req model.IssueUpdate
	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	issue, err := h.issue.UpdateIssue(e.Request().Context(), issueID, &req, actorFrom(e))
	if err != nil {
		l.Error("failed to update issue", zap.Int64("issue_id", issueID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, issue)
}

func (h *Handler) MoveIssue(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	issueID, err := h.pathID(e, "id")
	if err != nil {
		return h.transportError(e, err)
	}

	var req model.IssueMove
	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	// Column names are accepted in any case; unknown ones are left for the
	// service to reject.
	if status, perr := model.ParseIssueStatus(string(req.NewStatus)); perr == nil {
		req.NewStatus = status
	}

	l.Info("moving issue",
		zap.Int64("issue_id", issueID),
		zap.String("status", string(req.NewStatus)),
		zap.Int("order", req.NewOrder))

	issue, err := h.issue.MoveIssue(e.Request().Context(), issueID, &req, actorFrom(e))
	if err != nil {
		l.Error("failed to move issue", zap.Int64("issue_id", issueID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, issue)
}

func (h *Handler) DeleteIssue(e echo.Context) error {
	issueID, err := h.pathID(e, "id")
	if err != nil {
		return h.transportError(e, err)
	}

	if err := h.issue.DeleteIssue(e.Request().Context(), issueID, actorFrom(e)); err != nil {
		logger.FromContext(e.Request().Context()).Error("failed to delete issue", zap.Int64("issue_id", issueID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.NoContent(http.StatusNoContent)
}

func (h *Handler) FilterIssues(e echo.Context) error {
	var filter model.IssueFilter
	if err := ProcessRequest(e, &filter, filterProject, filterAssignee, filterStatus, filterTitle); err != nil {
		return h.transportError(e, service.NewError(service.ErrorCodeInvalidBody, err.Error()))
	}

	issues, err := h.issue.FilterIssues(e.Request().Context(), filter)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, issues)
}

func (h *Handler) GetIssueById(e echo.Context) error {
	issueID, err := h.pathID(e, "id")
	if err != nil {
		return h.transportError(e, err)
	}

	issue, err := h.issue.GetIssueById(e.Request().Context(), issueID)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, issue)
}

func (h *Handler) GetIssuesByProjectId(e echo.Context) error {
	projectID, err := h.pathID(e, "id")
	if err != nil {
		return h.transportError(e, err)
	}

	issues, err := h.issue.GetIssuesByProjectId(e.Request().Context(), projectID)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, issues)
}
