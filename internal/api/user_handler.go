package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/yakoovad/flowboard/internal/model"
	"github.com/yakoovad/flowboard/pkg/logger"
	"go.uber.org/zap"
)

func (h *Handler) Register(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req model.UserCreate
	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	user, err := h.user.Register(e.Request().Context(), &req)
	if err != nil {
		l.Error("failed to register user", zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, user)
}

func (h *Handler) RequestPasswordReset(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		Email string `json:"email" validate:"required,email"`
	}
	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	if err := h.user.RequestPasswordReset(e.Request().Context(), req.Email); err != nil {
		l.Error("failed to request password reset", zap.Any("error", err))
		return h.transportError(e, err)
	}

	// Unknown emails get the same answer.
	return e.NoContent(http.StatusAccepted)
}

func (h *Handler) ResetPassword(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req model.PasswordReset
	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	if err := h.user.ResetPassword(e.Request().Context(), &req); err != nil {
		l.Error("failed to reset password", zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.NoContent(http.StatusNoContent)
}

func (h *Handler) GetProfile(e echo.Context) error {
	user, err := h.user.GetProfile(e.Request().Context(), actorFrom(e).UserID)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, user)
}

func (h *Handler) GetUserById(e echo.Context) error {
	userID, err := h.pathID(e, "id")
	if err != nil {
		return h.transportError(e, err)
	}

	user, err := h.user.GetUserById(e.Request().Context(), userID)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, user)
}

func (h *Handler) UpdateProfile(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req model.UserUpdate
	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	user, err := h.user.UpdateProfile(e.Request().Context(), actorFrom(e).UserID, &req)
	if err != nil {
		l.Error("failed to update profile", zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, user)
}

func (h *Handler) ChangePassword(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req model.PasswordChange
	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	if err := h.user.ChangePassword(e.Request().Context(), actorFrom(e).UserID, &req); err != nil {
		l.Error("failed to change password", zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.NoContent(http.StatusNoContent)
}

func (h *Handler) ChangeUserRole(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req model.RoleChange
	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	l.Info("changing user role", zap.Int64("user_id", req.UserID), zap.String("role", req.NewRole))

	user, err := h.user.ChangeUserRole(e.Request().Context(), &req, actorFrom(e))
	if err != nil {
		l.Error("failed to change user role", zap.Int64("user_id", req.UserID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, user)
}

func (h *Handler) GetAllUsers(e echo.Context) error {
	users, err := h.user.GetAllUsers(e.Request().Context())
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, users)
}

func (h *Handler) SearchUsers(e echo.Context) error {
	users, err := h.user.SearchUsers(e.Request().Context(), e.QueryParam("q"))
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, users)
}
