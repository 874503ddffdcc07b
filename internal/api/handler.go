package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/yakoovad/flowboard/internal/auth"
	"github.com/yakoovad/flowboard/internal/model"
	"github.com/yakoovad/flowboard/internal/service"
	"go.uber.org/zap"
)

const actorKey = "actor"

type Handler struct {
	team      *service.TeamService
	project   *service.ProjectService
	issue     *service.IssueService
	user      *service.UserService
	dashboard *service.DashboardService

	tokens        *auth.Tokens
	healthChecker HealthChecker
	origins       []string

	logger *zap.Logger
}

func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

func (h *Handler) WithHealthChecker(c HealthChecker) *Handler {
	h.healthChecker = c
	return h
}

func (h *Handler) WithTokens(tokens *auth.Tokens) *Handler {
	h.tokens = tokens
	return h
}

func (h *Handler) WithAllowedOrigins(origins ...string) *Handler {
	h.origins = origins
	return h
}

func (h *Handler) WithTeamService(team *service.TeamService) *Handler {
	h.team = team
	return h
}

func (h *Handler) WithProjectService(project *service.ProjectService) *Handler {
	h.project = project
	return h
}

func (h *Handler) WithIssueService(issue *service.IssueService) *Handler {
	h.issue = issue
	return h
}

func (h *Handler) WithUserService(user *service.UserService) *Handler {
	h.user = user
	return h
}

func (h *Handler) WithDashboardService(dashboard *service.DashboardService) *Handler {
	h.dashboard = dashboard
	return h
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.Validator = NewValidator()
	e.Use(middleware.RequestID())
	e.Use(ZapLoggerMiddleware(h.logger))
	e.Use(middleware.Recover())

	cors := middleware.DefaultCORSConfig
	if len(h.origins) > 0 {
		cors.AllowOrigins = h.origins
	}
	e.Use(middleware.CORSWithConfig(cors))

	if h.healthChecker != nil {
		e.GET("/health", h.healthChecker.HealthCheck())
	}

	public := e.Group("/auth")
	public.POST("/register", h.Register)
	public.POST("/forgot-password", h.RequestPasswordReset)
	public.POST("/reset-password", h.ResetPassword)

	secured := e.Group("", AuthMiddleware(h.tokens))

	secured.GET("/users", h.GetAllUsers)
	secured.GET("/users/search", h.SearchUsers)
	secured.PUT("/users/role", h.ChangeUserRole)
	secured.GET("/users/me", h.GetProfile)
	secured.PUT("/users/me", h.UpdateProfile)
	secured.PUT("/users/me/password", h.ChangePassword)
	secured.GET("/users/me/stats", h.GetStats)
	secured.GET("/users/me/tasks", h.GetOpenTasks)
	secured.GET("/users/:id", h.GetUserById)

	secured.POST("/teams", h.CreateTeam)
	secured.GET("/teams", h.GetTeamsForUser)
	secured.GET("/teams/:id", h.GetTeamById)
	secured.PUT("/teams/:id", h.UpdateTeam)
	secured.DELETE("/teams/:id", h.DeleteTeam)
	secured.POST("/teams/:id/members", h.AddMember)
	secured.DELETE("/teams/:id/members/:user_id", h.RemoveMember)

	secured.POST("/projects", h.CreateProject)
	secured.GET("/projects", h.GetProjectsForUser)
	secured.GET("/projects/search", h.SearchProjectsByName)
	secured.GET("/projects/:id", h.GetProjectById)
	secured.PUT("/projects/:id", h.UpdateProject)
	secured.POST("/projects/:id/cancel", h.CancelProject)
	secured.DELETE("/projects/:id", h.DeleteProject)
	secured.GET("/projects/:id/issues", h.GetIssuesByProjectId)

	secured.POST("/issues", h.CreateIssue)
	secured.GET("/issues", h.FilterIssues)
	secured.GET("/issues/:id", h.GetIssueById)
	secured.PUT("/issues/:id", h.UpdateIssue)
	secured.PATCH("/issues/:id/move", h.MoveIssue)
	secured.DELETE("/issues/:id", h.DeleteIssue)
}

func actorFrom(e echo.Context) model.Actor {
	actor, _ := e.Get(actorKey).(model.Actor)
	return actor
}

func (h *Handler) pathID(e echo.Context, name string) (int64, *service.Error) {
	id, err := strconv.ParseInt(e.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, service.NewError(service.ErrorCodeInvalidBody, "invalid "+name)
	}
	return id, nil
}

func (h *Handler) decodeRequest(e echo.Context, req any) *service.Error {
	if err := e.Bind(req); err != nil {
		return service.NewError(service.ErrorCodeInvalidBody, "invalid request body")
	}

	if err := e.Validate(req); err != nil {
		return service.NewError(service.ErrorCodeInvalidBody, errors.Wrap(err, "request validation failed").Error())
	}
	return nil
}

func (h *Handler) transportError(e echo.Context, err *service.Error) error {
	response := struct {
		Error *service.Error `json:"error"`
	}{Error: err}

	switch err.Code {
	case service.ErrorCodeNotFound:
		return e.JSON(http.StatusNotFound, response)
	case service.ErrorCodeForbidden:
		return e.JSON(http.StatusForbidden, response)
	case service.ErrorCodeBadRequest, service.ErrorCodeInvalidBody:
		return e.JSON(http.StatusBadRequest, response)
	case service.ErrorCodeConflict:
		return e.JSON(http.StatusConflict, response)
	case service.ErrorCodeUnprocessableEntity:
		return e.JSON(http.StatusUnprocessableEntity, response)
	default:
		return e.JSON(http.StatusInternalServerError, response)
	}
}
