package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/yakoovad/flowboard/internal/api"
	"github.com/yakoovad/flowboard/internal/auth"
	"github.com/yakoovad/flowboard/internal/config"
	"github.com/yakoovad/flowboard/internal/db"
	"github.com/yakoovad/flowboard/internal/notify"
	"github.com/yakoovad/flowboard/internal/repository"
	"github.com/yakoovad/flowboard/internal/service"
	"github.com/yakoovad/flowboard/pkg/logger"
	"go.uber.org/zap"
)

const version = "v0.1.0"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		panic(err)
	}

	logger, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("starting application", zap.String("version", version))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err = pool.Ping(ctx); err != nil {
		logger.Fatal("failed to ping database", zap.Error(err))
	}

	logger.Info("database connection established")

	transactor := db.NewPgxTransactor(pool)

	userRepo := repository.NewPgxUserRepository(pool)
	teamRepo := repository.NewPgxTeamRepository(pool)
	projectRepo := repository.NewPgxProjectRepository(pool)
	issueRepo := repository.NewPgxIssueRepository(pool)
	dashboardRepo := repository.NewPgxDashboardRepository(pool)

	team := service.NewTeamService(transactor).WithUserRepo(userRepo).WithTeamRepo(teamRepo)
	project := service.NewProjectService(transactor).WithTeamRepo(teamRepo).WithProjectRepo(projectRepo)
	issue := service.NewIssueService(transactor).WithTeamRepo(teamRepo).WithProjectRepo(projectRepo).WithIssueRepo(issueRepo)
	dashboard := service.NewDashboardService().WithDashboardRepo(dashboardRepo)
	user := service.NewUserService(transactor).
		WithUserRepo(userRepo).
		WithMailer(notify.NewLogMailer("noreply@flowboard.local")).
		WithResetTTL(cfg.ResetTokenTTL).
		WithFrontendURL(cfg.FrontendURL)

	healthChecker, err := api.NewHealthChecker(version, api.PostgresCheck(pool))
	if err != nil {
		logger.Fatal("failed to create health checker", zap.Error(err))
	}

	e := echo.New()
	e.HideBanner = true

	handler := api.NewHandler(logger).
		WithTokens(auth.NewTokens(cfg.TokenSecret)).
		WithHealthChecker(healthChecker).
		WithAllowedOrigins(cfg.FrontendURL).
		WithTeamService(team).
		WithProjectService(project).
		WithIssueService(issue).
		WithUserService(user).
		WithDashboardService(dashboard)

	handler.RegisterRoutes(e)

	go func() {
		logger.Info("server starting", zap.String("addr", cfg.HTTPAddr))
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down server", zap.Error(err))
	}
	logger.Info("server stopped")
}
