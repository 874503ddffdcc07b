package service

import (
	"context"
	"time"

	"github.com/yakoovad/flowboard/internal/model"
	"github.com/yakoovad/flowboard/internal/repository"
	"github.com/yakoovad/flowboard/pkg/logger"
	"go.uber.org/zap"
)

const (
	dueSoonWindow   = 7 * 24 * time.Hour
	recentTaskLimit = 5
)

type DashboardService struct {
	now func() time.Time

	dashboard repository.DashboardRepository
}

func NewDashboardService() *DashboardService {
	return &DashboardService{now: time.Now}
}

// GetStats counts the user's assigned work. Due-soon includes overdue
// issues.
func (d *DashboardService) GetStats(ctx context.Context, userID int64) (*model.DashboardStats, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("user_id", userID))
	l.Debug("getting dashboard stats")

	counts, err := d.dashboard.CountAssigned(ctx, userID, d.now().Add(dueSoonWindow))
	if err != nil {
		l.Error("failed to count assigned issues", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get dashboard stats")
	}

	projects, err := d.dashboard.CountProjects(ctx, userID)
	if err != nil {
		l.Error("failed to count projects", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get dashboard stats")
	}

	return &model.DashboardStats{
		AssignedOpenCount: counts.Open,
		DueSoonCount:      counts.DueSoon,
		CompletedCount:    counts.Completed,
		ProjectsCount:     projects,
	}, nil
}

func (d *DashboardService) GetOpenTasks(ctx context.Context, userID int64) ([]*model.DashboardTask, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("user_id", userID))
	l.Debug("getting open tasks")

	views, err := d.dashboard.RecentOpen(ctx, userID, recentTaskLimit)
	if err != nil {
		l.Error("failed to get open tasks", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get open tasks")
	}

	tasks := make([]*model.DashboardTask, 0, len(views))
	for _, v := range views {
		tasks = append(tasks, &model.DashboardTask{
			ID:          v.ID,
			Title:       v.Title,
			ProjectID:   v.ProjectID,
			ProjectName: v.ProjectName,
			Status:      v.Status,
		})
	}

	return tasks, nil
}

func (d *DashboardService) WithDashboardRepo(r repository.DashboardRepository) *DashboardService {
	d.dashboard = r
	return d
}

func (d *DashboardService) WithClock(now func() time.Time) *DashboardService {
	d.now = now
	return d
}
