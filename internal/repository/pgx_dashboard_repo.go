package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/yakoovad/flowboard/internal/db"
	"github.com/yakoovad/flowboard/internal/model"
)

// AssigneeCounts aggregates the active issues assigned to one user.
type AssigneeCounts struct {
	Open      int
	DueSoon   int
	Completed int
}

type DashboardRepository interface {
	// CountAssigned counts open, due-by and completed issues. Issues of
	// deleted projects are ignored.
	CountAssigned(ctx context.Context, userID int64, dueBy time.Time) (AssigneeCounts, error)
	CountProjects(ctx context.Context, userID int64) (int, error)
	// RecentOpen returns the newest non-Done issues assigned to the user.
	RecentOpen(ctx context.Context, userID int64, limit int) ([]*IssueView, error)
}

type pgxDashboardRepository struct {
	pool *pgxpool.Pool
}

func NewPgxDashboardRepository(pool *pgxpool.Pool) DashboardRepository {
	return &pgxDashboardRepository{pool: pool}
}

func (p *pgxDashboardRepository) CountAssigned(ctx context.Context, userID int64, dueBy time.Time) (AssigneeCounts, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	done := string(model.IssueStatusDone)
	q := psql.Select(
		sm.Columns(
			psql.Raw("count(*) FILTER (WHERE issue.status <> ?)", done),
			psql.Raw("count(*) FILTER (WHERE issue.status <> ? AND issue.due_date <= ?)", done, dueBy),
			psql.Raw("count(*) FILTER (WHERE issue.status = ?)", done),
		),
		sm.From("issue"),
		sm.InnerJoin("project").On(
			psql.Quote("project", "id").EQ(psql.Quote("issue", "project_id")),
			active("project"),
		),
		sm.Where(psql.Quote("issue", "assignee_id").EQ(psql.Arg(userID))),
		sm.Where(active("issue")),
	)

	var c AssigneeCounts

	sql, args, err := q.Build(ctx)
	if err != nil {
		return c, errors.Wrap(err, "build assignee counts")
	}

	if err = e.QueryRow(ctx, sql, args...).Scan(&c.Open, &c.DueSoon, &c.Completed); err != nil {
		return c, err
	}
	return c, nil
}

func (p *pgxDashboardRepository) CountProjects(ctx context.Context, userID int64) (int, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("count(DISTINCT project.id)"),
		sm.From("project"),
		sm.InnerJoin("team").On(psql.Quote("team", "id").EQ(psql.Quote("project", "team_id"))),
		sm.InnerJoin("team_member").On(psql.Quote("team_member", "team_id").EQ(psql.Quote("team", "id"))),
		sm.Where(psql.Quote("team_member", "user_id").EQ(psql.Arg(userID))),
		sm.Where(active("project")),
		sm.Where(active("team")),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "build project count")
	}

	var n int
	if err = e.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *pgxDashboardRepository) RecentOpen(ctx context.Context, userID int64, limit int) ([]*IssueView, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := viewQuery(
		sm.Where(psql.Quote("issue", "assignee_id").EQ(psql.Arg(userID))),
		sm.Where(psql.Quote("issue", "status").NE(psql.Arg(model.IssueStatusDone))),
		sm.OrderBy(psql.Quote("issue", "created_at")).Desc(),
		sm.OrderBy(psql.Quote("issue", "id")).Desc(),
		sm.Limit(limit),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "build recent tasks query")
	}

	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*IssueView, error) {
		return scanIssueView(row)
	})
}
