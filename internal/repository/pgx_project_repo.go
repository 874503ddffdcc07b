package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dialect"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"
	"github.com/yakoovad/flowboard/internal/db"
	"github.com/yakoovad/flowboard/internal/model"
)

type Project struct {
	ID          int64               `db:"id"`
	Name        string              `db:"name"`
	Description *string             `db:"description"`
	TeamID      int64               `db:"team_id"`
	Status      model.ProjectStatus `db:"status"`
	IsDeleted   bool                `db:"is_deleted"`
	CreatedAt   time.Time           `db:"created_at"`
}

// ProjectPatch has no team field: a project never changes owner.
type ProjectPatch struct {
	ID          int64                `db:"id"`
	Name        *string              `db:"name"`
	Description *string              `db:"description"`
	Status      *model.ProjectStatus `db:"status"`
}

var projectColumns = []string{"id", "name", "description", "team_id", "status", "is_deleted", "created_at"}

type ProjectRepository interface {
	Create(ctx context.Context, project *Project) error
	Get(ctx context.Context, projectID int64) (*Project, error)
	Patch(ctx context.Context, patch *ProjectPatch) (*Project, error)
	SoftDelete(ctx context.Context, projectID int64) error
	// ListForUser returns the active projects of the user's active teams,
	// optionally narrowed by a case-insensitive name substring.
	ListForUser(ctx context.Context, userID int64, nameTerm string) ([]*Project, error)
	IssueTallies(ctx context.Context, projectIDs []int64) (map[int64]model.IssueTally, error)
	// Lock takes a row lock on the project for the rest of the transaction.
	// Every Kanban column mutation of the project serializes on it.
	Lock(ctx context.Context, projectID int64) error
}

type pgxProjectRepository struct {
	pool *pgxpool.Pool
}

func NewPgxProjectRepository(pool *pgxpool.Pool) ProjectRepository {
	return &pgxProjectRepository{pool: pool}
}

func scanProject(row pgx.Row) (*Project, error) {
	p := &Project{}
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.TeamID, &p.Status, &p.IsDeleted, &p.CreatedAt)
	return p, err
}

func (p *pgxProjectRepository) Create(ctx context.Context, project *Project) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("project", "name", "description", "team_id", "status"),
		im.Values(psql.Arg(project.Name), psql.Arg(project.Description), psql.Arg(project.TeamID), psql.Arg(project.Status)),
		im.Returning("id", "created_at"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return errors.Wrap(err, "build project insert")
	}

	if err = e.QueryRow(ctx, sql, args...).Scan(&project.ID, &project.CreatedAt); err != nil {
		return translatePgError(err)
	}
	return nil
}

func (p *pgxProjectRepository) Get(ctx context.Context, projectID int64) (*Project, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(columns("project", projectColumns...)...),
		sm.From("project"),
		sm.Where(psql.Quote("project", "id").EQ(psql.Arg(projectID))),
		sm.Where(active("project")),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "build project query")
	}

	project, err := scanProject(e.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return project, nil
}

func (p *pgxProjectRepository) Patch(ctx context.Context, patch *ProjectPatch) (*Project, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	sets := make([]bob.Mod[*dialect.UpdateQuery], 0, 3)
	if patch.Name != nil {
		sets = append(sets, um.SetCol("name").ToArg(*patch.Name))
	}
	if patch.Description != nil {
		sets = append(sets, um.SetCol("description").ToArg(*patch.Description))
	}
	if patch.Status != nil {
		sets = append(sets, um.SetCol("status").ToArg(*patch.Status))
	}

	if len(sets) == 0 {
		return p.Get(ctx, patch.ID)
	}

	q := psql.Update(
		um.Table("project"),
		um.Where(psql.Quote("id").EQ(psql.Arg(patch.ID))),
		um.Where(active("project")),
		um.Returning(columns("project", projectColumns...)...),
	)

	q.Apply(sets...)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "build project update")
	}

	project, err := scanProject(e.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return project, nil
}

func (p *pgxProjectRepository) SoftDelete(ctx context.Context, projectID int64) error {
	return softDelete(ctx, db.GetPgxExecutorFromContext(ctx, p.pool), "project", projectID)
}

func (p *pgxProjectRepository) ListForUser(ctx context.Context, userID int64, nameTerm string) ([]*Project, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(columns("project", projectColumns...)...),
		sm.From("project"),
		sm.InnerJoin("team").On(psql.Quote("team", "id").EQ(psql.Quote("project", "team_id"))),
		sm.InnerJoin("team_member").On(psql.Quote("team_member", "team_id").EQ(psql.Quote("team", "id"))),
		sm.Where(psql.Quote("team_member", "user_id").EQ(psql.Arg(userID))),
		sm.Where(active("project")),
		sm.Where(active("team")),
		sm.OrderBy(psql.Quote("project", "id")),
	)
	if nameTerm != "" {
		q.Apply(sm.Where(psql.Raw("project.name ILIKE ?", containsPattern(nameTerm))))
	}

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "build user projects query")
	}

	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Project, error) {
		return scanProject(row)
	})
}

func (p *pgxProjectRepository) IssueTallies(ctx context.Context, projectIDs []int64) (map[int64]model.IssueTally, error) {
	tallies := make(map[int64]model.IssueTally, len(projectIDs))
	if len(projectIDs) == 0 {
		return tallies, nil
	}

	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	ids := make([]bob.Expression, 0, len(projectIDs))
	for _, id := range projectIDs {
		ids = append(ids, psql.Arg(id))
	}

	q := psql.Select(
		sm.Columns("issue.project_id", "count(*)", "count(*) FILTER (WHERE issue.status = 'Done')"),
		sm.From("issue"),
		sm.Where(psql.Quote("issue", "project_id").In(ids...)),
		sm.Where(active("issue")),
		sm.GroupBy(psql.Quote("issue", "project_id")),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "build issue tally query")
	}

	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    int64
			tally model.IssueTally
		)
		if err = rows.Scan(&id, &tally.Total, &tally.Done); err != nil {
			return nil, err
		}
		tallies[id] = tally
	}

	return tallies, rows.Err()
}

func (p *pgxProjectRepository) Lock(ctx context.Context, projectID int64) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("id"),
		sm.From("project"),
		sm.Where(psql.Quote("id").EQ(psql.Arg(projectID))),
		sm.Where(active("project")),
		sm.ForUpdate("project"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return errors.Wrap(err, "build project lock")
	}

	var id int64
	if err = e.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
