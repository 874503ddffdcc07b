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

type Issue struct {
	ID             int64             `db:"id"`
	Title          string            `db:"title"`
	Description    *string           `db:"description"`
	Status         model.IssueStatus `db:"status"`
	Position       int               `db:"position"`
	DueDate        *time.Time        `db:"due_date"`
	EstimatedHours *int              `db:"estimated_hours"`
	ProjectID      int64             `db:"project_id"`
	AssigneeID     *int64            `db:"assignee_id"`
	ReporterID     int64             `db:"reporter_id"`
	CompletedAt    *time.Time        `db:"completed_at"`
	IsDeleted      bool              `db:"is_deleted"`
	CreatedAt      time.Time         `db:"created_at"`
}

// IssueView is an issue joined with its project name and the active
// users behind assignee_id and reporter_id.
type IssueView struct {
	Issue
	ProjectName string
	Assignee    *UserRef
	Reporter    *UserRef
}

type UserRef struct {
	ID        int64
	FirstName string
	LastName  string
	Email     string
	AvatarURL *string
}

var issueColumns = []string{
	"id", "title", "description", "status", "position", "due_date", "estimated_hours",
	"project_id", "assignee_id", "reporter_id", "completed_at", "is_deleted", "created_at",
}

var userRefColumns = []string{"id", "first_name", "last_name", "email", "avatar_url"}

type IssueRepository interface {
	Create(ctx context.Context, issue *Issue) error
	Get(ctx context.Context, issueID int64) (*Issue, error)
	GetView(ctx context.Context, issueID int64) (*IssueView, error)
	Find(ctx context.Context, filter model.IssueFilter) ([]*IssueView, error)
	// Update overwrites the mutable fields: title, description, assignee,
	// due date and estimated hours.
	Update(ctx context.Context, issue *Issue) error
	SetStatus(ctx context.Context, issueID int64, status model.IssueStatus, completedAt *time.Time) error
	SoftDelete(ctx context.Context, issueID int64) error

	CountInColumn(ctx context.Context, projectID int64, status model.IssueStatus) (int, error)
	// ColumnIDs lists the active issues of one Kanban column in display order.
	ColumnIDs(ctx context.Context, projectID int64, status model.IssueStatus) ([]int64, error)
	// Reposition writes position i to ids[i].
	Reposition(ctx context.Context, ids []int64) error
}

type pgxIssueRepository struct {
	pool *pgxpool.Pool
}

func NewPgxIssueRepository(pool *pgxpool.Pool) IssueRepository {
	return &pgxIssueRepository{pool: pool}
}

func scanIssue(row pgx.Row) (*Issue, error) {
	i := &Issue{}
	err := row.Scan(issueDest(i)...)
	return i, err
}

func issueDest(i *Issue) []any {
	return []any{
		&i.ID,
		&i.Title,
		&i.Description,
		&i.Status,
		&i.Position,
		&i.DueDate,
		&i.EstimatedHours,
		&i.ProjectID,
		&i.AssigneeID,
		&i.ReporterID,
		&i.CompletedAt,
		&i.IsDeleted,
		&i.CreatedAt,
	}
}

type nullableUserRef struct {
	id        *int64
	firstName *string
	lastName  *string
	email     *string
	avatarURL *string
}

func (n *nullableUserRef) dest() []any {
	return []any{&n.id, &n.firstName, &n.lastName, &n.email, &n.avatarURL}
}

func (n *nullableUserRef) ref() *UserRef {
	if n.id == nil {
		return nil
	}
	return &UserRef{
		ID:        *n.id,
		FirstName: deref(n.firstName),
		LastName:  deref(n.lastName),
		Email:     deref(n.email),
		AvatarURL: n.avatarURL,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func scanIssueView(row pgx.Row) (*IssueView, error) {
	v := &IssueView{}
	var assignee, reporter nullableUserRef

	dest := issueDest(&v.Issue)
	dest = append(dest, &v.ProjectName)
	dest = append(dest, assignee.dest()...)
	dest = append(dest, reporter.dest()...)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	v.Assignee = assignee.ref()
	v.Reporter = reporter.ref()
	return v, nil
}

// viewQuery selects IssueView rows of active issues in active projects.
func viewQuery(mods ...bob.Mod[*dialect.SelectQuery]) bob.BaseQuery[*dialect.SelectQuery] {
	cols := columns("issue", issueColumns...)
	cols = append(cols, "project.name")
	cols = append(cols, columns("assignee", userRefColumns...)...)
	cols = append(cols, columns("reporter", userRefColumns...)...)

	q := psql.Select(
		sm.Columns(cols...),
		sm.From("issue"),
		sm.InnerJoin("project").On(
			psql.Quote("project", "id").EQ(psql.Quote("issue", "project_id")),
			active("project"),
		),
		sm.LeftJoin("users").As("assignee").On(
			psql.Quote("assignee", "id").EQ(psql.Quote("issue", "assignee_id")),
			active("assignee"),
		),
		sm.LeftJoin("users").As("reporter").On(
			psql.Quote("reporter", "id").EQ(psql.Quote("issue", "reporter_id")),
			active("reporter"),
		),
		sm.Where(active("issue")),
	)
	q.Apply(mods...)
	return q
}

func (p *pgxIssueRepository) Create(ctx context.Context, issue *Issue) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("issue", "title", "description", "status", "position", "due_date", "estimated_hours",
			"project_id", "assignee_id", "reporter_id"),
		im.Values(
			psql.Arg(issue.Title),
			psql.Arg(issue.Description),
			psql.Arg(issue.Status),
			psql.Arg(issue.Position),
			psql.Arg(issue.DueDate),
			psql.Arg(issue.EstimatedHours),
			psql.Arg(issue.ProjectID),
			psql.Arg(issue.AssigneeID),
			psql.Arg(issue.ReporterID),
		),
		im.Returning("id", "created_at"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return errors.Wrap(err, "build issue insert")
	}

	if err = e.QueryRow(ctx, sql, args...).Scan(&issue.ID, &issue.CreatedAt); err != nil {
		return translatePgError(err)
	}
	return nil
}

func (p *pgxIssueRepository) Get(ctx context.Context, issueID int64) (*Issue, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(columns("issue", issueColumns...)...),
		sm.From("issue"),
		sm.Where(psql.Quote("issue", "id").EQ(psql.Arg(issueID))),
		sm.Where(active("issue")),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "build issue query")
	}

	issue, err := scanIssue(e.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return issue, nil
}

func (p *pgxIssueRepository) GetView(ctx context.Context, issueID int64) (*IssueView, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := viewQuery(sm.Where(psql.Quote("issue", "id").EQ(psql.Arg(issueID))))

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "build issue view query")
	}

	v, err := scanIssueView(e.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

func (p *pgxIssueRepository) Find(ctx context.Context, filter model.IssueFilter) ([]*IssueView, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	mods := make([]bob.Mod[*dialect.SelectQuery], 0, 5)
	if filter.ProjectID != nil {
		mods = append(mods, sm.Where(psql.Quote("issue", "project_id").EQ(psql.Arg(*filter.ProjectID))))
	}
	if filter.AssigneeID != nil {
		mods = append(mods, sm.Where(psql.Quote("issue", "assignee_id").EQ(psql.Arg(*filter.AssigneeID))))
	}
	if filter.Status != nil {
		mods = append(mods, sm.Where(psql.Quote("issue", "status").EQ(psql.Arg(*filter.Status))))
	}
	if filter.Title != "" {
		mods = append(mods, sm.Where(psql.Raw("issue.title ILIKE ?", containsPattern(filter.Title))))
	}
	mods = append(mods,
		sm.OrderBy(psql.Quote("issue", "project_id")),
		sm.OrderBy(psql.Quote("issue", "status")),
		sm.OrderBy(psql.Quote("issue", "position")),
		sm.OrderBy(psql.Quote("issue", "id")),
	)

	sql, args, err := viewQuery(mods...).Build(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "build issue filter query")
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

func (p *pgxIssueRepository) Update(ctx context.Context, issue *Issue) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Update(
		um.Table("issue"),
		um.SetCol("title").ToArg(issue.Title),
		um.SetCol("description").ToArg(issue.Description),
		um.SetCol("assignee_id").ToArg(issue.AssigneeID),
		um.SetCol("due_date").ToArg(issue.DueDate),
		um.SetCol("estimated_hours").ToArg(issue.EstimatedHours),
		um.Where(psql.Quote("id").EQ(psql.Arg(issue.ID))),
		um.Where(active("issue")),
	)

	return execOne(ctx, e, q, "issue update")
}

func (p *pgxIssueRepository) SetStatus(ctx context.Context, issueID int64, status model.IssueStatus, completedAt *time.Time) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Update(
		um.Table("issue"),
		um.SetCol("status").ToArg(status),
		um.SetCol("completed_at").ToArg(completedAt),
		um.Where(psql.Quote("id").EQ(psql.Arg(issueID))),
		um.Where(active("issue")),
	)

	return execOne(ctx, e, q, "issue status update")
}

func (p *pgxIssueRepository) SoftDelete(ctx context.Context, issueID int64) error {
	return softDelete(ctx, db.GetPgxExecutorFromContext(ctx, p.pool), "issue", issueID)
}

func (p *pgxIssueRepository) CountInColumn(ctx context.Context, projectID int64, status model.IssueStatus) (int, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("count(*)"),
		sm.From("issue"),
		sm.Where(columnFilter(projectID, status)),
		sm.Where(active("issue")),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "build column count")
	}

	var n int
	if err = e.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *pgxIssueRepository) ColumnIDs(ctx context.Context, projectID int64, status model.IssueStatus) ([]int64, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("id"),
		sm.From("issue"),
		sm.Where(columnFilter(projectID, status)),
		sm.Where(active("issue")),
		sm.OrderBy(psql.Quote("position")),
		sm.OrderBy(psql.Quote("id")),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "build column query")
	}

	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (p *pgxIssueRepository) Reposition(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	batch := &pgx.Batch{}
	for pos, id := range ids {
		q := psql.Update(
			um.Table("issue"),
			um.SetCol("position").ToArg(pos),
			um.Where(psql.Quote("id").EQ(psql.Arg(id))),
		)

		sql, args, err := q.Build(ctx)
		if err != nil {
			return errors.Wrap(err, "build reposition")
		}
		batch.Queue(sql, args...)
	}

	br := e.SendBatch(ctx, batch)
	defer br.Close()

	for range ids {
		if _, err := br.Exec(); err != nil {
			return errors.Wrap(err, "reposition issues")
		}
	}
	return br.Close()
}

func columnFilter(projectID int64, status model.IssueStatus) bob.Expression {
	return psql.Quote("project_id").EQ(psql.Arg(projectID)).
		And(psql.Quote("status").EQ(psql.Arg(status)))
}

func execOne(ctx context.Context, e db.Executor, q bob.Query, what string) error {
	sql, args, err := bob.Build(ctx, q)
	if err != nil {
		return errors.Wrapf(err, "build %s", what)
	}

	commandTag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return translatePgError(err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
