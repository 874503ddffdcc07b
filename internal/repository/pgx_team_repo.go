package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dm"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"
	"github.com/yakoovad/flowboard/internal/db"
)

type Team struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	LeadID    int64     `db:"lead_id"`
	IsDeleted bool      `db:"is_deleted"`
	CreatedAt time.Time `db:"created_at"`
}

type TeamPatch struct {
	ID   int64   `db:"id"`
	Name *string `db:"name"`
}

var teamColumns = []string{"id", "name", "lead_id", "is_deleted", "created_at"}

// TeamRepository also owns the team_member join table.
type TeamRepository interface {
	Create(ctx context.Context, team *Team) error
	Get(ctx context.Context, teamID int64) (*Team, error)
	Patch(ctx context.Context, patch *TeamPatch) (*Team, error)
	SoftDelete(ctx context.Context, teamID int64) error
	ListForUser(ctx context.Context, userID int64) ([]*Team, error)

	AddMember(ctx context.Context, teamID, userID int64) error
	RemoveMember(ctx context.Context, teamID, userID int64) error
	IsMember(ctx context.Context, teamID, userID int64) (bool, error)
	GetTeamMembers(ctx context.Context, teamID int64) ([]*User, error)
}

type pgxTeamRepository struct {
	pool *pgxpool.Pool
}

func NewPgxTeamRepository(pool *pgxpool.Pool) TeamRepository {
	return &pgxTeamRepository{pool: pool}
}

func scanTeam(row pgx.Row) (*Team, error) {
	t := &Team{}
	err := row.Scan(&t.ID, &t.Name, &t.LeadID, &t.IsDeleted, &t.CreatedAt)
	return t, err
}

func (p *pgxTeamRepository) Create(ctx context.Context, team *Team) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("team", "name", "lead_id"),
		im.Values(psql.Arg(team.Name), psql.Arg(team.LeadID)),
		im.Returning("id", "created_at"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return errors.Wrap(err, "build team insert")
	}

	if err = e.QueryRow(ctx, sql, args...).Scan(&team.ID, &team.CreatedAt); err != nil {
		return translatePgError(err)
	}
	return nil
}

func (p *pgxTeamRepository) Get(ctx context.Context, teamID int64) (*Team, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(columns("team", teamColumns...)...),
		sm.From("team"),
		sm.Where(psql.Quote("team", "id").EQ(psql.Arg(teamID))),
		sm.Where(active("team")),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "build team query")
	}

	team, err := scanTeam(e.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return team, nil
}

func (p *pgxTeamRepository) Patch(ctx context.Context, patch *TeamPatch) (*Team, error) {
	if patch.Name == nil {
		return p.Get(ctx, patch.ID)
	}

	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Update(
		um.Table("team"),
		um.SetCol("name").ToArg(*patch.Name),
		um.Where(psql.Quote("id").EQ(psql.Arg(patch.ID))),
		um.Where(active("team")),
		um.Returning(columns("team", teamColumns...)...),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "build team update")
	}

	team, err := scanTeam(e.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return team, nil
}

func (p *pgxTeamRepository) SoftDelete(ctx context.Context, teamID int64) error {
	return softDelete(ctx, db.GetPgxExecutorFromContext(ctx, p.pool), "team", teamID)
}

func (p *pgxTeamRepository) ListForUser(ctx context.Context, userID int64) ([]*Team, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(columns("team", teamColumns...)...),
		sm.From("team"),
		sm.InnerJoin("team_member").On(psql.Quote("team_member", "team_id").EQ(psql.Quote("team", "id"))),
		sm.Where(psql.Quote("team_member", "user_id").EQ(psql.Arg(userID))),
		sm.Where(active("team")),
		sm.OrderBy(psql.Quote("team", "id")),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "build user teams query")
	}

	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Team, error) {
		return scanTeam(row)
	})
}

func (p *pgxTeamRepository) AddMember(ctx context.Context, teamID, userID int64) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("team_member", "team_id", "user_id"),
		im.Values(psql.Arg(teamID), psql.Arg(userID)),
		im.OnConflict(psql.Quote("team_id"), psql.Quote("user_id")).DoNothing(),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return errors.Wrap(err, "build member insert")
	}

	if _, err = e.Exec(ctx, sql, args...); err != nil {
		return translatePgError(err)
	}
	return nil
}

func (p *pgxTeamRepository) RemoveMember(ctx context.Context, teamID, userID int64) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("team_member"),
		dm.Where(
			psql.Quote("team_id").EQ(psql.Arg(teamID)).
				And(psql.Quote("user_id").EQ(psql.Arg(userID))),
		),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return errors.Wrap(err, "build member delete")
	}

	commandTag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}

	if commandTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *pgxTeamRepository) IsMember(ctx context.Context, teamID, userID int64) (bool, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("count(*)"),
		sm.From("team_member"),
		sm.Where(
			psql.Quote("team_id").EQ(psql.Arg(teamID)).
				And(psql.Quote("user_id").EQ(psql.Arg(userID))),
		),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return false, errors.Wrap(err, "build membership query")
	}

	var n int
	if err = e.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *pgxTeamRepository) GetTeamMembers(ctx context.Context, teamID int64) ([]*User, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(columns("users", userColumns...)...),
		sm.From("users"),
		sm.InnerJoin("team_member").On(psql.Quote("team_member", "user_id").EQ(psql.Quote("users", "id"))),
		sm.Where(psql.Quote("team_member", "team_id").EQ(psql.Arg(teamID))),
		sm.Where(active("users")),
		sm.OrderBy(psql.Quote("users", "id")),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "build team members query")
	}

	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*User, error) {
		return scanUser(row)
	})
}

// softDelete flips is_deleted on an active row of table.
func softDelete(ctx context.Context, e db.Executor, table string, id int64) error {
	q := psql.Update(
		um.Table(table),
		um.SetCol("is_deleted").ToArg(true),
		um.Where(psql.Quote("id").EQ(psql.Arg(id))),
		um.Where(active(table)),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return errors.Wrapf(err, "build %s soft delete", table)
	}

	commandTag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}

	if commandTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
