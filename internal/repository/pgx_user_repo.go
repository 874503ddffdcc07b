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

type User struct {
	ID           int64      `db:"id"`
	Username     string     `db:"username"`
	Email        string     `db:"email"`
	PasswordHash string     `db:"password_hash"`
	FirstName    string     `db:"first_name"`
	LastName     string     `db:"last_name"`
	Role         model.Role `db:"role"`
	AvatarURL    *string    `db:"avatar_url"`
	IsDeleted    bool       `db:"is_deleted"`
	ResetToken   *string    `db:"password_reset_token"`
	ResetExpiry  *time.Time `db:"password_reset_expiry"`
	CreatedAt    time.Time  `db:"created_at"`
}

type UserPatch struct {
	ID           int64       `db:"id"`
	Username     *string     `db:"username"`
	Email        *string     `db:"email"`
	PasswordHash *string     `db:"password_hash"`
	FirstName    *string     `db:"first_name"`
	LastName     *string     `db:"last_name"`
	Role         *model.Role `db:"role"`
	AvatarURL    *string     `db:"avatar_url"`
	ResetToken   *string     `db:"password_reset_token"`
	ResetExpiry  *time.Time  `db:"password_reset_expiry"`

	// ClearResetToken nulls the reset token and its expiry.
	ClearResetToken bool
}

var userColumns = []string{
	"id", "username", "email", "password_hash", "first_name", "last_name", "role",
	"avatar_url", "is_deleted", "password_reset_token", "password_reset_expiry", "created_at",
}

type UserRepository interface {
	Create(ctx context.Context, user *User) error
	Get(ctx context.Context, userID int64) (*User, error)
	// GetByEmail expects an already lower-cased email.
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByResetToken(ctx context.Context, token string, now time.Time) (*User, error)
	Patch(ctx context.Context, patch *UserPatch) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Search(ctx context.Context, term string) ([]*User, error)
}

type pgxUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgxUserRepository(pool *pgxpool.Pool) UserRepository {
	return &pgxUserRepository{pool: pool}
}

func scanUser(row pgx.Row) (*User, error) {
	u := &User{}
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Role,
		&u.AvatarURL,
		&u.IsDeleted,
		&u.ResetToken,
		&u.ResetExpiry,
		&u.CreatedAt,
	)
	return u, err
}

func (p *pgxUserRepository) Create(ctx context.Context, user *User) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("users", "username", "email", "password_hash", "first_name", "last_name", "role", "avatar_url"),
		im.Values(
			psql.Arg(user.Username),
			psql.Arg(user.Email),
			psql.Arg(user.PasswordHash),
			psql.Arg(user.FirstName),
			psql.Arg(user.LastName),
			psql.Arg(user.Role),
			psql.Arg(user.AvatarURL),
		),
		im.Returning("id", "created_at"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return errors.Wrap(err, "build user insert")
	}

	if err = e.QueryRow(ctx, sql, args...).Scan(&user.ID, &user.CreatedAt); err != nil {
		return translatePgError(err)
	}
	return nil
}

func (p *pgxUserRepository) Get(ctx context.Context, userID int64) (*User, error) {
	return p.getOne(ctx, psql.Quote("users", "id").EQ(psql.Arg(userID)))
}

func (p *pgxUserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return p.getOne(ctx, psql.Raw("lower(users.email) = ?", email))
}

func (p *pgxUserRepository) GetByResetToken(ctx context.Context, token string, now time.Time) (*User, error) {
	return p.getOne(ctx,
		psql.Quote("users", "password_reset_token").EQ(psql.Arg(token)).
			And(psql.Quote("users", "password_reset_expiry").GT(psql.Arg(now))),
	)
}

func (p *pgxUserRepository) getOne(ctx context.Context, where bob.Expression) (*User, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(columns("users", userColumns...)...),
		sm.From("users"),
		sm.Where(where),
		sm.Where(active("users")),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "build user query")
	}

	u, err := scanUser(e.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (p *pgxUserRepository) Patch(ctx context.Context, patch *UserPatch) (*User, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	sets := make([]bob.Mod[*dialect.UpdateQuery], 0, 10)
	if patch.Username != nil {
		sets = append(sets, um.SetCol("username").ToArg(*patch.Username))
	}
	if patch.Email != nil {
		sets = append(sets, um.SetCol("email").ToArg(*patch.Email))
	}
	if patch.PasswordHash != nil {
		sets = append(sets, um.SetCol("password_hash").ToArg(*patch.PasswordHash))
	}
	if patch.FirstName != nil {
		sets = append(sets, um.SetCol("first_name").ToArg(*patch.FirstName))
	}
	if patch.LastName != nil {
		sets = append(sets, um.SetCol("last_name").ToArg(*patch.LastName))
	}
	if patch.Role != nil {
		sets = append(sets, um.SetCol("role").ToArg(*patch.Role))
	}
	if patch.AvatarURL != nil {
		sets = append(sets, um.SetCol("avatar_url").ToArg(*patch.AvatarURL))
	}
	switch {
	case patch.ClearResetToken:
		sets = append(sets,
			um.SetCol("password_reset_token").ToArg(nil),
			um.SetCol("password_reset_expiry").ToArg(nil),
		)
	case patch.ResetToken != nil:
		sets = append(sets,
			um.SetCol("password_reset_token").ToArg(*patch.ResetToken),
			um.SetCol("password_reset_expiry").ToArg(patch.ResetExpiry),
		)
	}

	if len(sets) == 0 {
		return p.Get(ctx, patch.ID)
	}

	q := psql.Update(
		um.Table("users"),
		um.Where(psql.Quote("id").EQ(psql.Arg(patch.ID))),
		um.Where(active("users")),
		um.Returning(columns("users", userColumns...)...),
	)

	q.Apply(sets...)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "build user update")
	}

	u, err := scanUser(e.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, translatePgError(err)
	}
	return u, nil
}

func (p *pgxUserRepository) List(ctx context.Context) ([]*User, error) {
	return p.list(ctx)
}

func (p *pgxUserRepository) Search(ctx context.Context, term string) ([]*User, error) {
	pattern := containsPattern(term)
	return p.list(ctx, sm.Where(psql.Raw(
		"(users.first_name || ' ' || users.last_name ILIKE ? OR users.username ILIKE ? OR users.email ILIKE ?)",
		pattern, pattern, pattern,
	)))
}

func (p *pgxUserRepository) list(ctx context.Context, mods ...bob.Mod[*dialect.SelectQuery]) ([]*User, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(columns("users", userColumns...)...),
		sm.From("users"),
		sm.Where(active("users")),
		sm.OrderBy(psql.Quote("users", "id")),
	)
	q.Apply(mods...)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "build user list")
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
