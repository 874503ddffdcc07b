package repository

import (
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dialect"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// active is the default view: soft-deleted rows never leave the store
// unless a query opts out explicitly.
func active(table string) dialect.Expression {
	return psql.Quote(table, "is_deleted").EQ(psql.Arg(false))
}

// containsPattern builds an ILIKE pattern matching term anywhere.
func containsPattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return ErrAlreadyExists
		case pgForeignKeyViolation:
			return ErrNotFound
		}
	}
	return err
}

func columns(table string, names ...string) []any {
	cols := make([]any, 0, len(names))
	for _, n := range names {
		cols = append(cols, table+"."+n)
	}
	return cols
}
