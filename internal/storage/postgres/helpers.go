package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type dbQueryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func pick(pool *pgxpool.Pool, tx pgx.Tx) dbQueryer {
	if tx != nil {
		return tx
	}
	return pool
}

// inTx runs fn in tx when one is open, otherwise in a new transaction.
func inTx(ctx context.Context, pool *pgxpool.Pool, tx pgx.Tx, fn func(pgx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	return pgx.BeginFunc(ctx, pool, fn)
}

// constraintViolation returns the violated constraint name when err is a
// Postgres error with the given SQLSTATE.
func constraintViolation(err error, code string) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != code {
		return "", false
	}
	return pgErr.ConstraintName, true
}

func isUniqueViolation(err error, constraint string) bool {
	name, ok := constraintViolation(err, pgerrcode.UniqueViolation)
	return ok && (constraint == "" || name == constraint)
}

func isForeignKeyViolation(err error) bool {
	_, ok := constraintViolation(err, pgerrcode.ForeignKeyViolation)
	return ok
}
