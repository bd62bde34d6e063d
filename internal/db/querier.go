package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of *pgxpool.Pool the repositories use. pgxmock pools satisfy it too.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxQuerier is a Querier that can also open transactions.
type TxQuerier interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	checkViolation      = "23514"
)

// IsUniqueViolation reports a unique constraint failure, optionally on a specific constraint.
func IsUniqueViolation(err error, constraint string) bool {
	return pgCode(err, uniqueViolation, constraint)
}

func IsForeignKeyViolation(err error) bool {
	return pgCode(err, foreignKeyViolation, "")
}

func IsCheckViolation(err error) bool {
	return pgCode(err, checkViolation, "")
}

func pgCode(err error, code, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != code {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
