package errors

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// SQLSTATE values the engine reacts to.
const (
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"
	pgForeignKeyViolation  = "23503"
	pgInvalidTextRepr      = "22P02"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// ErrorDump is the structured form of an error chain written to logs.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

type pgDetail struct {
	code, constraint, table, column, detail, message string
}

// postgresDetail finds a Postgres error in the chain from either driver.
func postgresDetail(err error) (pgDetail, bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgDetail{pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.ColumnName, pgxErr.Detail, pgxErr.Message}, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pgDetail{string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Column, pqErr.Detail, pqErr.Message}, true
	}
	return pgDetail{}, false
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	if pg, ok := postgresDetail(err); ok {
		d.PGCode = pg.code
		d.PGConstraint = pg.constraint
		d.PGTable = pg.table
		d.PGColumn = pg.column
		d.PGDetail = pg.detail
		d.PGMessage = pg.message
	}
	return d
}

// FromDB wraps a repository error with the code a caller should see. A
// typed error passes through untouched. Lost races (serialization failures,
// deadlocks, unique violations) surface as CONFLICT so clients retry;
// rejected enum or check values are the caller's fault; everything else
// counts as the database being unavailable.
func FromDB(err error, message string) *Error {
	if err == nil {
		return nil
	}
	if te := As(err); te != nil {
		return te
	}
	return Wrap(classifyDB(err), err, message)
}

func classifyDB(err error) Code {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return CodeNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeDependency
	}

	pg, ok := postgresDetail(err)
	if !ok {
		return CodeDependency
	}
	switch {
	case pg.code == pgUniqueViolation,
		pg.code == pgSerializationFailure,
		pg.code == pgDeadlockDetected:
		return CodeConflict
	case pg.code == pgCheckViolation:
		return CodeInvalidState
	case pg.code == pgInvalidTextRepr, pg.code == pgForeignKeyViolation:
		return CodeValidation
	}
	return CodeDependency
}
