package errors

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Postgres SQLSTATE codes the API maps onto client facing codes.
const (
	sqlStateUniqueViolation      = "23505"
	sqlStateForeignKeyViolation  = "23503"
	sqlStateCheckViolation       = "23514"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// Classify returns err as a coded error. Coded errors pass through; database
// and context failures get a code from their cause; anything else is internal.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if typed := As(err); typed != nil {
		return typed
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(CodeDependency, err, "upstream timed out")
	}
	if pg := postgresFields(err); pg != nil {
		switch pg.Code {
		case sqlStateUniqueViolation:
			return Wrap(CodeConflict, err, "record already exists")
		case sqlStateForeignKeyViolation:
			return Wrap(CodeValidation, err, "referenced record does not exist")
		case sqlStateCheckViolation:
			return Wrap(CodeValidation, err, "value rejected by constraint")
		case sqlStateSerializationFailure, sqlStateDeadlockDetected:
			return Wrap(CodeDependency, err, "database contention, retry the request")
		}
	}
	return Wrap(CodeInternal, err, "unexpected error")
}

// Report is the log-only view of an error: its chain plus any postgres fields.
type Report struct {
	Message string
	Code    Code
	Chain   []string
	PG      *PGFields
}

type PGFields struct {
	Code       string
	Constraint string
	Table      string
	Column     string
	Detail     string
	Message    string
}

func Describe(err error) Report {
	if err == nil {
		return Report{}
	}
	r := Report{Message: err.Error(), PG: postgresFields(err)}
	if typed := As(err); typed != nil {
		r.Code = typed.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		r.Chain = append(r.Chain, fmt.Sprintf("%T", e))
	}
	return r
}

// Fields flattens the report for structured logging, skipping empty values.
func (r Report) Fields() map[string]any {
	fields := map[string]any{"error_chain": r.Chain}
	if r.Code != "" {
		fields["error_code"] = r.Code
	}
	if r.PG != nil {
		for k, v := range map[string]string{
			"pg_code":       r.PG.Code,
			"pg_constraint": r.PG.Constraint,
			"pg_table":      r.PG.Table,
			"pg_column":     r.PG.Column,
			"pg_detail":     r.PG.Detail,
			"pg_message":    r.PG.Message,
		} {
			if v != "" {
				fields[k] = v
			}
		}
	}
	return fields
}

// postgresFields understands both pgx, which gorm uses, and lib/pq.
func postgresFields(err error) *PGFields {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &PGFields{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &PGFields{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return nil
}
