package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned by repositories when a row does not exist.
var ErrNotFound = errors.New("not found")

// Querier is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// NotFound maps pgx.ErrNoRows to ErrNotFound and leaves other errors alone.
func NotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Affected returns ErrNotFound when an UPDATE or DELETE matched no rows.
func Affected(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SelectQuery builds AND-combined filters for a single table.
type SelectQuery struct {
	table   string
	cols    string
	where   string
	args    []interface{}
	idx     int
	orderBy string
}

func NewSelectQuery(table, cols string) *SelectQuery {
	return &SelectQuery{table: table, cols: cols, idx: 1}
}

// Eq adds "column = value".
func (q *SelectQuery) Eq(column string, value interface{}) *SelectQuery {
	return q.cmp(column, "=", value)
}

// Gte adds "column >= value".
func (q *SelectQuery) Gte(column string, value interface{}) *SelectQuery {
	return q.cmp(column, ">=", value)
}

// Lte adds "column <= value".
func (q *SelectQuery) Lte(column string, value interface{}) *SelectQuery {
	return q.cmp(column, "<=", value)
}

// Any adds "column = ANY(values)".
func (q *SelectQuery) Any(column string, values interface{}) *SelectQuery {
	q.where += fmt.Sprintf(" AND %s = ANY($%d)", column, q.idx)
	q.args = append(q.args, values)
	q.idx++
	return q
}

func (q *SelectQuery) cmp(column, op string, value interface{}) *SelectQuery {
	q.where += fmt.Sprintf(" AND %s %s $%d", column, op, q.idx)
	q.args = append(q.args, value)
	q.idx++
	return q
}

// Raw appends a clause without parameters.
func (q *SelectQuery) Raw(clause string) *SelectQuery {
	q.where += " AND " + clause
	return q
}

// OrderBy sets the ORDER BY clause (without the keyword).
func (q *SelectQuery) OrderBy(orderBy string) *SelectQuery {
	q.orderBy = orderBy
	return q
}

func (q *SelectQuery) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE 1=1%s", q.table, q.where)
}

func (q *SelectQuery) Args() []interface{} {
	return q.args
}

// AllSQL selects every matching row.
func (q *SelectQuery) AllSQL() string {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1%s", q.cols, q.table, q.where)
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	return sql
}

// DataSQL selects one page of matching rows.
func (q *SelectQuery) DataSQL() string {
	return q.AllSQL() + fmt.Sprintf(" LIMIT $%d OFFSET $%d", q.idx, q.idx+1)
}

// DataArgs returns the filter arguments followed by limit and offset.
func (q *SelectQuery) DataArgs(limit, offset int) []interface{} {
	result := make([]interface{}, len(q.args)+2)
	copy(result, q.args)
	result[len(q.args)] = limit
	result[len(q.args)+1] = offset
	return result
}
