package store

import (
	"context"
	"database/sql"
	"strconv"
	"time"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries issues statements against the database or an open transaction.
// Obtain one from Store.Queries (reads) or Store.WithTx (writes).
type Queries struct {
	q         querier
	maxParams int
	rec       *recorder
}

// recorder collects mutations made inside a transaction.
type recorder struct {
	mutations []Mutation
}

func (q *Queries) record(table, op string, key int64, values map[string]any) {
	if q.rec == nil {
		return
	}
	q.rec.mutations = append(q.rec.mutations, Mutation{
		Table:  table,
		Op:     op,
		Key:    strconv.FormatInt(key, 10),
		Values: values,
		At:     time.Now(),
	})
}
