package replication

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/asbelov/alepiz-sub006/internal/store"
)

// journalSchema creates the mutation journal when it is missing.
const journalSchema = `
CREATE TABLE IF NOT EXISTS event_mutations (
	id         BIGSERIAL PRIMARY KEY,
	batch_id   TEXT        NOT NULL,
	table_name TEXT        NOT NULL,
	op         TEXT        NOT NULL,
	row_key    TEXT        NOT NULL,
	payload    JSONB,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS event_mutations_batch ON event_mutations(batch_id);
`

const insertMutation = `
INSERT INTO event_mutations (batch_id, table_name, op, row_key, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

// PostgresSink appends mutations to a PostgreSQL journal table. One batch is
// one transaction.
type PostgresSink struct {
	conn *sql.DB
}

// NewPostgresSink connects to dsn and ensures the journal table exists.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	sink := NewPostgresSinkFromDB(conn)
	if err := sink.Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	slog.Info("Successfully connected to PostgreSQL replication journal")
	return sink, nil
}

// NewPostgresSinkFromDB wraps an existing connection.
func NewPostgresSinkFromDB(conn *sql.DB) *PostgresSink {
	return &PostgresSink{conn: conn}
}

// Migrate creates the journal table and its index.
func (p *PostgresSink) Migrate(ctx context.Context) error {
	if _, err := p.conn.ExecContext(ctx, journalSchema); err != nil {
		return fmt.Errorf("create event_mutations: %w", err)
	}
	return nil
}

// Send inserts every mutation of b inside one transaction.
func (p *PostgresSink) Send(ctx context.Context, b store.Batch) error {
	if len(b.Mutations) == 0 {
		return nil
	}

	tx, err := p.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin journal tx: %w", err)
	}
	defer tx.Rollback()

	for _, m := range b.Mutations {
		payload, err := marshalPayload(m.Values)
		if err != nil {
			return fmt.Errorf("batch %s: %w", b.ID, err)
		}
		if _, err := tx.ExecContext(ctx, insertMutation,
			b.ID, m.Table, m.Op, m.Key, payload, m.At.UTC(),
		); err != nil {
			return fmt.Errorf("journal %s mutation of %s %s: %w", m.Op, m.Table, m.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit journal batch %s: %w", b.ID, err)
	}
	return nil
}

// Close closes the database connection.
func (p *PostgresSink) Close() error {
	if p.conn != nil {
		slog.Info("Closing PostgreSQL replication journal")
		return p.conn.Close()
	}
	return nil
}

// marshalPayload serializes row values for JSONB; no values map to NULL.
func marshalPayload(values map[string]any) (sql.NullString, error) {
	if len(values) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal payload: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
