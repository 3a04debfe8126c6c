package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mcdev12/tapchain/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

const DefaultTable = "score_journal"

// PostgresStore keeps the journal in a Postgres table.
type PostgresStore struct {
	db    *sql.DB
	table string
}

func NewPostgresStore(db *sql.DB, table string) *PostgresStore {
	if table == "" {
		table = DefaultTable
	}
	return &PostgresStore{db: db, table: pq.QuoteIdentifier(table)}
}

// queries binds the journal statements to one transaction.
type queries struct {
	tx    *sql.Tx
	table string
}

func (s *PostgresStore) run(ctx context.Context, fn func(q *queries) error) error {
	return sqlutil.Run(ctx, s.db, func(tx *sql.Tx) *queries {
		return &queries{tx: tx, table: s.table}
	}, fn)
}

// Migrate creates the journal table if needed.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	session_id UUID PRIMARY KEY,
	identity   TEXT NOT NULL,
	score      BIGINT NOT NULL,
	status     TEXT NOT NULL,
	signature  TEXT,
	result     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create journal table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Begin(ctx context.Context, sessionID uuid.UUID, identity string, score int64) (bool, error) {
	var claimed bool
	err := s.run(ctx, func(q *queries) error {
		res, err := q.tx.ExecContext(ctx, fmt.Sprintf(
			`INSERT INTO %s (session_id, identity, score, status) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (session_id) DO NOTHING`, q.table),
			sessionID, identity, score, StatusPending)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		claimed = n == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("begin journal entry %s: %w", sessionID, err)
	}
	return claimed, nil
}

func (s *PostgresStore) Complete(ctx context.Context, sessionID uuid.UUID, status Status, signature string, result json.RawMessage) error {
	err := s.run(ctx, func(q *queries) error {
		res, err := q.tx.ExecContext(ctx, fmt.Sprintf(
			`UPDATE %s SET status = $2, signature = $3, result = $4, updated_at = now()
			 WHERE session_id = $1`, q.table),
			sessionID, status, sqlutil.ToSqlString(signature), sqlutil.ToNullRawMessage(result))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("complete journal entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Pending(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT session_id, identity, score, status, signature, result, created_at, updated_at
		 FROM %s WHERE status = $1 ORDER BY created_at`, s.table), StatusPending)
	if err != nil {
		return nil, fmt.Errorf("query pending journal entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, sessionID uuid.UUID) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT session_id, identity, score, status, signature, result, created_at, updated_at
		 FROM %s WHERE session_id = $1`, s.table), sessionID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		e         Entry
		status    string
		signature sql.NullString
		result    pqtype.NullRawMessage
	)
	if err := row.Scan(&e.SessionID, &e.Identity, &e.Score, &status, &signature, &result, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Status = Status(status)
	e.Signature = sqlutil.FromSqlString(signature, "")
	e.Result = sqlutil.FromNullRawMessage(result)
	return &e, nil
}
