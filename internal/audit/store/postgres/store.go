// Package postgres archives audit entries for long-term review. The Postgres
// connection is opened through database/sql with the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"medgate/internal/audit"
	"medgate/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_entries (
    id                TEXT PRIMARY KEY,
    run_id            TEXT NOT NULL,
    local_id          TEXT NOT NULL,
    channel           TEXT NOT NULL,
    category          TEXT NOT NULL,
    message           TEXT NOT NULL,
    original_category TEXT NOT NULL DEFAULT '',
    original_message  TEXT NOT NULL DEFAULT '',
    created_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_entries_run_idx ON audit_entries (run_id, channel);
`

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the audit table when absent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate audit schema: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, e audit.Entry) error {
	const q = `INSERT INTO audit_entries
	    (id, run_id, local_id, channel, category, message, original_category, original_message, created_at)
	    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	    ON CONFLICT (id) DO NOTHING`
	_, err := s.db.ExecContext(ctx, q,
		e.ID, e.RunID, e.LocalID, e.Channel(), string(e.Category), e.Message,
		string(e.OriginalCategory), e.OriginalMessage, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// ListByRun returns a run's entries for one channel in insertion order.
// Asking for audit.ChannelAll returns the whole run: the archive keeps one
// row per entry, so the all-records channel is the unfiltered view.
func (s *Store) ListByRun(ctx context.Context, runID, channel string) ([]audit.Entry, error) {
	q := `SELECT id, run_id, local_id, category, message, original_category, original_message, created_at
	    FROM audit_entries
	    WHERE run_id = $1 AND channel = $2
	    ORDER BY created_at`
	args := []any{runID, channel}
	if channel == audit.ChannelAll {
		q = `SELECT id, run_id, local_id, category, message, original_category, original_message, created_at
		    FROM audit_entries
		    WHERE run_id = $1
		    ORDER BY created_at`
		args = []any{runID}
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var e audit.Entry
		var cat, origCat string
		if err := rows.Scan(&e.ID, &e.RunID, &e.LocalID, &cat, &e.Message, &origCat, &e.OriginalMessage, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Category = domain.Category(cat)
		e.OriginalCategory = domain.Category(origCat)
		out = append(out, e)
	}
	return out, rows.Err()
}
