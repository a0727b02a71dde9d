package feedback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS feedback (
    id TEXT PRIMARY KEY,
    timestamp TEXT NOT NULL,
    candidate_id TEXT NOT NULL DEFAULT '',
    candidate_name TEXT NOT NULL DEFAULT '',
    context_id TEXT NOT NULL,
    type TEXT NOT NULL CHECK (type IN ('positive', 'negative')),
    reason TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_feedback_context ON feedback(context_id);
`

// SQLiteStore keeps the log in a sqlite table. Rows are only ever inserted.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("feedback database path is required")
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening feedback database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to feedback database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating feedback database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, r Record) error {
	if err := r.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (id, timestamp, candidate_id, candidate_name, context_id, type, reason)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Timestamp, r.CandidateID, r.CandidateName, r.ContextID, string(r.Type), r.Reason,
	)
	if err != nil {
		return fmt.Errorf("inserting feedback record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]Record, error) {
	query := `SELECT id, timestamp, candidate_id, candidate_name, context_id, type, reason FROM feedback`
	var args []any
	if f.ContextID != "" {
		query += ` WHERE context_id = ?`
		args = append(args, f.ContextID)
	}
	query += ` ORDER BY timestamp, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying feedback: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var typ string
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.CandidateID, &r.CandidateName, &r.ContextID, &typ, &r.Reason); err != nil {
			return nil, fmt.Errorf("scanning feedback row: %w", err)
		}
		r.Type = Type(typ)
		records = append(records, r)
	}

	return records, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
