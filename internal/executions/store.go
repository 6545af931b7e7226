package executions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/watzon/lambdev/internal/database"
)

const selectColumns = `
	SELECT id, function_name, trigger_type, trace_id, status, started_at,
	       completed_at, duration_ms, request, response, error_type, error_message
	FROM invocations
`

// Store handles database operations for invocation records.
type Store struct {
	db *database.DB
}

// NewStore creates a new record store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new record.
func (s *Store) Create(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO invocations (
			id, function_name, trigger_type, trace_id, status, started_at,
			completed_at, duration_ms, request, response, error_type, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Function,
		rec.Trigger,
		rec.TraceID,
		rec.Status,
		formatTime(rec.StartedAt),
		nullTime(rec.CompletedAt),
		rec.DurationMs,
		rec.Request,
		rec.Response,
		rec.ErrorType,
		rec.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("inserting invocation record: %w", err)
	}

	return nil
}

// Update stores the outcome of a record.
func (s *Store) Update(ctx context.Context, rec *Record) error {
	query := `
		UPDATE invocations
		SET status = ?, completed_at = ?, duration_ms = ?,
		    response = ?, error_type = ?, error_message = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		rec.Status,
		nullTime(rec.CompletedAt),
		rec.DurationMs,
		rec.Response,
		rec.ErrorType,
		rec.ErrorMessage,
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("updating invocation record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, rec.ID)
	}

	return nil
}

// Get retrieves a record by invocation ID.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("querying invocation record: %w", err)
	}

	return rec, nil
}

// List retrieves records newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Record, error) {
	query := selectColumns + " WHERE 1=1"
	args := []any{}

	if filter.Function != "" {
		query += " AND function_name = ?"
		args = append(args, filter.Function)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.Trigger != "" {
		query += " AND trigger_type = ?"
		args = append(args, filter.Trigger)
	}

	query += " ORDER BY started_at DESC, rowid DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += " LIMIT -1"
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying invocation records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning invocation record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating invocation records: %w", err)
	}

	return records, nil
}

// DeleteOlderThan deletes finished records older than the given duration and
// returns how many were removed.
func (s *Store) DeleteOlderThan(ctx context.Context, duration time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-duration))

	query := `
		DELETE FROM invocations
		WHERE started_at < ?
		  AND status != 'pending'
	`

	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting old invocation records: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	return rows, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var startedAt string
	var completedAt sql.NullString

	if err := row.Scan(
		&rec.ID,
		&rec.Function,
		&rec.Trigger,
		&rec.TraceID,
		&rec.Status,
		&startedAt,
		&completedAt,
		&rec.DurationMs,
		&rec.Request,
		&rec.Response,
		&rec.ErrorType,
		&rec.ErrorMessage,
	); err != nil {
		return nil, err
	}

	t, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	rec.StartedAt = t

	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing completed_at: %w", err)
		}
		rec.CompletedAt = &t
	}

	return &rec, nil
}

// formatTime uses a fixed-width layout so that stored times sort lexically.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
