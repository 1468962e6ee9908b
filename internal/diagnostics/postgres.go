package diagnostics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

const createRejectionLog = `
CREATE TABLE IF NOT EXISTS rejection_log (
	id         UUID PRIMARY KEY,
	file_name  TEXT NOT NULL DEFAULT '',
	kind       TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const createRejectionLogIndex = `
CREATE INDEX IF NOT EXISTS rejection_log_created_at_idx ON rejection_log (created_at)`

const insertRejection = `
INSERT INTO rejection_log (id, file_name, kind, message, created_at)
VALUES ($1, $2, $3, $4, $5)`

const selectRecentRejections = `
SELECT id, file_name, kind, message, created_at
FROM (
	SELECT id, file_name, kind, message, created_at
	FROM rejection_log
	ORDER BY created_at DESC
	LIMIT $1
) recent
ORDER BY created_at ASC`

const countRejections = `SELECT count(*) FROM rejection_log`

const purgeRejections = `
DELETE FROM rejection_log
WHERE created_at < now() - make_interval(days => $1)`

// PostgresSink stores rejections in the rejection_log table.
type PostgresSink struct {
	db DBTX
}

// NewPostgresSink returns a sink backed by db. Call EnsureSchema once at startup.
func NewPostgresSink(db DBTX) *PostgresSink {
	return &PostgresSink{db: db}
}

// EnsureSchema creates the rejection_log table if it does not exist.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{createRejectionLog, createRejectionLogIndex} {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create rejection_log: %w", err)
		}
	}
	return nil
}

// RecordRejection implements Sink.
func (s *PostgresSink) RecordRejection(ctx context.Context, ev Event) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	_, err := s.db.Exec(ctx, insertRejection,
		toPgUUID(ev.ID),
		ev.File,
		ev.Kind,
		ev.Message,
		pgtype.Timestamptz{Time: ev.Time, Valid: true},
	)
	if err != nil {
		return fmt.Errorf("insert rejection: %w", err)
	}
	return nil
}

// Recent implements Lister. limit <= 0 defaults to 100.
func (s *PostgresSink) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(ctx, selectRecentRejections, limit)
	if err != nil {
		return nil, fmt.Errorf("query rejections: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			id      pgtype.UUID
			ev      Event
			created pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &ev.File, &ev.Kind, &ev.Message, &created); err != nil {
			return nil, fmt.Errorf("scan rejection: %w", err)
		}
		if id.Valid {
			ev.ID = uuid.UUID(id.Bytes)
		}
		if created.Valid {
			ev.Time = created.Time
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query rejections: %w", err)
	}
	return events, nil
}

// Count implements Counter.
func (s *PostgresSink) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, countRejections).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rejections: %w", err)
	}
	return n, nil
}

// PurgeOlderThan deletes rejections older than the given number of days
// and returns how many were removed.
func (s *PostgresSink) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	tag, err := s.db.Exec(ctx, purgeRejections, int32(days))
	if err != nil {
		return 0, fmt.Errorf("purge rejections: %w", err)
	}
	return tag.RowsAffected(), nil
}

func toPgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}
