package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq" // postgres driver, registered via database/sql
)

// ErrNotFound is returned when a lookup finds no matching flush_audit row.
var ErrNotFound = errors.New("audit: record not found")

// Store persists FlushRecords to Postgres. It is a side-channel: a Store
// error is logged by the caller and never propagated back into the
// LogJoin core's Flush/FlushSession return value.
type Store struct {
	db *sql.DB
}

// Open connects to dsn and verifies it is reachable.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("audit: ping: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStore wraps an already-open *sql.DB, for callers (tests, cmd/logjoind)
// that manage the connection pool themselves.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertFlush records one flushed session. The row's ID and FlushedAt are
// populated from what the database assigned.
func (s *Store) InsertFlush(ctx context.Context, rec *FlushRecord) error {
	const q = `
		INSERT INTO flush_audit (uid, customer_key, session_id, event_count, first_seen_micros, archive_uri, joined, dropped_reason)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''))
		RETURNING id, flushed_at
	`

	row := s.db.QueryRowContext(ctx, q,
		rec.UID, rec.CustomerKey, rec.SessionID, rec.EventCount, rec.FirstSeenMicros, rec.ArchiveURI,
		rec.Joined, rec.DroppedReason,
	)

	if err := row.Scan(&rec.ID, &rec.FlushedAt); err != nil {
		return fmt.Errorf("audit: insert flush: %w", err)
	}

	return nil
}

// SetArchiveURI backfills the archive_uri column once a FlushRecord's
// envelope has been uploaded by an Archiver, which happens after the row
// already exists (spec.md's S3 archival is a best-effort follow-up, not
// part of the flush transaction itself).
func (s *Store) SetArchiveURI(ctx context.Context, id int64, archiveURI string) error {
	const q = `UPDATE flush_audit SET archive_uri = $1 WHERE id = $2`

	res, err := s.db.ExecContext(ctx, q, archiveURI, id)
	if err != nil {
		return fmt.Errorf("audit: set archive uri: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("audit: set archive uri: %w", err)
	}

	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}

	return nil
}

// RecentByCustomer returns the most recent flush_audit rows for customerKey,
// newest first, capped at limit.
func (s *Store) RecentByCustomer(ctx context.Context, customerKey string, limit int) ([]FlushRecord, error) {
	const q = `
		SELECT id, uid, customer_key, session_id, event_count, first_seen_micros, flushed_at,
			COALESCE(archive_uri, ''), joined, COALESCE(dropped_reason, '')
		FROM flush_audit
		WHERE customer_key = $1
		ORDER BY flushed_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, q, customerKey, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: recent by customer: %w", err)
	}
	defer rows.Close()

	var out []FlushRecord

	for rows.Next() {
		var rec FlushRecord

		if err := rows.Scan(&rec.ID, &rec.UID, &rec.CustomerKey, &rec.SessionID,
			&rec.EventCount, &rec.FirstSeenMicros, &rec.FlushedAt, &rec.ArchiveURI,
			&rec.Joined, &rec.DroppedReason); err != nil {
			return nil, fmt.Errorf("audit: scan row: %w", err)
		}

		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: rows: %w", err)
	}

	return out, nil
}
