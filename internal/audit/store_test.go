package audit

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreInsertFlush(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "flushed_at"}).AddRow(int64(42), now)

	mock.ExpectQuery("INSERT INTO flush_audit").
		WithArgs("uid-1", "cust-a", "sess-1", 3, int64(1000000), "", false, "").
		WillReturnRows(rows)

	rec := &FlushRecord{
		UID:             "uid-1",
		CustomerKey:     "cust-a",
		SessionID:       "sess-1",
		EventCount:      3,
		FirstSeenMicros: 1000000,
	}

	err = store.InsertFlush(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, int64(42), rec.ID)
	assert.Equal(t, now, rec.FlushedAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreSetArchiveURI(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	mock.ExpectExec("UPDATE flush_audit SET archive_uri").
		WithArgs("s3://bucket/key.json", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.SetArchiveURI(context.Background(), 7, "s3://bucket/key.json")
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreSetArchiveURINotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	mock.ExpectExec("UPDATE flush_audit SET archive_uri").
		WithArgs("s3://bucket/key.json", int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = store.SetArchiveURI(context.Background(), 99, "s3://bucket/key.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreRecentByCustomer(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "uid", "customer_key", "session_id", "event_count", "first_seen_micros", "flushed_at", "archive_uri",
		"joined", "dropped_reason",
	}).AddRow(int64(1), "uid-1", "cust-a", "sess-1", 2, int64(500), now, "s3://bucket/a.json", true, "")

	mock.ExpectQuery("SELECT (.+) FROM flush_audit WHERE customer_key").
		WithArgs("cust-a", 10).
		WillReturnRows(rows)

	recs, err := store.RecentByCustomer(context.Background(), "cust-a", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "sess-1", recs[0].SessionID)
	assert.Equal(t, "s3://bucket/a.json", recs[0].ArchiveURI)

	assert.NoError(t, mock.ExpectationsWereMet())
}
