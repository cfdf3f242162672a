package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixeljoin/logjoin/internal/logjoin"
)

type fakeArchiver struct {
	uri string
	err error
}

func (a *fakeArchiver) ArchiveEnvelope(_ context.Context, _ *FlushRecord, _ []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}

	return a.uri, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecordingJoinTargetRecordsFlushOnSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	rows := sqlmock.NewRows([]string{"id", "flushed_at"}).AddRow(int64(1), time.Now().UTC())
	mock.ExpectQuery("INSERT INTO flush_audit").
		WithArgs("uid-1", "cust-a", "uid-1", 1, int64(0), "", true, "").
		WillReturnRows(rows)

	inner := logjoin.JoinTargetFunc(func(_ *logjoin.TrackedSession) ([]byte, error) {
		return []byte("ok"), nil
	})

	target := NewRecordingJoinTarget(inner, store, nil, discardLogger())

	session := &logjoin.TrackedSession{
		UID:         "uid-1",
		CustomerKey: "cust-a",
		Events:      []logjoin.TrackedEvent{{Time: 0, EventType: 'q'}},
	}

	data, err := target.Join(session)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), data)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordingJoinTargetArchivesAndBackfillsURI(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	rows := sqlmock.NewRows([]string{"id", "flushed_at"}).AddRow(int64(5), time.Now().UTC())
	mock.ExpectQuery("INSERT INTO flush_audit").
		WillReturnRows(rows)

	mock.ExpectExec("UPDATE flush_audit SET archive_uri").
		WithArgs("s3://bucket/uid-1.json", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	inner := logjoin.JoinTargetFunc(func(_ *logjoin.TrackedSession) ([]byte, error) {
		return []byte("ok"), nil
	})

	target := NewRecordingJoinTarget(inner, store, &fakeArchiver{uri: "s3://bucket/uid-1.json"}, discardLogger())

	session := &logjoin.TrackedSession{UID: "uid-1", CustomerKey: "cust-a"}

	_, err = target.Join(session)
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordingJoinTargetRecordsSessionDropped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	rows := sqlmock.NewRows([]string{"id", "flushed_at"}).AddRow(int64(2), time.Now().UTC())
	mock.ExpectQuery("INSERT INTO flush_audit").
		WithArgs("uid-2", "", "uid-2", 0, int64(0), "", false, "missing customer key").
		WillReturnRows(rows)

	inner := logjoin.JoinTargetFunc(func(_ *logjoin.TrackedSession) ([]byte, error) {
		return []byte("ok"), nil
	})

	target := NewRecordingJoinTarget(inner, store, nil, discardLogger())

	target.SessionDropped(&logjoin.TrackedSession{UID: "uid-2"}, errors.New("missing customer key"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordingJoinTargetSkipsRecordingWhenInnerFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	inner := logjoin.JoinTargetFunc(func(_ *logjoin.TrackedSession) ([]byte, error) {
		return nil, errors.New("boom")
	})

	target := NewRecordingJoinTarget(inner, store, nil, discardLogger())

	_, err = target.Join(&logjoin.TrackedSession{UID: "uid-1"})
	require.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}
