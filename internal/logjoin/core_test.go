package logjoin_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/pixeljoin/logjoin/internal/kvstore/boltstore"
	"github.com/pixeljoin/logjoin/internal/logjoin"
)

// recordingTarget captures every session it's asked to join, so tests can
// assert on exactly what flush_session reconstructed.
type recordingTarget struct {
	sessions []logjoin.TrackedSession
}

func (r *recordingTarget) Join(s *logjoin.TrackedSession) ([]byte, error) {
	r.sessions = append(r.sessions, *s)

	return []byte("ok"), nil
}

// dropObservingTarget records both successful joins and the sessions
// flush_session dropped before ever calling Join, so tests can assert on
// logjoin.DropObserver wiring independent of internal/audit.
type dropObservingTarget struct {
	joinErr error

	sessions []logjoin.TrackedSession
	dropped  []logjoin.TrackedSession
	reasons  []error
}

func (d *dropObservingTarget) Join(s *logjoin.TrackedSession) ([]byte, error) {
	if d.joinErr != nil {
		return nil, d.joinErr
	}

	d.sessions = append(d.sessions, *s)

	return []byte("ok"), nil
}

func (d *dropObservingTarget) SessionDropped(s *logjoin.TrackedSession, reason error) {
	d.dropped = append(d.dropped, *s)
	d.reasons = append(d.reasons, reason)
}

func openTestDB(t *testing.T) *bolt.DB {
	t.Helper()

	db, err := boltstore.Open(filepath.Join(t.TempDir(), "logjoin.db"))
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	return db
}

func withTxn(t *testing.T, db *bolt.DB, fn func(txn *boltstore.Txn) error) {
	t.Helper()

	err := db.Update(func(tx *bolt.Tx) error {
		txn, err := boltstore.NewTxn(tx)
		if err != nil {
			return err
		}

		return fn(txn)
	})
	require.NoError(t, err)
}

func TestInsertThenFlushSessionizesSingleQuery(t *testing.T) {
	db := openTestDB(t)
	target := &recordingTarget{}
	core := logjoin.New(logjoin.NewParamCodec(), target)

	const baseTime int64 = 1_700_000_000

	withTxn(t, db, func(txn *boltstore.Txn) error {
		return core.Insert("acme", baseTime, "c=user1~q1&e=q&ref=homepage", txn)
	})

	assert.Equal(t, 1, core.Deadlines().Len())

	streamTime := (baseTime + int64(logjoin.DefaultIdleTimeout.Seconds()) + 1) * 1_000_000

	withTxn(t, db, func(txn *boltstore.Txn) error {
		return core.Flush(txn, streamTime)
	})

	require.Len(t, target.sessions, 1)
	session := target.sessions[0]
	assert.Equal(t, "user1", session.UID)
	assert.Equal(t, "acme", session.CustomerKey)
	require.Len(t, session.Events, 1)
	assert.Equal(t, byte('q'), session.Events[0].EventType)
	assert.Equal(t, "q1", session.Events[0].EID)
	assert.Equal(t, 0, core.Deadlines().Len())
}

func TestLaterEventExtendsDeadline(t *testing.T) {
	db := openTestDB(t)
	core := logjoin.New(logjoin.NewParamCodec(), logjoin.JoinTargetFunc(func(_ *logjoin.TrackedSession) ([]byte, error) {
		return []byte("ok"), nil
	}))

	const baseTime int64 = 1_700_000_000

	withTxn(t, db, func(txn *boltstore.Txn) error {
		return core.Insert("acme", baseTime, "c=user1~q1&e=q", txn)
	})

	firstDeadline, ok := core.Deadlines().Get("user1")
	require.True(t, ok)

	laterTime := baseTime + 60

	withTxn(t, db, func(txn *boltstore.Txn) error {
		return core.Insert("acme", laterTime, "c=user1~q2&e=v&item=sku-1", txn)
	})

	secondDeadline, ok := core.Deadlines().Get("user1")
	require.True(t, ok)

	assert.Greater(t, secondDeadline, firstDeadline)

	// Flushing at the original deadline must not evict the session: the
	// later event pushed the deadline out.
	withTxn(t, db, func(txn *boltstore.Txn) error {
		return core.Flush(txn, firstDeadline+1)
	})

	assert.Equal(t, 1, core.Deadlines().Len())
}

func TestTwoUsersAreIndependent(t *testing.T) {
	db := openTestDB(t)
	target := &recordingTarget{}
	core := logjoin.New(logjoin.NewParamCodec(), target)

	const baseTime int64 = 1_700_000_000

	withTxn(t, db, func(txn *boltstore.Txn) error {
		if err := core.Insert("acme", baseTime, "c=user1~q1&e=q", txn); err != nil {
			return err
		}

		return core.Insert("acme", baseTime+5, "c=user2~q1&e=q", txn)
	})

	assert.Equal(t, 2, core.Deadlines().Len())

	streamTime := (baseTime + int64(logjoin.DefaultIdleTimeout.Seconds()) + 1) * 1_000_000

	withTxn(t, db, func(txn *boltstore.Txn) error {
		return core.Flush(txn, streamTime)
	})

	require.Len(t, target.sessions, 2)

	uids := map[string]bool{}
	for _, s := range target.sessions {
		uids[s.UID] = true
	}

	assert.True(t, uids["user1"])
	assert.True(t, uids["user2"])
	assert.Equal(t, 0, core.Deadlines().Len())
}

func TestMalformedLogLineIsRejected(t *testing.T) {
	db := openTestDB(t)
	stats := &logjoin.CountingStats{}
	core := logjoin.New(logjoin.NewParamCodec(), logjoin.JoinTargetFunc(func(_ *logjoin.TrackedSession) ([]byte, error) {
		return []byte("ok"), nil
	}), logjoin.WithStats(stats))

	err := db.Update(func(tx *bolt.Tx) error {
		txn, err := boltstore.NewTxn(tx)
		if err != nil {
			return err
		}

		return core.InsertLogline("not-enough-fields", txn)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, logjoin.ErrParse)
	assert.Equal(t, int64(1), stats.LoglinesTotal)
	assert.Equal(t, int64(1), stats.LoglinesInvalid)
	assert.Equal(t, 0, core.Deadlines().Len())
}

func TestInsertRejectsUnknownEventType(t *testing.T) {
	db := openTestDB(t)
	core := logjoin.New(logjoin.NewParamCodec(), logjoin.JoinTargetFunc(func(_ *logjoin.TrackedSession) ([]byte, error) {
		return []byte("ok"), nil
	}))

	err := db.Update(func(tx *bolt.Tx) error {
		txn, err := boltstore.NewTxn(tx)
		if err != nil {
			return err
		}

		return core.Insert("acme", 1_700_000_000, "c=user1~q1&e=z", txn)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, logjoin.ErrParse)
}

func TestShardRejectionDropsEventSilently(t *testing.T) {
	db := openTestDB(t)
	stats := &logjoin.CountingStats{}

	rejectAll := logjoin.ShardPredicateFunc(func(string) bool { return false })

	core := logjoin.New(
		logjoin.NewParamCodec(),
		logjoin.JoinTargetFunc(func(_ *logjoin.TrackedSession) ([]byte, error) { return []byte("ok"), nil }),
		logjoin.WithShardPredicate(rejectAll),
		logjoin.WithStats(stats),
	)

	err := db.Update(func(tx *bolt.Tx) error {
		txn, err := boltstore.NewTxn(tx)
		if err != nil {
			return err
		}

		return core.Insert("acme", 1_700_000_000, "c=user1~q1&e=q", txn)
	})

	require.NoError(t, err)
	assert.Equal(t, 0, core.Deadlines().Len())
	// loglines_total is counted before the shard check; loglines_invalid is
	// not, since a shard miss is not a malformed line.
	assert.Equal(t, int64(1), stats.LoglinesTotal)
	assert.Equal(t, int64(0), stats.LoglinesInvalid)
}

func TestBootstrapRebuildsDeadlinesFromStore(t *testing.T) {
	db := openTestDB(t)
	core := logjoin.New(logjoin.NewParamCodec(), logjoin.JoinTargetFunc(func(_ *logjoin.TrackedSession) ([]byte, error) {
		return []byte("ok"), nil
	}))

	const baseTime int64 = 1_700_000_000

	withTxn(t, db, func(txn *boltstore.Txn) error {
		return core.Insert("acme", baseTime, "c=user1~q1&e=q", txn)
	})

	require.Equal(t, 1, core.Deadlines().Len())

	// Simulate a restart: a fresh core over the same store has no in-memory
	// deadlines until ImportTimeoutList rebuilds them.
	restarted := logjoin.New(logjoin.NewParamCodec(), logjoin.JoinTargetFunc(func(_ *logjoin.TrackedSession) ([]byte, error) {
		return []byte("ok"), nil
	}))

	assert.Equal(t, 0, restarted.Deadlines().Len())

	withTxn(t, db, func(txn *boltstore.Txn) error {
		return restarted.ImportTimeoutList(txn)
	})

	require.Equal(t, 1, restarted.Deadlines().Len())

	deadline, ok := restarted.Deadlines().Get("user1")
	require.True(t, ok)
	assert.Greater(t, deadline, int64(0))
}

func TestFlushBoundaryIsStrictlyBefore(t *testing.T) {
	db := openTestDB(t)
	target := &recordingTarget{}
	core := logjoin.New(logjoin.NewParamCodec(), target)

	const baseTime int64 = 1_700_000_000

	withTxn(t, db, func(txn *boltstore.Txn) error {
		return core.Insert("acme", baseTime, "c=user1~q1&e=q", txn)
	})

	deadline, ok := core.Deadlines().Get("user1")
	require.True(t, ok)

	// Flushing exactly at the deadline must not evict: spec.md's "strictly
	// before streamTime" is an exclusive bound.
	withTxn(t, db, func(txn *boltstore.Txn) error {
		return core.Flush(txn, deadline)
	})

	assert.Equal(t, 1, core.Deadlines().Len())
	assert.Empty(t, target.sessions)

	withTxn(t, db, func(txn *boltstore.Txn) error {
		return core.Flush(txn, deadline+1)
	})

	assert.Equal(t, 0, core.Deadlines().Len())
	assert.Len(t, target.sessions, 1)
}

func TestFlushSessionDropsSessionMissingCustomerKey(t *testing.T) {
	db := openTestDB(t)
	target := &recordingTarget{}
	core := logjoin.New(logjoin.NewParamCodec(), target)

	// A session can only ever lack a customer key if its deadline is
	// touched without going through Insert's normal "c=uid~eid" path, which
	// always writes both the event and the cust record together. Exercise
	// flush_session directly against an uid with no records at all, which
	// is the same no-customer-key outcome flush_session guards against.
	withTxn(t, db, func(txn *boltstore.Txn) error {
		return core.FlushSession("ghost-user", 0, txn)
	})

	assert.Empty(t, target.sessions)
}

func TestMissingCustomerKeyNotifiesDropObserver(t *testing.T) {
	db := openTestDB(t)
	target := &dropObservingTarget{}
	core := logjoin.New(logjoin.NewParamCodec(), target)

	withTxn(t, db, func(txn *boltstore.Txn) error {
		return core.FlushSession("ghost-user", 0, txn)
	})

	assert.Empty(t, target.sessions)
	require.Len(t, target.dropped, 1)
	assert.Equal(t, "ghost-user", target.dropped[0].UID)
	require.Len(t, target.reasons, 1)
	assert.ErrorIs(t, target.reasons[0], logjoin.ErrMissingCustomerKey)
}

func TestJoinFailureNotifiesDropObserver(t *testing.T) {
	db := openTestDB(t)
	target := &dropObservingTarget{joinErr: assert.AnError}
	core := logjoin.New(logjoin.NewParamCodec(), target)

	const baseTime int64 = 1_700_000_000

	withTxn(t, db, func(txn *boltstore.Txn) error {
		return core.Insert("acme", baseTime, "c=user1~q1&e=q", txn)
	})

	streamTime := (baseTime + int64(logjoin.DefaultIdleTimeout.Seconds()) + 1) * 1_000_000

	withTxn(t, db, func(txn *boltstore.Txn) error {
		return core.Flush(txn, streamTime)
	})

	assert.Empty(t, target.sessions)
	require.Len(t, target.dropped, 1)
	assert.Equal(t, "user1", target.dropped[0].UID)
	require.Len(t, target.reasons, 1)
	assert.ErrorIs(t, target.reasons[0], assert.AnError)
}
