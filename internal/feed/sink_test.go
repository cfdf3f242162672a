package feed

import (
	"context"
	"testing"

	bolt "go.etcd.io/bbolt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixeljoin/logjoin/internal/kvstore/boltstore"
	"github.com/pixeljoin/logjoin/internal/logjoin"
)

type fakePublisher struct {
	published map[string][]byte
	failFor   string
}

func (f *fakePublisher) Publish(_ context.Context, sessionID string, envelope []byte) error {
	if sessionID == f.failFor {
		return assert.AnError
	}

	if f.published == nil {
		f.published = make(map[string][]byte)
	}

	f.published[sessionID] = envelope

	return nil
}

func TestSinkDrainPublishesAndDeletesEnvelopes(t *testing.T) {
	db, err := boltstore.Open(t.TempDir() + "/drain.db")
	require.NoError(t, err)
	defer db.Close()

	envelopeA := logjoin.EncodeEnvelope(logjoin.Envelope{Customer: "cust-a", SessionID: "sess-a", TimeMicros: 1, SessionData: []byte("a")})
	envelopeB := logjoin.EncodeEnvelope(logjoin.Envelope{Customer: "cust-b", SessionID: "sess-b", TimeMicros: 2, SessionData: []byte("b")})

	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		btx, err := boltstore.NewTxn(tx)
		if err != nil {
			return err
		}

		if err := btx.Insert([]byte("__sessionq-0001"), envelopeA); err != nil {
			return err
		}

		return btx.Insert([]byte("__sessionq-0002"), envelopeB)
	}))

	fake := &fakePublisher{}
	sink := &Sink{writer: fake}

	var published int

	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		btx, err := boltstore.NewTxn(tx)
		if err != nil {
			return err
		}

		published, err = sink.Drain(context.Background(), btx)

		return err
	}))

	assert.Equal(t, 2, published)
	assert.Len(t, fake.published, 2)
	assert.Equal(t, envelopeA, fake.published["sess-a"])

	require.NoError(t, db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltstore.EventsBucket)
		assert.Nil(t, bucket.Get([]byte("__sessionq-0001")))
		assert.Nil(t, bucket.Get([]byte("__sessionq-0002")))

		return nil
	}))
}

func TestSinkDrainStopsOnPublishFailure(t *testing.T) {
	db, err := boltstore.Open(t.TempDir() + "/drain-fail.db")
	require.NoError(t, err)
	defer db.Close()

	envelopeA := logjoin.EncodeEnvelope(logjoin.Envelope{Customer: "cust-a", SessionID: "sess-a", TimeMicros: 1, SessionData: []byte("a")})

	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		btx, err := boltstore.NewTxn(tx)
		if err != nil {
			return err
		}

		return btx.Insert([]byte("__sessionq-0001"), envelopeA)
	}))

	fake := &fakePublisher{failFor: "sess-a"}
	sink := &Sink{writer: fake}

	err = db.Update(func(tx *bolt.Tx) error {
		btx, err := boltstore.NewTxn(tx)
		if err != nil {
			return err
		}

		_, err = sink.Drain(context.Background(), btx)

		return err
	})
	assert.Error(t, err)

	require.NoError(t, db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltstore.EventsBucket)
		assert.NotNil(t, bucket.Get([]byte("__sessionq-0001")))

		return nil
	}))
}
