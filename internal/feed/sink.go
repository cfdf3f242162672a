package feed

import (
	"context"
	"fmt"
	"strings"

	"github.com/pixeljoin/logjoin/internal/kvstore"
	"github.com/pixeljoin/logjoin/internal/logjoin"
)

const envelopeKeyPrefix = "__sessionq-"

// publisher is the subset of Writer's surface Sink depends on, split out so
// tests can substitute a fake without standing up a Kafka broker.
type publisher interface {
	Publish(ctx context.Context, sessionID string, envelope []byte) error
}

// Sink drains "__sessionq-" envelope records the LogJoin core wrote during
// Flush/FlushSession and republishes each one through a publisher, deleting
// the record on successful publish. It never touches any other key in the
// store: a scan-and-drain pass is scoped strictly to the reserved envelope
// prefix.
type Sink struct {
	writer publisher
}

// NewSink builds a Sink around an already-constructed Writer.
func NewSink(writer *Writer) *Sink {
	return &Sink{writer: writer}
}

// Drain walks every "__sessionq-" key in txn, publishes its decoded
// envelope, and deletes the key once publish succeeds. It stops and
// returns an error on the first publish failure, leaving that key (and any
// after it) in the store for the next Drain call — so envelopes are never
// lost, only re-attempted.
func (s *Sink) Drain(ctx context.Context, txn kvstore.Transactor) (int, error) {
	cur := txn.Cursor()
	defer cur.Close()

	published := 0

	for ok := cur.SeekFirstOrGreater([]byte(envelopeKeyPrefix)); ok; ok = cur.Next() {
		key := string(cur.Key())
		if !strings.HasPrefix(key, envelopeKeyPrefix) {
			break
		}

		envelope, err := logjoin.DecodeEnvelope(cur.Value())
		if err != nil {
			return published, fmt.Errorf("feed: decode envelope %q: %w", key, err)
		}

		if err := s.writer.Publish(ctx, envelope.SessionID, cur.Value()); err != nil {
			return published, fmt.Errorf("feed: publish %q: %w", key, err)
		}

		if err := cur.DeleteCurrent(); err != nil {
			return published, fmt.Errorf("feed: delete %q: %w", key, err)
		}

		published++
	}

	return published, nil
}
