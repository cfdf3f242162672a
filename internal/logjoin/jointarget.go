package logjoin

// JoinTarget is the pluggable capability that turns a reconstructed
// TrackedSession into an opaque session-data blob for the output envelope
// (spec.md §4.6). Implementations may examine every event and must
// tolerate duplicate or out-of-order timestamps; the core makes no
// ordering guarantee within a session.
//
// A single-method interface is deliberate: spec.md §9 calls out that no
// inheritance hierarchy is needed here, just a capability passed by
// reference.
type JoinTarget interface {
	Join(session *TrackedSession) ([]byte, error)
}

// JoinTargetFunc adapts a plain function to JoinTarget.
type JoinTargetFunc func(session *TrackedSession) ([]byte, error)

// Join implements JoinTarget.
func (f JoinTargetFunc) Join(session *TrackedSession) ([]byte, error) { return f(session) }

// DropObserver is an optional capability a JoinTarget may implement to learn
// about sessions flush_session did not join: either because no customer key
// was ever recorded for the uid (ErrMissingCustomerKey, and Join is never
// called), or because Join itself returned an error. Most JoinTargets have no use for
// this and flush_session checks for it with a type assertion, so it is kept
// as a separate interface rather than widening JoinTarget itself.
type DropObserver interface {
	SessionDropped(session *TrackedSession, reason error)
}

// joinCounters is the subset of Stats a JoinTarget is expected to update
// directly (spec.md §4.5 Observability: "joined_queries, joined_item_visits
// ... are incremented by the JoinTarget").
type joinCounters interface {
	IncJoinedQueries()
	IncJoinedItemVisits()
}

// CountingJoinTarget is a minimal, reference JoinTarget: it counts how many
// events in the session were queries ('q') versus item views/clicks ('v'
// and 'c'), reports those counts through the Stats interface, and encodes
// the tally as the session_data payload using ParamCodec-independent,
// fixed binary fields (two big-endian uint32 counts).
//
// This is not meant to be the production join target for any particular
// deployment — real targets typically join against a user/session store —
// but it is a complete, testable implementation of the contract and the
// default wired by cmd/logjoind when no other target is configured.
type CountingJoinTarget struct {
	Stats joinCounters
}

// NewCountingJoinTarget builds a CountingJoinTarget that reports through
// stats. stats must not be nil.
func NewCountingJoinTarget(stats joinCounters) *CountingJoinTarget {
	return &CountingJoinTarget{Stats: stats}
}

// Join implements JoinTarget.
func (t *CountingJoinTarget) Join(session *TrackedSession) ([]byte, error) {
	var queries, itemVisits uint32

	for _, e := range session.Events {
		switch e.EventType {
		case 'q':
			queries++
			t.Stats.IncJoinedQueries()
		case 'v', 'c':
			itemVisits++
			t.Stats.IncJoinedItemVisits()
		}
	}

	out := make([]byte, 8)
	putUint32(out[0:4], queries)
	putUint32(out[4:8], itemVisits)

	return out, nil
}

func putUint32(dst []byte, v uint32) {
	dst[0] = byte(v >> 24)
	dst[1] = byte(v >> 16)
	dst[2] = byte(v >> 8)
	dst[3] = byte(v)
}
