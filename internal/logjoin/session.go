package logjoin

import "time"

// TrackedEvent is one decoded pixel event belonging to a session. The core
// makes no guarantee about the order events are appended in (spec.md §4.6):
// a JoinTarget must tolerate duplicate or out-of-order timestamps.
type TrackedEvent struct {
	// Time is the event's own timestamp (whole seconds since epoch, as
	// carried in the wire line), not the time it was flushed.
	Time int64

	// EventType is one of {q, v, c, u} (query / view / click / user-update).
	EventType byte

	// EID is the event identifier extracted from the "c" parameter.
	EID string

	// Params are the pixel parameters stored alongside the event, with
	// "c", "e", and "v" already stripped.
	Params []Param
}

// TrackedSession is the reconstructed per-user session flush_session builds
// from the EventStore before handing it to a JoinTarget (spec.md §4.5).
type TrackedSession struct {
	// UID is the user id the session belongs to.
	UID string

	// CustomerKey is the value from the "<uid>~cust" record, or empty if
	// none was found (see ErrMissingCustomerKey handling).
	CustomerKey string

	// Events holds every successfully decoded event for this user. Events
	// that failed to decode are counted via loglines_invalid and omitted.
	Events []TrackedEvent
}

// FirstSeen returns the earliest event timestamp in the session, in
// microseconds since epoch, for the envelope's "time" field (spec.md §3).
// Returns 0 for an empty session, which should never reach this call since
// flush_session only invokes a JoinTarget on sessions with at least one
// customer-key record (events may still be empty if all failed to decode).
func (s *TrackedSession) FirstSeen() int64 {
	if len(s.Events) == 0 {
		return 0
	}

	min := s.Events[0].Time
	for _, e := range s.Events[1:] {
		if e.Time < min {
			min = e.Time
		}
	}

	return min * int64(time.Second/time.Microsecond)
}

// sessionBuilder incrementally accumulates TrackedEvents for a single uid
// while a flush_session scan is in progress. It exists separately from
// TrackedSession so the scan loop has a clear append point without
// exposing a half-built session to a JoinTarget.
type sessionBuilder struct {
	session TrackedSession
}

func newSessionBuilder(uid string) *sessionBuilder {
	return &sessionBuilder{session: TrackedSession{UID: uid}}
}

func (b *sessionBuilder) setCustomerKey(key string) {
	b.session.CustomerKey = key
}

func (b *sessionBuilder) addEvent(e TrackedEvent) {
	b.session.Events = append(b.session.Events, e)
}

func (b *sessionBuilder) build() TrackedSession {
	return b.session
}
