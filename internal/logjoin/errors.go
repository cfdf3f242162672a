// Package logjoin implements the sessionizing core: decode pixel log lines,
// buffer per-user events in an ordered key-value store, and emit one
// consolidated session envelope per user once the user has gone idle.
package logjoin

import "errors"

// Sentinel errors for the LogJoin core.
//
// These are wrapped with fmt.Errorf("%w: ...") at the call site so callers
// can use errors.Is() for classification without string matching.
var (
	// ErrParse is returned when a raw log line or its query-string body is
	// structurally malformed: missing separators, an empty uid/eid, or an
	// event type outside {q, v, c, u}.
	ErrParse = errors.New("logjoin: malformed log line")

	// ErrUnknownParam is returned by ParamCodec.IDOf/NameOf when a name or id
	// was never registered. On encode this is a programmer error (the caller
	// passed an unregistered parameter name); on decode it means a single
	// event's param could not be named and is skipped.
	ErrUnknownParam = errors.New("logjoin: unknown pixel parameter")

	// ErrDuplicateParam is raised by ParamCodec.Register when a name or id is
	// registered twice at construction time.
	ErrDuplicateParam = errors.New("logjoin: duplicate pixel parameter registration")

	// ErrMissingCustomerKey is logged (never returned to the ingest caller)
	// when flush_session finds no "<uid>~cust" record for a user whose
	// deadline has elapsed. The session is dropped, not joined.
	ErrMissingCustomerKey = errors.New("logjoin: no customer key for session")

	// ErrTruncatedRecord is returned by DecodeEvent when the binary buffer
	// ends in the middle of a field.
	ErrTruncatedRecord = errors.New("logjoin: truncated event record")
)
