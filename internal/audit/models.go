// Package audit records a durable side-channel trail of every finalized
// session, independent of the bbolt-backed hot path (internal/logjoin,
// internal/kvstore). It exists purely for operational visibility and
// replay: nothing in the sessionizing core reads it back.
package audit

import "time"

// FlushRecord is one row of the flush_audit table: a summary of a single
// FlushSession call, persisted from inside the JoinTarget call (or the
// DropObserver call for a dropped session), before FlushSession writes
// any envelope to the KV store.
type FlushRecord struct {
	ID              int64
	UID             string
	CustomerKey     string
	SessionID       string
	EventCount      int
	FirstSeenMicros int64
	FlushedAt       time.Time
	ArchiveURI      string // populated once S3Archiver has uploaded the envelope, empty until then

	// Joined is false when flush_session did not join the session (missing
	// customer key, so Join was never called, or Join itself failed).
	// DroppedReason carries the error in that case and is empty otherwise.
	Joined        bool
	DroppedReason string
}
