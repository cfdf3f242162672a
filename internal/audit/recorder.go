package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/pixeljoin/logjoin/internal/logjoin"
)

// RecordingJoinTarget wraps a logjoin.JoinTarget, recording one FlushRecord
// to a Store (and, if configured, one archived envelope to an Archiver) for
// every session the inner target successfully joins, and a FlushRecord with
// Joined=false for every session flush_session dropped instead (see
// SessionDropped). A Store or Archiver failure is logged and swallowed:
// auditing is a side-channel, never allowed to turn a successful
// flush_session into a failed one.
type RecordingJoinTarget struct {
	inner    logjoin.JoinTarget
	store    *Store
	archiver Archiver
	logger   *slog.Logger
}

// NewRecordingJoinTarget builds a RecordingJoinTarget around inner. store
// must not be nil; archiver may be nil to disable S3 archival.
func NewRecordingJoinTarget(inner logjoin.JoinTarget, store *Store, archiver Archiver, logger *slog.Logger) *RecordingJoinTarget {
	return &RecordingJoinTarget{
		inner:    inner,
		store:    store,
		archiver: archiver,
		logger:   logger,
	}
}

// Join implements logjoin.JoinTarget: it delegates to inner and then, on
// success, records the outcome. The returned sessionData is always inner's,
// untouched, whether or not recording succeeds.
func (t *RecordingJoinTarget) Join(session *logjoin.TrackedSession) ([]byte, error) {
	sessionData, err := t.inner.Join(session)
	if err != nil {
		return nil, err
	}

	t.record(session, sessionData)

	return sessionData, nil
}

// SessionDropped implements logjoin.DropObserver: flush_session calls this
// when a session is not joined, either instead of Join (a missing customer
// key) or after this target's Join call has failed. It is
// recorded with the same shape as a successful join, minus sessionData and
// archival, so the audit trail answers "was this session ever joined" for
// every uid that had a deadline, not only the ones that succeeded.
func (t *RecordingJoinTarget) SessionDropped(session *logjoin.TrackedSession, reason error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := &FlushRecord{
		UID:             session.UID,
		CustomerKey:     session.CustomerKey,
		SessionID:       session.UID,
		EventCount:      len(session.Events),
		FirstSeenMicros: session.FirstSeen(),
		Joined:          false,
		DroppedReason:   reason.Error(),
	}

	if err := t.store.InsertFlush(ctx, rec); err != nil {
		t.logger.Error("audit: failed to record dropped session",
			slog.String("uid", session.UID),
			slog.Any("error", err),
		)
	}
}

func (t *RecordingJoinTarget) record(session *logjoin.TrackedSession, sessionData []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := &FlushRecord{
		UID:             session.UID,
		CustomerKey:     session.CustomerKey,
		SessionID:       session.UID,
		EventCount:      len(session.Events),
		FirstSeenMicros: session.FirstSeen(),
		Joined:          true,
	}

	if err := t.store.InsertFlush(ctx, rec); err != nil {
		t.logger.Error("audit: failed to record flush",
			slog.String("uid", session.UID),
			slog.Any("error", err),
		)

		return
	}

	if t.archiver == nil {
		return
	}

	uri, err := t.archiver.ArchiveEnvelope(ctx, rec, sessionData)
	if err != nil {
		t.logger.Error("audit: failed to archive envelope",
			slog.String("uid", session.UID),
			slog.Any("error", err),
		)

		return
	}

	if err := t.store.SetArchiveURI(ctx, rec.ID, uri); err != nil {
		t.logger.Error("audit: failed to record archive uri",
			slog.String("uid", session.UID),
			slog.Any("error", err),
		)
	}
}
