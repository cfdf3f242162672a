package logjoin

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pixeljoin/logjoin/internal/kvstore"
)

// DefaultIdleTimeout is kSessionIdleTimeoutSeconds from spec.md §4.5: a
// session is finalized after 30 minutes without activity unless the core
// is configured otherwise.
const DefaultIdleTimeout = 30 * time.Minute

// validEventTypes is the fixed set of single-character event types spec.md
// §3 allows in the "e" parameter: query / view / click / user-update.
const validEventTypes = "qvcu"

// LogJoin is the sessionizing orchestrator: ingest -> validate -> route ->
// append -> flush (spec.md §4.5). It owns the ParamCodec dictionary, the
// DeadlineIndex, and the Stats counters; it never owns a KV transaction
// beyond the single call it was passed one in.
type LogJoin struct {
	shard   ShardPredicate
	codec   *ParamCodec
	deadlines *DeadlineIndex
	stats   Stats
	target  JoinTarget
	logger  *slog.Logger

	idleTimeout time.Duration
	dryRun      bool
}

// Option configures optional LogJoin behavior, following the same
// functional-options shape the teacher's storage layer uses for
// LineageStoreOption.
type Option func(*LogJoin)

// WithIdleTimeout overrides DefaultIdleTimeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(lj *LogJoin) { lj.idleTimeout = d }
}

// WithDryRun enables dry-run mode: flush_session still calls the
// JoinTarget, still deletes source events and still counts the session in
// joined_sessions, but never builds or writes the output envelope
// (spec.md §4.5 "Dry-run mode").
func WithDryRun(dryRun bool) Option {
	return func(lj *LogJoin) { lj.dryRun = dryRun }
}

// WithShardPredicate overrides the default AcceptAll shard.
func WithShardPredicate(s ShardPredicate) Option {
	return func(lj *LogJoin) { lj.shard = s }
}

// WithStats overrides the default no-op Stats.
func WithStats(s Stats) Option {
	return func(lj *LogJoin) { lj.stats = s }
}

// WithLogger overrides the default stderr JSON logger.
func WithLogger(l *slog.Logger) Option {
	return func(lj *LogJoin) { lj.logger = l }
}

// New builds a LogJoin core around codec and target, which are required:
// the dictionary must be fixed before the first Insert, and every
// finalized session needs somewhere to go.
func New(codec *ParamCodec, target JoinTarget, opts ...Option) *LogJoin {
	lj := &LogJoin{
		shard:     AcceptAll,
		codec:     codec,
		deadlines: NewDeadlineIndex(),
		stats:     NoopStats(),
		target:    target,
		logger:    slog.New(slog.NewJSONHandler(os.Stderr, nil)),

		idleTimeout: DefaultIdleTimeout,
	}

	for _, opt := range opts {
		opt(lj)
	}

	return lj
}

// Deadlines exposes the DeadlineIndex for read-only diagnostics (e.g.
// internal/adminapi's /debug/deadlines). Mutating it outside the core's own
// Insert/Flush path would violate the exclusive-ownership invariant in
// spec.md §5.
func (lj *LogJoin) Deadlines() *DeadlineIndex { return lj.deadlines }

// InsertLogline parses the pipe-delimited wrapper
// "<customer_key>|<unix_seconds>|<body>" (spec.md §4.5) and delegates to
// Insert. There must be exactly two unescaped '|' separators; the body
// itself may contain '|'.
func (lj *LogJoin) InsertLogline(rawLine string, txn kvstore.Transactor) error {
	parts := strings.SplitN(rawLine, "|", 3)
	if len(parts) != 3 {
		lj.stats.IncLoglinesTotal()
		lj.stats.IncLoglinesInvalid()

		return fmt.Errorf("%w: expected 3 pipe-delimited fields, got %d", ErrParse, len(parts))
	}

	customerKey, timeField, body := parts[0], parts[1], parts[2]

	timeSeconds, err := strconv.ParseInt(timeField, 10, 64)
	if err != nil {
		lj.stats.IncLoglinesTotal()
		lj.stats.IncLoglinesInvalid()

		return fmt.Errorf("%w: invalid unix timestamp %q: %w", ErrParse, timeField, err)
	}

	return lj.Insert(customerKey, timeSeconds, body, txn)
}

// Insert is the main ingress (spec.md §4.5 "insert(customer_key, time,
// body, txn)"). time is in whole seconds; body is a query string.
func (lj *LogJoin) Insert(customerKey string, timeSeconds int64, body string, txn kvstore.Transactor) error {
	lj.stats.IncLoglinesTotal()

	values, err := url.ParseQuery(body)
	if err != nil {
		lj.stats.IncLoglinesInvalid()

		return fmt.Errorf("%w: query string: %w", ErrParse, err)
	}

	c := values.Get("c")

	uid, eid, ok := strings.Cut(c, "~")
	if !ok || uid == "" || eid == "" {
		lj.stats.IncLoglinesInvalid()

		return fmt.Errorf("%w: \"c\" must be \"<uid>~<eid>\", got %q", ErrParse, c)
	}

	if !lj.shard.Accepts(uid) {
		return nil
	}

	e := values.Get("e")
	if len(e) != 1 || !strings.ContainsRune(validEventTypes, rune(e[0])) {
		lj.stats.IncLoglinesInvalid()

		return fmt.Errorf("%w: \"e\" must be one of %q, got %q", ErrParse, validEventTypes, e)
	}

	evtype := e[0]

	params := make([]Param, 0, len(values))

	for key, vals := range values {
		if key == "c" || key == "e" || key == "v" || len(vals) == 0 {
			continue
		}

		params = append(params, Param{Name: key, Value: vals[0]})
	}

	timeMicros := timeSeconds * int64(time.Second/time.Microsecond)
	deadline := timeMicros + lj.idleTimeout.Microseconds()
	lj.deadlines.Touch(uid, deadline)

	record, err := lj.codec.EncodeEvent(timeSeconds, eid, params)
	if err != nil {
		// Unregistered parameter name: a programmer/configuration error per
		// spec.md §4.2, not a per-line parse failure, so it is not folded
		// into loglines_invalid.
		return fmt.Errorf("encode event: %w", err)
	}

	if err := txn.Insert([]byte(eventKey(uid, evtype)), record); err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	if err := txn.Update([]byte(custKey(uid)), []byte(customerKey)); err != nil {
		return fmt.Errorf("update customer key: %w", err)
	}

	return nil
}

// Flush evicts every user whose deadline is strictly before streamTime
// (spec.md §4.5). For each, flush_session reconstructs and joins the
// session before the uid is dropped from the DeadlineIndex.
func (lj *LogJoin) Flush(txn kvstore.Transactor, streamTime int64) error {
	for _, uid := range lj.deadlines.Due(streamTime) {
		if err := lj.FlushSession(uid, streamTime, txn); err != nil {
			return fmt.Errorf("flush session %q: %w", uid, err)
		}

		lj.deadlines.Remove(uid)
	}

	return nil
}

// FlushSession reconstructs one user's session from the EventStore,
// invokes the JoinTarget, and enqueues the resulting envelope — all within
// the caller-supplied txn (spec.md §4.5 "flush_session").
func (lj *LogJoin) FlushSession(uid string, streamTime int64, txn kvstore.Transactor) error {
	builder := newSessionBuilder(uid)

	cur := txn.Cursor()
	defer cur.Close()

	prefix := uidPrefix(uid)

	for ok := cur.SeekFirstOrGreater([]byte(uid)); ok; ok = cur.Next() {
		key := string(cur.Key())
		if !strings.HasPrefix(key, prefix) && key != uid {
			break
		}

		if !strings.HasPrefix(key, prefix) {
			// key == uid exactly: not a real record under this prefix scheme
			// (every real key has a '~' after the uid), skip defensively.
			continue
		}

		if isCustKey(key, uid) {
			builder.setCustomerKey(string(cur.Value()))
		} else {
			evtype := key[len(uid)+1]

			timeSeconds, eid, params, skipped, err := lj.codec.DecodeEvent(cur.Value())
			for i := 0; i < skipped; i++ {
				lj.stats.IncLoglinesInvalid()
			}

			if err != nil {
				lj.logger.Error("failed to decode event record",
					slog.String("uid", uid),
					slog.String("key", key),
					slog.Any("error", err),
				)
				lj.stats.IncLoglinesInvalid()
			} else {
				builder.addEvent(TrackedEvent{
					Time:      timeSeconds,
					EventType: evtype,
					EID:       eid,
					Params:    params,
				})
			}
		}

		if err := cur.DeleteCurrent(); err != nil {
			return fmt.Errorf("delete %q: %w", key, err)
		}
	}

	session := builder.build()

	if session.CustomerKey == "" {
		reason := fmt.Errorf("%w: uid %q", ErrMissingCustomerKey, uid)

		lj.logger.Error("flush_session: dropping session",
			slog.String("uid", uid),
			slog.Int("event_count", len(session.Events)),
			slog.Any("error", reason),
		)
		lj.observeDrop(&session, reason)

		return nil
	}

	sessionData, err := lj.target.Join(&session)
	if err != nil {
		lj.logger.Error("join target failed, session not queued",
			slog.String("uid", uid),
			slog.String("customer", session.CustomerKey),
			slog.Int("event_count", len(session.Events)),
			slog.Any("error", err),
		)
		lj.observeDrop(&session, err)

		return nil
	}

	if lj.dryRun {
		lj.stats.IncJoinedSessions()

		return nil
	}

	envelope := EncodeEnvelope(Envelope{
		Customer:    session.CustomerKey,
		SessionID:   uid,
		TimeMicros:  uint64(session.FirstSeen()),
		SessionData: sessionData,
	})

	if err := txn.Update([]byte(envelopeKey()), envelope); err != nil {
		return fmt.Errorf("enqueue envelope: %w", err)
	}

	lj.stats.IncJoinedSessions()

	return nil
}

// observeDrop notifies target of a session flush_session could not hand to
// Join, if target opts into DropObserver. A no-op for any JoinTarget that
// doesn't implement it.
func (lj *LogJoin) observeDrop(session *TrackedSession, reason error) {
	if observer, ok := lj.target.(DropObserver); ok {
		observer.SessionDropped(session, reason)
	}
}

// ImportTimeoutList rebuilds the DeadlineIndex from a store already
// populated with events, the bootstrap step spec.md §4.5 requires to run
// before the first Insert call after a restart. Reserved "__" keys and
// "~cust" records are skipped; for every remaining event key, the encoded
// timestamp is decoded and used to touch that uid's deadline exactly as
// Insert would have.
func (lj *LogJoin) ImportTimeoutList(txn kvstore.Transactor) error {
	cur := txn.Cursor()
	defer cur.Close()

	for ok := cur.SeekFirstOrGreater(nil); ok; ok = cur.Next() {
		key := string(cur.Key())

		if IsReservedKey(key) {
			continue
		}

		if strings.HasSuffix(key, custSuffix) {
			continue
		}

		uid, _, found := strings.Cut(key, "~")
		if !found {
			continue
		}

		timeSeconds, _, _, _, err := lj.codec.DecodeEvent(cur.Value())
		if err != nil {
			lj.logger.Error("bootstrap: failed to decode event record",
				slog.String("key", key),
				slog.Any("error", err),
			)

			continue
		}

		deadline := (timeSeconds + int64(lj.idleTimeout.Seconds())) * int64(time.Second/time.Microsecond)
		lj.deadlines.Touch(uid, deadline)
	}

	return nil
}
