// Package kvstore defines the minimal ordered key-value contract the
// LogJoin core programs against (spec.md §4.3). The core never depends on
// a concrete storage engine: it only requires insert/update and a cursor
// that can seek to the first key greater-or-equal to a prefix and walk
// forward while deleting in place. internal/kvstore/boltstore supplies the
// concrete adapter backed by go.etcd.io/bbolt.
package kvstore

// Transactor is the externally supplied, already-open transaction handle.
// The core never opens, commits, or rolls back a Transactor: the caller
// owns its lifetime for the duration of one Insert/Flush call, exactly as
// spec.md §5 requires ("the KV transaction is exclusively owned by the
// caller").
type Transactor interface {
	// Insert writes key/value, overwriting any existing value for key.
	Insert(key, value []byte) error

	// Update overwrites key with value. The core treats Insert and Update
	// identically (spec.md §4.3); the distinction exists so adapters over
	// engines that do distinguish insert-must-not-exist from
	// update-must-exist semantics (unlike bbolt) can still satisfy this
	// interface.
	Update(key, value []byte) error

	// Cursor opens a new cursor over this transaction. The caller must
	// Close it on every exit path.
	Cursor() Cursor
}

// Cursor walks the ordered key space of one Transactor. Deletion happens
// through the cursor during iteration so that scan-and-drain is a single
// pass (spec.md §4.3).
type Cursor interface {
	// SeekFirstOrGreater positions the cursor at the first key >= seek and
	// reports whether such a key exists.
	SeekFirstOrGreater(seek []byte) bool

	// Next advances the cursor and reports whether a key is now positioned.
	Next() bool

	// Key returns the key at the cursor's current position. Only valid
	// after SeekFirstOrGreater or Next returned true.
	Key() []byte

	// Value returns the value at the cursor's current position. Only valid
	// after SeekFirstOrGreater or Next returned true.
	Value() []byte

	// DeleteCurrent removes the key/value the cursor is positioned on.
	DeleteCurrent() error

	// Close releases the cursor. Safe to call more than once.
	Close()
}
