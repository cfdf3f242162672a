// Package boltstore adapts go.etcd.io/bbolt to the kvstore.Transactor and
// kvstore.Cursor contracts. bbolt supplies exactly what spec.md §1 assumes
// of "the embedded KV engine itself": ordered keys within a bucket, cursors,
// and ACID transactions — so this adapter is a thin wrapper, not a reimplementation.
package boltstore

import (
	"bytes"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/pixeljoin/logjoin/internal/kvstore"
)

// EventsBucket is the single bucket every LogJoin key lives in: event
// records, "<uid>~cust" customer-key records, and "__sessionq-" envelopes
// all share one flat, lexicographically ordered key space, per spec.md §3.
var EventsBucket = []byte("events")

// Open opens (creating if necessary) a bbolt database file at path and
// ensures EventsBucket exists.
func Open(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, createErr := tx.CreateBucketIfNotExists(EventsBucket)

		return createErr
	})
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("boltstore: create bucket: %w", err)
	}

	return db, nil
}

// Txn adapts a *bolt.Tx's EventsBucket to kvstore.Transactor. The caller
// supplies an already-open bolt.Tx (read-write), matching spec.md §5: the
// LogJoin core never opens or commits a transaction itself.
type Txn struct {
	bucket *bolt.Bucket
}

// NewTxn wraps tx's EventsBucket. Returns an error if the bucket is
// missing, which should not happen once Open has run once against the
// database file.
func NewTxn(tx *bolt.Tx) (*Txn, error) {
	b := tx.Bucket(EventsBucket)
	if b == nil {
		return nil, fmt.Errorf("boltstore: bucket %q not found, call Open first", EventsBucket)
	}

	return &Txn{bucket: b}, nil
}

// Insert implements kvstore.Transactor.
func (t *Txn) Insert(key, value []byte) error {
	return t.bucket.Put(key, value)
}

// Update implements kvstore.Transactor. bbolt's Put is insert-or-overwrite,
// so Update and Insert are the same call here, as spec.md §4.3 allows.
func (t *Txn) Update(key, value []byte) error {
	return t.bucket.Put(key, value)
}

// Cursor implements kvstore.Transactor.
func (t *Txn) Cursor() kvstore.Cursor {
	return &Cursor{c: t.bucket.Cursor()}
}

// Cursor adapts *bolt.Cursor to kvstore.Cursor.
type Cursor struct {
	c          *bolt.Cursor
	key, value []byte
	positioned bool
}

// SeekFirstOrGreater implements kvstore.Cursor.
func (c *Cursor) SeekFirstOrGreater(seek []byte) bool {
	k, v := c.c.Seek(seek)
	c.key, c.value = k, v
	c.positioned = k != nil

	return c.positioned
}

// Next implements kvstore.Cursor.
func (c *Cursor) Next() bool {
	k, v := c.c.Next()
	c.key, c.value = k, v
	c.positioned = k != nil

	return c.positioned
}

// Key implements kvstore.Cursor.
func (c *Cursor) Key() []byte {
	if !c.positioned {
		return nil
	}

	return bytes.Clone(c.key)
}

// Value implements kvstore.Cursor.
func (c *Cursor) Value() []byte {
	if !c.positioned {
		return nil
	}

	return bytes.Clone(c.value)
}

// DeleteCurrent implements kvstore.Cursor. bbolt's Cursor.Delete removes
// the key/value currently under the cursor without invalidating it, so a
// following Next() continues from where deletion happened — exactly the
// scan-and-drain single pass spec.md §4.3 requires.
func (c *Cursor) DeleteCurrent() error {
	if !c.positioned {
		return fmt.Errorf("boltstore: DeleteCurrent called with no key positioned")
	}

	return c.c.Delete()
}

// Close implements kvstore.Cursor. bbolt cursors need no explicit release;
// this is a no-op kept to satisfy the interface and the resource-scoping
// discipline spec.md §5 asks every implementation to follow.
func (c *Cursor) Close() {}
