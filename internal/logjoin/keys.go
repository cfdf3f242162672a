package logjoin

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// reservedPrefix marks keys internal to the output queue (spec.md §3):
// "any key beginning with '__' is internal ... and MUST be skipped by the
// bootstrap scan."
const reservedPrefix = "__"

// envelopeKeyPrefix is the fixed prefix for output envelope records.
const envelopeKeyPrefix = "__sessionq-"

// custSuffix is the fixed suffix marking a customer-key record.
const custSuffix = "~cust"

// IsReservedKey reports whether key belongs to the internal output queue
// namespace and must be skipped by a store scan that only expects event
// records (spec.md §3, §4.5 import_timeout_list).
func IsReservedKey(key string) bool {
	return len(key) >= len(reservedPrefix) && key[:len(reservedPrefix)] == reservedPrefix
}

// randomHex returns n random bytes, hex-encoded, read from a
// cryptographically strong source. spec.md §9 requires the event and
// envelope suffixes come from such a generator "to avoid replay-across-
// restart key collisions".
func randomHex(nBytes int) string {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read only fails if the OS entropy source is
		// unavailable, which is unrecoverable for a process that needs
		// unique keys; there is no sane fallback that preserves the
		// collision-resistance guarantee spec.md §9 asks for.
		panic(fmt.Sprintf("logjoin: crypto/rand unavailable: %v", err))
	}

	return hex.EncodeToString(buf)
}

// eventKey builds "<uid>~<evtype>~<hex64>" (spec.md §3): the 64-bit random
// suffix disambiguates multiple events of the same type arriving within
// the same microsecond. A collision (probability ~2^-64) silently
// overwrites the prior event; spec.md §4.5 accepts this as a tie-break,
// not a counted failure.
func eventKey(uid string, evtype byte) string {
	return fmt.Sprintf("%s~%c~%s", uid, evtype, randomHex(8))
}

// custKey builds "<uid>~cust".
func custKey(uid string) string {
	return uid + custSuffix
}

// isCustKey reports whether key is uid's customer-key record.
func isCustKey(key, uid string) bool {
	return key == custKey(uid)
}

// envelopeKey builds "__sessionq-<hex128>" (spec.md §3): a 128-bit random
// suffix for the output envelope record.
func envelopeKey() string {
	return envelopeKeyPrefix + randomHex(16)
}

// uidPrefix builds the "<uid>~" prefix every one of a user's keys shares,
// used to test whether a key is still within that user's contiguous range
// during a scan that seeks to the bare uid (spec.md §3 invariant:
// "A user's event records form a contiguous range in the ordered
// key-space because '<uid>~' is a prefix").
func uidPrefix(uid string) string {
	return uid + "~"
}
