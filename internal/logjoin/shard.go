package logjoin

import "hash/fnv"

// ShardPredicate decides whether a uid belongs to this LogJoin instance.
// The core silently drops events for uids a predicate rejects: this is not
// an error and does not increment loglines_invalid (loglines_total is
// counted before the shard check).
type ShardPredicate interface {
	Accepts(uid string) bool
}

// ShardPredicateFunc adapts a plain function to ShardPredicate.
type ShardPredicateFunc func(uid string) bool

// Accepts implements ShardPredicate.
func (f ShardPredicateFunc) Accepts(uid string) bool { return f(uid) }

// AcceptAll is a ShardPredicate that accepts every uid. It is the default
// used when a deployment runs a single, unsharded instance.
var AcceptAll ShardPredicate = ShardPredicateFunc(func(string) bool { return true })

// HashRangeShard partitions the uid space by FNV-1a hash modulo total,
// accepting only uids whose hash bucket equals index. It is deterministic
// across restarts and processes, which is required because the shard
// predicate gates what the DeadlineIndex and EventStore ever see.
type HashRangeShard struct {
	Index uint32
	Total uint32
}

// NewHashRangeShard builds a HashRangeShard responsible for bucket index of
// total disjoint buckets. Panics if total is zero or index >= total, since
// that is a construction-time programmer error, not a runtime condition.
func NewHashRangeShard(index, total uint32) HashRangeShard {
	if total == 0 {
		panic("logjoin: shard total must be > 0")
	}

	if index >= total {
		panic("logjoin: shard index must be < total")
	}

	return HashRangeShard{Index: index, Total: total}
}

// Accepts implements ShardPredicate.
func (s HashRangeShard) Accepts(uid string) bool {
	h := fnv.New32a()
	_, _ = h.Write([]byte(uid))

	return h.Sum32()%s.Total == s.Index
}
