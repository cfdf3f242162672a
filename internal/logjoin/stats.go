package logjoin

// Stats is the counter surface the LogJoin core and its JoinTarget report
// through (spec.md §4.5 Observability). All counters use delta-export
// semantics: implementations only ever increment, and whatever exporter
// backs them (internal/metrics uses Prometheus) is responsible for
// diffing scrapes.
type Stats interface {
	IncLoglinesTotal()
	IncLoglinesInvalid()
	IncJoinedSessions()
	IncJoinedQueries()
	IncJoinedItemVisits()
}

// noopStats discards every increment. It is the default Stats
// implementation so callers that only care about sessionizing correctness
// (most unit tests) are not forced to wire a counters backend.
type noopStats struct{}

func (noopStats) IncLoglinesTotal()     {}
func (noopStats) IncLoglinesInvalid()   {}
func (noopStats) IncJoinedSessions()    {}
func (noopStats) IncJoinedQueries()     {}
func (noopStats) IncJoinedItemVisits()  {}

// NoopStats returns a Stats implementation that discards every increment.
func NoopStats() Stats { return noopStats{} }

// CountingStats is a minimal in-memory Stats implementation backed by
// plain int64 fields, useful in tests that need to assert on counter
// values without standing up a Prometheus registry.
type CountingStats struct {
	LoglinesTotal    int64
	LoglinesInvalid  int64
	JoinedSessions   int64
	JoinedQueries    int64
	JoinedItemVisits int64
}

func (s *CountingStats) IncLoglinesTotal()    { s.LoglinesTotal++ }
func (s *CountingStats) IncLoglinesInvalid()  { s.LoglinesInvalid++ }
func (s *CountingStats) IncJoinedSessions()   { s.JoinedSessions++ }
func (s *CountingStats) IncJoinedQueries()    { s.JoinedQueries++ }
func (s *CountingStats) IncJoinedItemVisits() { s.JoinedItemVisits++ }
