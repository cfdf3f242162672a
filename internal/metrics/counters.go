// Package metrics provides the Prometheus-backed logjoin.Stats
// implementation exposed by cmd/logjoind at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Counters implements logjoin.Stats using five prometheus.Counter
// instruments registered under a configurable namespace. It is
// registered against its own prometheus.Registry rather than the global
// default so tests can construct isolated instances without colliding on
// re-registration.
type Counters struct {
	loglinesTotal    prometheus.Counter
	loglinesInvalid  prometheus.Counter
	joinedSessions   prometheus.Counter
	joinedQueries    prometheus.Counter
	joinedItemVisits prometheus.Counter

	registry *prometheus.Registry
}

// New builds a Counters instance and registers it with a fresh registry
// under namespace (e.g. "logjoin"). The returned registry is what callers
// should hand to promhttp.HandlerFor.
func New(namespace string) *Counters {
	registry := prometheus.NewRegistry()

	c := &Counters{
		loglinesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loglines_total",
			Help:      "Total number of raw loglines accepted for insertion.",
		}),
		loglinesInvalid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loglines_invalid_total",
			Help:      "Loglines rejected for malformed or missing fields.",
		}),
		joinedSessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "joined_sessions_total",
			Help:      "Sessions flushed downstream after their deadline elapsed.",
		}),
		joinedQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "joined_queries_total",
			Help:      "Query (q) events folded into a flushed session.",
		}),
		joinedItemVisits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "joined_item_visits_total",
			Help:      "Item-visit (v) events folded into a flushed session.",
		}),
		registry: registry,
	}

	registry.MustRegister(
		c.loglinesTotal,
		c.loglinesInvalid,
		c.joinedSessions,
		c.joinedQueries,
		c.joinedItemVisits,
	)

	return c
}

// Registry returns the prometheus.Registry the counters are bound to.
func (c *Counters) Registry() *prometheus.Registry { return c.registry }

func (c *Counters) IncLoglinesTotal()     { c.loglinesTotal.Inc() }
func (c *Counters) IncLoglinesInvalid()   { c.loglinesInvalid.Inc() }
func (c *Counters) IncJoinedSessions()    { c.joinedSessions.Inc() }
func (c *Counters) IncJoinedQueries()     { c.joinedQueries.Inc() }
func (c *Counters) IncJoinedItemVisits()  { c.joinedItemVisits.Inc() }
