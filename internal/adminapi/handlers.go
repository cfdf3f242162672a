package adminapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/pixeljoin/logjoin/internal/httpmiddleware"
	"github.com/pixeljoin/logjoin/internal/httputil"
	"github.com/pixeljoin/logjoin/internal/logjoin"
)

// HealthStatus is the /healthz response body.
type HealthStatus struct {
	Status string `json:"status"`
	Uptime string `json:"uptime,omitempty"`
}

// StatsSnapshot is the /statsz response body. Unlike the Prometheus
// /metrics endpoint this is a point-in-time JSON dump meant for quick
// manual inspection, not scraping.
type StatsSnapshot struct {
	LoglinesTotal    int64 `json:"loglinesTotal"`
	LoglinesInvalid  int64 `json:"loglinesInvalid"`
	JoinedSessions   int64 `json:"joinedSessions"`
	JoinedQueries    int64 `json:"joinedQueries"`
	JoinedItemVisits int64 `json:"joinedItemVisits"`
}

// DeadlineSnapshot is the /debug/deadlines response body.
type DeadlineSnapshot struct {
	Count     int              `json:"count"`
	Deadlines map[string]int64 `json:"deadlines"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	var uptime string
	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Round(time.Second).String()
	}

	s.writeJSON(w, r, http.StatusOK, HealthStatus{Status: "healthy", Uptime: uptime})
}

func (s *Server) handleStatsz(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := s.stats.(*logjoin.CountingStats)
	if !ok {
		// Prometheus-backed Stats doesn't expose readable fields; this
		// endpoint is only meaningful when adminapi was wired with a
		// CountingStats for local inspection. Scrape /metrics otherwise.
		httputil.WriteError(w, r, s.logger, httputil.NewProblemDetail(
			http.StatusNotImplemented,
			"Stats Snapshot Unavailable",
			"the configured Stats backend does not support point-in-time snapshots; use /metrics instead",
		))

		return
	}

	s.writeJSON(w, r, http.StatusOK, StatsSnapshot{
		LoglinesTotal:    snapshot.LoglinesTotal,
		LoglinesInvalid:  snapshot.LoglinesInvalid,
		JoinedSessions:   snapshot.JoinedSessions,
		JoinedQueries:    snapshot.JoinedQueries,
		JoinedItemVisits: snapshot.JoinedItemVisits,
	})
}

// handleDebugDeadlines dumps the full uid -> deadline map. Documented in
// SPEC_FULL as unsafe to expose publicly since uids are the same
// key-space used for session lookups; JWT protection here is the only
// thing standing between this and a full key-space disclosure.
func (s *Server) handleDebugDeadlines(w http.ResponseWriter, r *http.Request) {
	snapshot := s.deadlines.Snapshot()

	s.writeJSON(w, r, http.StatusOK, DeadlineSnapshot{
		Count:     len(snapshot),
		Deadlines: snapshot,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		correlationID := httpmiddleware.GetCorrelationID(r.Context())
		s.logger.Error("failed to marshal admin response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		httputil.WriteError(w, r, s.logger, httputil.InternalServerError("failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
