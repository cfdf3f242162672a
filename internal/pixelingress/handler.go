package pixelingress

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/pixeljoin/logjoin/internal/httputil"
	"github.com/pixeljoin/logjoin/internal/kvstore/boltstore"
	"github.com/pixeljoin/logjoin/internal/logjoin"
)

// Handler serves GET requests carrying a tracking-pixel query string. It
// reassembles the request into the pipe-wrapper line
// "<customer_key>|<unix_seconds>|<query>" and calls LogJoin.Insert inside
// a single bbolt write transaction. The core itself has no internal
// locking (spec.md §5 single-threaded-cooperative model), so Handler
// wraps every call in a mutex: this is the external serialization
// spec.md §5 explicitly allows for multi-producer HTTP ingress.
type Handler struct {
	db     *bolt.DB
	core   *logjoin.LogJoin
	logger *slog.Logger
	cfg    Config

	mu sync.Mutex
}

// NewHandler builds a pixelingress Handler over db, which must already
// have been prepared with boltstore.Open.
func NewHandler(db *bolt.DB, core *logjoin.LogJoin, logger *slog.Logger, cfg Config) *Handler {
	return &Handler{db: db, core: core, logger: logger, cfg: cfg}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, r, h.logger, httputil.NewProblemDetail(
			http.StatusMethodNotAllowed, "Method Not Allowed", "only GET is supported"))

		return
	}

	customerKey := h.customerKey(r)
	query := r.URL.RawQuery
	now := time.Now().Unix()

	h.mu.Lock()
	err := h.db.Update(func(tx *bolt.Tx) error {
		txn, err := boltstore.NewTxn(tx)
		if err != nil {
			return fmt.Errorf("open transaction: %w", err)
		}

		return h.core.Insert(customerKey, now, query, txn)
	})
	h.mu.Unlock()

	if err != nil {
		if errors.Is(err, logjoin.ErrParse) {
			httputil.WriteError(w, r, h.logger, httputil.BadRequest(err.Error()))

			return
		}

		h.logger.Error("pixelingress: insert failed",
			slog.String("customer_key", customerKey),
			slog.Any("error", err),
		)
		httputil.WriteError(w, r, h.logger, httputil.InternalServerError("failed to record event"))

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// customerKey derives the customer key from cfg.CustomerKeyHeader if
// present, falling back to the request's remote IP.
func (h *Handler) customerKey(r *http.Request) string {
	if h.cfg.CustomerKeyHeader != "" {
		if v := r.Header.Get(h.cfg.CustomerKeyHeader); v != "" {
			return v
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

