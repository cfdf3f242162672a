package pixelingress

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixeljoin/logjoin/internal/kvstore/boltstore"
	"github.com/pixeljoin/logjoin/internal/logjoin"
)

func openTestDB(t *testing.T) *bolt.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "pixel.db")

	db, err := boltstore.Open(path)
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	return db
}

func testCore(t *testing.T) *logjoin.LogJoin {
	t.Helper()

	codec := logjoin.NewParamCodec()
	require.NoError(t, codec.Register("foo", 200))

	return logjoin.New(codec, logjoin.JoinTargetFunc(func(_ *logjoin.TrackedSession) ([]byte, error) {
		return []byte("ok"), nil
	}))
}

func TestHandlerAcceptsValidPixelRequest(t *testing.T) {
	db := openTestDB(t)
	core := testCore(t)
	h := NewHandler(db, core, slog.New(slog.NewJSONHandler(os.Stderr, nil)), LoadConfig())

	req := httptest.NewRequest(http.MethodGet, "/px?c=user1~q&e=q&foo=bar", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, core.Deadlines().Len())
}

func TestHandlerRejectsMalformedQuery(t *testing.T) {
	db := openTestDB(t)
	core := testCore(t)
	h := NewHandler(db, core, slog.New(slog.NewJSONHandler(os.Stderr, nil)), LoadConfig())

	req := httptest.NewRequest(http.MethodGet, "/px?c=missing-tilde&e=q", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestHandlerRejectsNonGET(t *testing.T) {
	db := openTestDB(t)
	core := testCore(t)
	h := NewHandler(db, core, slog.New(slog.NewJSONHandler(os.Stderr, nil)), LoadConfig())

	req := httptest.NewRequest(http.MethodPost, "/px", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandlerUsesCustomerKeyHeaderOverRemoteAddr(t *testing.T) {
	db := openTestDB(t)
	core := testCore(t)
	cfg := LoadConfig()
	h := NewHandler(db, core, slog.New(slog.NewJSONHandler(os.Stderr, nil)), cfg)

	req := httptest.NewRequest(http.MethodGet, "/px?c=user2~q&e=q", nil)
	req.RemoteAddr = "10.0.0.9:6666"
	req.Header.Set(cfg.CustomerKeyHeader, "acme-corp")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)

	var stored string

	err := db.View(func(tx *bolt.Tx) error {
		txn, err := boltstore.NewTxn(tx)
		require.NoError(t, err)

		cur := txn.Cursor()
		defer cur.Close()

		for ok := cur.SeekFirstOrGreater([]byte("user2")); ok; ok = cur.Next() {
			key := string(cur.Key())
			if key == "user2~cust" {
				stored = string(cur.Value())

				return nil
			}
		}

		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "acme-corp", stored)
}
