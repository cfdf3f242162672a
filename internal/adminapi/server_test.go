package adminapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixeljoin/logjoin/internal/logjoin"
)

func testConfig() Config {
	return Config{
		Host:            DefaultHost,
		Port:            DefaultPort,
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		JWTSigningKey:   "test-signing-key",
	}
}

func signToken(t *testing.T, signingKey string, expiresIn time.Duration) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(expiresIn).Unix(),
	})

	s, err := token.SignedString([]byte(signingKey))
	require.NoError(t, err)

	return s
}

func TestHealthzIsPublic(t *testing.T) {
	stats := &logjoin.CountingStats{}
	s := NewServer(testConfig(), stats, logjoin.NewDeadlineIndex(), nil)
	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatszRequiresBearerToken(t *testing.T) {
	stats := &logjoin.CountingStats{LoglinesTotal: 5}
	s := NewServer(testConfig(), stats, logjoin.NewDeadlineIndex(), nil)
	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/statsz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/statsz", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "test-signing-key", time.Minute))

	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	var snapshot StatsSnapshot
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&snapshot))
	assert.Equal(t, int64(5), snapshot.LoglinesTotal)
}

func TestStatszRejectsTokenSignedWithWrongKey(t *testing.T) {
	stats := &logjoin.CountingStats{}
	s := NewServer(testConfig(), stats, logjoin.NewDeadlineIndex(), nil)
	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/statsz", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "wrong-key", time.Minute))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDebugDeadlinesReturnsSnapshot(t *testing.T) {
	deadlines := logjoin.NewDeadlineIndex()
	deadlines.Touch("u1", 1000)
	deadlines.Touch("u2", 2000)

	s := NewServer(testConfig(), logjoin.NoopStats(), deadlines, nil)
	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/debug/deadlines", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "test-signing-key", time.Minute))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var snapshot DeadlineSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snapshot))
	assert.Equal(t, 2, snapshot.Count)
	assert.Equal(t, int64(1000), snapshot.Deadlines["u1"])
}
