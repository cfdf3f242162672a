package httpmiddleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInMemoryRateLimiterGlobalLimit(t *testing.T) {
	// burst capacity is 2x the configured rate, so a globalRPS of 1 starts
	// with a 2-token bucket: the first two calls drain it, the third is
	// rejected before the bucket has had time to refill.
	rl := NewInMemoryRateLimiter(1, 100)
	defer rl.Close()

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
	assert.False(t, rl.Allow("c"), "third request should exceed the global burst budget")
}

func TestInMemoryRateLimiterPerSourceIsolation(t *testing.T) {
	rl := NewInMemoryRateLimiter(1000, 1)
	defer rl.Close()

	assert.True(t, rl.Allow("source-a"))
	assert.True(t, rl.Allow("source-a"))
	assert.False(t, rl.Allow("source-a"), "source-a already consumed its burst")
	assert.True(t, rl.Allow("source-b"), "source-b has its own independent bucket")
}
