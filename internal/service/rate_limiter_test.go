package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterExhaustsWindow(t *testing.T) {
	now := fixedNow()
	limiter := NewRateLimiter(2, time.Hour)
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("conn-1"))
	assert.True(t, limiter.Allow("conn-1"))
	assert.False(t, limiter.Allow("conn-1"))
	assert.Equal(t, 0, limiter.Remaining("conn-1"))

	// Quota is per connection.
	assert.True(t, limiter.Allow("conn-2"))
	assert.Equal(t, 1, limiter.Remaining("conn-2"))
}

func TestRateLimiterWindowReset(t *testing.T) {
	now := fixedNow()
	limiter := NewRateLimiter(1, time.Hour)
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("conn-1"))
	assert.False(t, limiter.Allow("conn-1"))

	now = now.Add(time.Hour)
	assert.Equal(t, 1, limiter.Remaining("conn-1"))
	assert.True(t, limiter.Allow("conn-1"))
}
