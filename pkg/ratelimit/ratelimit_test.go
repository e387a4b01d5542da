package ratelimit_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wayfarian/groupjourney/pkg/ratelimit"
)

func TestLocationThrottleDropsWithinWindow(t *testing.T) {
	th := ratelimit.NewLocationThrottle(50 * time.Millisecond)

	assert.True(t, th.Allow("inst-1"))
	assert.False(t, th.Allow("inst-1"), "second frame within the window must be dropped")

	time.Sleep(60 * time.Millisecond)
	assert.True(t, th.Allow("inst-1"), "frame after the window elapses must be accepted")
}

func TestLocationThrottleIsPerInstance(t *testing.T) {
	th := ratelimit.NewLocationThrottle(50 * time.Millisecond)

	assert.True(t, th.Allow("inst-1"))
	assert.True(t, th.Allow("inst-2"), "throttle state must not leak across instances")
}

func TestLocationThrottleForget(t *testing.T) {
	th := ratelimit.NewLocationThrottle(time.Minute)

	assert.True(t, th.Allow("inst-1"))
	assert.Equal(t, 1, th.Size())

	th.Forget("inst-1")
	assert.Equal(t, 0, th.Size())
	assert.True(t, th.Allow("inst-1"), "a forgotten instance must be allowed immediately")
}

func TestLocationThrottleSweep(t *testing.T) {
	th := ratelimit.NewLocationThrottle(time.Minute)
	th.Allow("inst-1")
	time.Sleep(20 * time.Millisecond)
	th.Allow("inst-2")

	th.Sweep(10 * time.Millisecond)
	assert.Equal(t, 1, th.Size(), "only the stale entry should be swept")
}

func TestHTTPLimiterEnforcesWindowBudget(t *testing.T) {
	lim := ratelimit.NewHTTPLimiter(ratelimit.HTTPWindowConfig{Limit: 3, Window: time.Minute})

	for i := 0; i < 3; i++ {
		assert.True(t, lim.Allow("user-1"), "request %d within budget should be allowed", i)
	}
	assert.False(t, lim.Allow("user-1"), "request exceeding the window budget must be rejected")
}

func TestHTTPLimiterIsPerKey(t *testing.T) {
	lim := ratelimit.NewHTTPLimiter(ratelimit.HTTPWindowConfig{Limit: 1, Window: time.Minute})

	assert.True(t, lim.Allow("user-1"))
	assert.False(t, lim.Allow("user-1"))
	assert.True(t, lim.Allow("user-2"), "a different key must have its own budget")
}

func TestHTTPLimiterSweep(t *testing.T) {
	lim := ratelimit.NewHTTPLimiter(ratelimit.HTTPWindowConfig{Limit: 5, Window: time.Minute})
	lim.Allow("user-1")
	lim.Allow("user-2")
	assert.Equal(t, 2, lim.KeyCount())

	lim.Sweep(1)
	assert.Equal(t, 0, lim.KeyCount())
}

func TestRequestKeyPrefersUserID(t *testing.T) {
	r := &http.Request{RemoteAddr: "10.0.0.5:1234"}
	assert.Equal(t, "user-42", ratelimit.RequestKey("user-42", r))
	assert.Equal(t, "10.0.0.5:1234", ratelimit.RequestKey("", r))
}
