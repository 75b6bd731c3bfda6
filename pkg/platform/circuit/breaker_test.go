package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestBreakerLifecycle(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := New("gateway", WithFailureThreshold(2), WithCooldown(time.Minute), WithClock(clock.now))

	assert.True(t, b.Allow())
	assert.False(t, b.RecordFailure().Opened)
	assert.True(t, b.RecordFailure().Opened)
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())

	clock.advance(time.Minute)
	assert.Equal(t, StateHalfOpen, b.State())
	assert.True(t, b.Allow(), "first probe admitted")
	assert.False(t, b.Allow(), "second caller waits for the probe")

	assert.True(t, b.RecordFailure().Opened, "failed probe reopens")
	assert.False(t, b.Allow())

	clock.advance(time.Minute)
	assert.True(t, b.Allow())
	assert.True(t, b.RecordSuccess().Closed)
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := New("gateway", WithFailureThreshold(3))
	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.RecordSuccess().Closed)
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())
}

func TestReset(t *testing.T) {
	b := New("gateway", WithFailureThreshold(1))
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	b.Reset()
	assert.Equal(t, "closed", b.State().String())
}
