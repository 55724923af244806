package timers

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestSetFiresRepeatingTimerAtInterval(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(0, 0)}
	fired := make(chan string, 8)

	m := NewManager(func(scriptID, timerID string) { fired <- scriptID + ":" + timerID },
		WithResolution(5*time.Millisecond), WithClock(clock.Now))
	defer m.Stop()

	m.Set("s1", "", 1, true)
	clock.Advance(2 * time.Second)

	select {
	case got := <-fired:
		require.Equal(t, "s1:default", got)
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestSetZeroIntervalClears(t *testing.T) {
	t.Parallel()

	m := NewManager(func(string, string) {})
	defer m.Stop()

	m.Set("s1", "t", 5, false)
	m.Set("s1", "t", 0, false)

	m.mu.Lock()
	_, ok := m.timers["s1"]
	m.mu.Unlock()
	require.False(t, ok)
}

func TestClearUnknownIDIsNoOp(t *testing.T) {
	t.Parallel()

	m := NewManager(func(string, string) {})
	defer m.Stop()

	require.NotPanics(t, func() { m.Clear("nonexistent", "nope") })
}

func TestOneShotTimerIsRemovedAfterFiring(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(0, 0)}
	fired := make(chan string, 8)

	m := NewManager(func(scriptID, timerID string) { fired <- timerID },
		WithResolution(5*time.Millisecond), WithClock(clock.Now))
	defer m.Stop()

	m.Set("s1", "once", 1, false)
	clock.Advance(2 * time.Second)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("one-shot timer never fired")
	}

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		_, ok := m.timers["s1"]
		return !ok
	}, time.Second, 10*time.Millisecond)
}
