// Package timers delivers timer ticks to scripts without coupling script
// code to wall-clock scheduling (spec §4.7).
package timers

import (
	"sort"
	"sync"
	"time"

	"glitchscript/internal/protocol"
)

// Fire receives a fired timer's scriptId/timerId pair. The caller (the
// event dispatcher, internal/dispatch) turns this into an EventTimer
// worker message.
type Fire func(scriptID, timerID string)

const defaultResolution = 50 * time.Millisecond

// entry mirrors protocol.TimerEntry plus the enqueue sequence number used
// to break same-tick ties (spec §4.7 "Ordering across timers due at the
// same tick: by enqueue order").
type entry struct {
	protocol.TimerEntry
	seq uint64
}

// Manager owns every script's named timers and a single tick loop walking
// all of them (spec §4.7). Grounded on the teacher's registration-map +
// mutex shape (internal/scripting/triggers/manager.go), generalized from a
// single flat registry to one keyed by (scriptId, timerId).
type Manager struct {
	mu      sync.Mutex
	timers  map[string]map[string]*entry // scriptID -> timerID -> entry
	nextSeq uint64
	now     func() time.Time

	resolution time.Duration
	fire       Fire

	stop chan struct{}
	done chan struct{}
}

// Option configures a Manager at construction.
type Option func(*Manager)

func WithResolution(d time.Duration) Option { return func(m *Manager) { m.resolution = d } }

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func NewManager(fire Fire, opts ...Option) *Manager {
	m := &Manager{
		timers:     make(map[string]map[string]*entry),
		now:        time.Now,
		resolution: defaultResolution,
		fire:       fire,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.run()
	return m
}

// Set registers or replaces a named timer for a script (spec §4.7
// `setTimer(interval, id?)`). An interval of 0 is equivalent to Clear.
func (m *Manager) Set(scriptID, timerID string, interval float64, repeating bool) {
	if timerID == "" {
		timerID = "default"
	}
	if interval <= 0 {
		m.Clear(scriptID, timerID)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byScript, ok := m.timers[scriptID]
	if !ok {
		byScript = make(map[string]*entry)
		m.timers[scriptID] = byScript
	}
	seq := m.nextSeq
	m.nextSeq++
	byScript[timerID] = &entry{
		TimerEntry: protocol.TimerEntry{
			ScriptID:  scriptID,
			TimerID:   timerID,
			Interval:  interval,
			Repeating: repeating,
			NextFire:  nowSeconds(m.now()) + interval,
		},
		seq: seq,
	}
}

// Clear removes a named timer (spec §4.7 "clearing an unknown id is a
// no-op"). Empty id defaults to "default".
func (m *Manager) Clear(scriptID, timerID string) {
	if timerID == "" {
		timerID = "default"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if byScript, ok := m.timers[scriptID]; ok {
		delete(byScript, timerID)
		if len(byScript) == 0 {
			delete(m.timers, scriptID)
		}
	}
}

// ClearAll removes every timer owned by a script, called on termination or
// reset.
func (m *Manager) ClearAll(scriptID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.timers, scriptID)
}

// Stop halts the tick loop.
func (m *Manager) Stop() {
	close(m.stop)
	<-m.done
}

func nowSeconds(t time.Time) float64 { return float64(t.UnixNano()) / 1e9 }

// run is the single tick loop (spec §4.7 "coarser than 16ms is
// acceptable"). Each tick collects every timer whose nextFire has arrived,
// sorted by enqueue order, and advances or removes it before firing, so a
// handler that re-registers a timer with the same id doesn't get its own
// new registration clobbered by the advance step below.
func (m *Manager) run() {
	defer close(m.done)
	ticker := time.NewTicker(m.resolution)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.tick(nowSeconds(m.now()))
		}
	}
}

func (m *Manager) tick(now float64) {
	due := m.collectDue(now)
	for _, e := range due {
		m.fire(e.ScriptID, e.TimerID)
	}
}

// collectDue must not hold the lock while calling m.fire, since Fire may
// re-enter Set/Clear from the dispatcher's handler invocation.
func (m *Manager) collectDue(now float64) []protocol.TimerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*entry
	for _, byScript := range m.timers {
		for _, e := range byScript {
			if e.NextFire <= now {
				due = append(due, e)
			}
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].seq < due[j].seq })

	out := make([]protocol.TimerEntry, len(due))
	for i, e := range due {
		out[i] = e.TimerEntry
		if e.Repeating {
			e.NextFire = now + e.Interval
		} else {
			delete(m.timers[e.ScriptID], e.TimerID)
			if len(m.timers[e.ScriptID]) == 0 {
				delete(m.timers, e.ScriptID)
			}
		}
	}
	return out
}

