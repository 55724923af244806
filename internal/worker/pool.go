package worker

import (
	"fmt"
	"sync"
	"time"

	glog "glitchscript/internal/log"
	"glitchscript/internal/protocol"
)

const (
	defaultSlotCount    = 4
	defaultSlotCap      = 50
	defaultPingInterval = 5 * time.Second
	defaultTimeout      = 10 * time.Second

	// Mirror internal/sandbox's defaults; a caller that wires Transformer's
	// LoopBound()/RecursionBound() through WithBounds keeps the static
	// transform and the runtime endowment in lockstep instead.
	defaultLoopBoundFallback      = 1_000_000
	defaultRecursionBoundFallback = 256
)

// APIResolver receives a script's outbound api-call and is expected to
// eventually answer via Pool.Reply.
type APIResolver func(scriptID string, callID uint64, cmd protocol.Command)

// Handlers is the bridge's single main-thread handler table (spec §4.6
// "a single main-thread handler table"); nil entries are allowed.
type Handlers struct {
	APIResolver APIResolver
	LogSink     func(scriptID, level string, args []any)
	ErrorSink   func(scriptID, message string)
	ReadyHook   func(scriptID string)
}

// Pool is the worker host: a fixed set of slots, a placement policy, and a
// watchdog that respawns slots whose heartbeat lapses (spec §4.6).
type Pool struct {
	mu       sync.Mutex
	slots    []*Slot
	handlers Handlers
	outbox   chan SlotMessage

	slotCap        int
	loopBound      int
	recursionBound int
	pingInterval   time.Duration
	timeout        time.Duration

	placement map[string]int // scriptID -> slot index
	nextRR    int

	stop chan struct{}
}

// Option configures a Pool at construction.
type Option func(*Pool)

func WithSlotCount(n int) Option { return func(p *Pool) { p.resize(n) } }
func WithSlotCap(n int) Option   { return func(p *Pool) { p.slotCap = n } }
func WithBounds(loop, recursion int) Option {
	return func(p *Pool) { p.loopBound, p.recursionBound = loop, recursion }
}
func WithWatchdog(ping, timeout time.Duration) Option {
	return func(p *Pool) { p.pingInterval, p.timeout = ping, timeout }
}

func NewPool(handlers Handlers, opts ...Option) *Pool {
	p := &Pool{
		handlers:       handlers,
		outbox:         make(chan SlotMessage, 256),
		slotCap:        defaultSlotCap,
		loopBound:      defaultLoopBoundFallback,
		recursionBound: defaultRecursionBoundFallback,
		pingInterval:   defaultPingInterval,
		timeout:        defaultTimeout,
		placement:      make(map[string]int),
		stop:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if len(p.slots) == 0 {
		p.resize(defaultSlotCount)
	}
	go p.bridge()
	go p.watchdog()
	return p
}

func (p *Pool) resize(n int) {
	for i := len(p.slots); i < n; i++ {
		slot := NewSlot(i, p.outbox)
		p.slots = append(p.slots, slot)
		go slot.Run()
	}
}

// Place assigns a script to a slot by round-robin fall-through to the
// least-loaded slot, skipping full slots (spec §4.6). Returns an error if
// every slot is at its cap. ownerID/objectName back the getOwner/getName
// built-ins; the script's own id backs getKey.
func (p *Pool) Place(scriptID, source, ownerID, objectName string) error {
	p.mu.Lock()
	idx, err := p.pickSlot()
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.placement[scriptID] = idx
	p.mu.Unlock()

	p.slots[idx].Send(HostMessage{
		Kind:           HostInit,
		ScriptID:       scriptID,
		Source:         source,
		LoopBound:      p.loopBound,
		RecursionBound: p.recursionBound,
		OwnerID:        ownerID,
		ObjectName:     objectName,
	})
	return nil
}

// pickSlot must be called with p.mu held.
func (p *Pool) pickSlot() (int, error) {
	n := len(p.slots)
	for i := 0; i < n; i++ {
		idx := (p.nextRR + i) % n
		if p.slots[idx].ScriptCount() < p.slotCap {
			p.nextRR = (idx + 1) % n
			return idx, nil
		}
	}
	best, bestCount := -1, p.slotCap+1
	for i, s := range p.slots {
		if c := s.ScriptCount(); c < bestCount {
			best, bestCount = i, c
		}
	}
	if best < 0 || bestCount >= p.slotCap {
		return -1, fmt.Errorf("worker pool: all %d slots full at cap %d", n, p.slotCap)
	}
	return best, nil
}

// Dispatch sends a world event into the slot a script is placed on.
func (p *Pool) Dispatch(scriptID string, ev protocol.Event) {
	p.forScript(scriptID, HostMessage{Kind: HostEvent, ScriptID: scriptID, Event: ev})
}

// Reply answers an outstanding api-call from a script's slot.
func (p *Pool) Reply(scriptID string, resp protocol.CommandResponse) {
	p.forScript(scriptID, HostMessage{Kind: HostAPIResponse, ScriptID: scriptID, Response: resp})
}

// Terminate removes a script from its slot. Idempotent (spec §4.6).
func (p *Pool) Terminate(scriptID string) {
	p.mu.Lock()
	idx, ok := p.placement[scriptID]
	if ok {
		delete(p.placement, scriptID)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	p.slots[idx].Send(HostMessage{Kind: HostTerminate, ScriptID: scriptID})
}

func (p *Pool) forScript(scriptID string, msg HostMessage) {
	p.mu.Lock()
	idx, ok := p.placement[scriptID]
	p.mu.Unlock()
	if !ok {
		return
	}
	p.slots[idx].Send(msg)
}

// bridge demultiplexes every slot's outbound traffic to the handler table
// (spec §4.6 "The bridge demultiplexes slot-outbound messages by script id").
func (p *Pool) bridge() {
	for msg := range p.outbox {
		switch msg.Kind {
		case SlotPong:
			p.mu.Lock()
			if msg.SlotID >= 0 && msg.SlotID < len(p.slots) {
				p.slots[msg.SlotID].lastPong = time.Now()
			}
			p.mu.Unlock()
		case SlotReady:
			if p.handlers.ReadyHook != nil {
				p.handlers.ReadyHook(msg.ScriptID)
			}
		case SlotAPICall:
			if p.handlers.APIResolver != nil {
				p.handlers.APIResolver(msg.ScriptID, msg.CallID, msg.Command)
			}
		case SlotError:
			glog.Error("worker: script error", "scriptId", msg.ScriptID, "slot", msg.SlotID, "error", msg.Err)
			if p.handlers.ErrorSink != nil {
				p.handlers.ErrorSink(msg.ScriptID, msg.Err)
			}
		case SlotLog:
			if p.handlers.LogSink != nil {
				p.handlers.LogSink(msg.ScriptID, msg.Level, msg.LogArgs)
			}
		}
	}
}

// watchdog pings every slot at half the timeout and respawns any slot whose
// lastPong has fallen behind by more than the full timeout, orphaning its
// scripts into error state rather than silently moving them (invariant I5).
func (p *Pool) watchdog() {
	ticker := time.NewTicker(p.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case now := <-ticker.C:
			p.mu.Lock()
			for i, slot := range p.slots {
				slot.Send(HostMessage{Kind: HostPing, Timestamp: now.UnixNano()})
				if !slot.lastPong.IsZero() && now.Sub(slot.lastPong) > p.timeout {
					p.respawn(i)
				}
			}
			p.mu.Unlock()
		}
	}
}

// respawn must be called with p.mu held. Its orphaned scripts' ids are
// reported via the error sink with workerId -1 (spec §4.6); they are never
// reassigned to a different slot.
func (p *Pool) respawn(idx int) {
	old := p.slots[idx]
	var orphans []string
	for scriptID, slotIdx := range p.placement {
		if slotIdx == idx {
			orphans = append(orphans, scriptID)
			delete(p.placement, scriptID)
		}
	}
	old.Stop()

	replacement := NewSlot(idx, p.outbox)
	p.slots[idx] = replacement
	go replacement.Run()

	glog.Warn("worker: slot watchdog timeout, respawning", "slot", idx, "orphanedScripts", len(orphans))
	for _, scriptID := range orphans {
		if p.handlers.ErrorSink != nil {
			p.handlers.ErrorSink(scriptID, "worker slot timed out (workerId=-1)")
		}
	}
}

// Stats is a point-in-time snapshot for internal/metrics (spec domain
// stack: "active slots, queue depth, scripts in error"). QueueDepth is the
// outbox channel's current backlog, not its capacity.
type Stats struct {
	SlotCount   int
	ActiveSlots int
	PlacedCount int
	QueueDepth  int
}

// Stats reads placement under the pool's lock; slot activity is read from
// each slot's own atomic counter rather than its script map, since the
// latter is only safe to touch from the slot's own goroutine or between
// sends.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	active := 0
	for _, s := range p.slots {
		if s.ScriptCount() > 0 {
			active++
		}
	}
	return Stats{
		SlotCount:   len(p.slots),
		ActiveSlots: active,
		PlacedCount: len(p.placement),
		QueueDepth:  len(p.outbox),
	}
}

// Shutdown stops the watchdog and every slot's goroutine.
func (p *Pool) Shutdown() {
	close(p.stop)
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, slot := range p.slots {
		slot.Stop()
	}
}
