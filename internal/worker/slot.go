package worker

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"

	glog "glitchscript/internal/log"
	"glitchscript/internal/protocol"
)

// ScriptState mirrors the lifecycle states a loaded script can be in
// (spec §4.10): a script stays in error until an explicit reset.
type ScriptState string

const (
	StateReady      ScriptState = "ready"
	StateRunning    ScriptState = "running"
	StateError      ScriptState = "error"
	StateTerminated ScriptState = "terminated"
)

type pendingCall struct {
	resolve func(any)
	reject  func(any)
}

// scriptRuntime is one loaded script's isolated realm. The event loop is
// never Start()ed in the background; every touch of it goes through Run()
// from the slot's own goroutine, so a promise a host response resolves
// drains through any pending `await` continuations before Run returns,
// with no separate goroutine racing this one (spec §4.6 "execution
// thread/isolate" per slot, generalized from the teacher's
// goroutine-per-script VM.Execute() pump in internal/scripting/engine.go to
// goroutine-per-slot since a slot, not a script, is the unit of isolation
// here).
type scriptRuntime struct {
	id       string
	loop     *eventloop.EventLoop
	instance *goja.Object

	state          ScriptState
	currentState   string
	pendingState   string
	callDepth      int
	loopIters      int
	loopBound      int
	recursionBound int

	nextCallID uint64
	pending    map[uint64]pendingCall

	lastErr error
}

// Slot owns one execution isolate and the scripts currently placed on it
// (spec §4.6). Every inbox message is handled on a single goroutine, so no
// locking is needed around a script's runtime. scriptCount mirrors
// len(scripts) but is updated atomically, since ScriptCount() is read from
// the pool's goroutine (placement, Stats()) while scripts itself is only
// ever touched from this slot's own goroutine.
type Slot struct {
	id      int
	inbox   chan HostMessage
	outbox  chan<- SlotMessage
	scripts map[string]*scriptRuntime

	scriptCount atomic.Int32

	lastPong time.Time
	done     chan struct{}
}

func NewSlot(id int, outbox chan<- SlotMessage) *Slot {
	return &Slot{
		id:      id,
		inbox:   make(chan HostMessage, 64),
		outbox:  outbox,
		scripts: make(map[string]*scriptRuntime),
		done:    make(chan struct{}),
	}
}

// ScriptCount reports how many scripts are currently placed on this slot.
// Safe to call from any goroutine: it reads an atomic counter the slot's
// own goroutine maintains, never the scripts map itself.
func (s *Slot) ScriptCount() int { return int(s.scriptCount.Load()) }

// Send enqueues a host message for this slot's goroutine.
func (s *Slot) Send(msg HostMessage) { s.inbox <- msg }

// Run is the slot's single goroutine; it exits when inbox is closed.
func (s *Slot) Run() {
	for msg := range s.inbox {
		s.handle(msg)
	}
	close(s.done)
}

// Stop closes the inbox, letting Run drain and exit.
func (s *Slot) Stop() { close(s.inbox) }

func (s *Slot) handle(msg HostMessage) {
	switch msg.Kind {
	case HostPing:
		s.outbox <- SlotMessage{Kind: SlotPong, SlotID: s.id, Timestamp: msg.Timestamp}
	case HostInit:
		s.handleInit(msg)
	case HostEvent:
		s.handleEvent(msg)
	case HostAPIResponse:
		s.handleAPIResponse(msg)
	case HostTerminate:
		s.handleTerminate(msg)
	}
}

func (s *Slot) handleInit(msg HostMessage) {
	rt := &scriptRuntime{
		id:             msg.ScriptID,
		loopBound:      msg.LoopBound,
		recursionBound: msg.RecursionBound,
		pending:        make(map[uint64]pendingCall),
		currentState:   "default",
	}
	rt.loop = eventloop.NewEventLoop()

	var loadErr error
	rt.loop.Run(func(vm *goja.Runtime) {
		s.installEndowments(vm, rt)

		if _, err := vm.RunString(runtimePrelude); err != nil {
			loadErr = fmt.Errorf("runtime prelude: %w", err)
			return
		}
		if hostVal := vm.Get("__host"); hostVal != nil && !goja.IsUndefined(hostVal) {
			hostObj := hostVal.ToObject(vm)
			hostObj.Set("key", msg.ScriptID)
			hostObj.Set("owner", msg.OwnerID)
			hostObj.Set("name", msg.ObjectName)
		}

		exports := vm.NewObject()
		vm.Set("__exports", exports)
		if _, err := vm.RunString(msg.Source); err != nil {
			loadErr = fmt.Errorf("load: %w", err)
			return
		}

		ctor, ok := goja.AssertConstructor(exports.Get("default"))
		if !ok {
			loadErr = fmt.Errorf("transformed source has no default export")
			return
		}
		instance, err := ctor(nil)
		if err != nil {
			loadErr = fmt.Errorf("construct: %w", err)
			return
		}
		rt.instance = instance
	})

	if loadErr != nil {
		s.fail(rt, loadErr)
		return
	}
	rt.state = StateReady
	s.scripts[rt.id] = rt
	s.scriptCount.Store(int32(len(s.scripts)))
	s.outbox <- SlotMessage{Kind: SlotReady, SlotID: s.id, ScriptID: rt.id}
}

// installEndowments binds the native Go functions the runtime prelude and
// sandbox-injected guards call into. Kept minimal and closed: nothing here
// reaches outside this *goja.Runtime (spec §4.5 step 4, global blocklist).
func (s *Slot) installEndowments(vm *goja.Runtime, rt *scriptRuntime) {
	vm.Set("__checkLoop", func() {
		rt.loopIters++
		if rt.loopIters > rt.loopBound {
			panic(vm.NewGoError(fmt.Errorf("loop budget exceeded (%d iterations)", rt.loopBound)))
		}
	})
	vm.Set("__enterCall", func(label string) {
		if rt.callDepth == 0 {
			rt.loopIters = 0
		}
		rt.callDepth++
		if rt.callDepth > rt.recursionBound {
			panic(vm.NewGoError(fmt.Errorf("recursion budget exceeded in %s (%d frames)", label, rt.recursionBound)))
		}
	})
	vm.Set("__exitCall", func(label string) {
		if rt.callDepth > 0 {
			rt.callDepth--
		}
	})

	vm.Set("__hostChangeState", func(name string) {
		rt.pendingState = name
	})
	vm.Set("__hostJump", func(label string) {
		panic(vm.NewGoError(fmt.Errorf("unsupported jump target: %s", label)))
	})

	vm.Set("__nativeSubstring", func(s string, start, end int) string {
		return substringOp(s, start, end)
	})
	vm.Set("__nativeDeleteSubString", func(s string, start, end int) string {
		return deleteSubStringOp(s, start, end)
	})

	vm.Set("__invokeSync", func(name string, args []any) {
		s.sendAPICall(rt, name, args, 0)
	})
	vm.Set("__invokeAsync", func(name string, args []any) *goja.Promise {
		promise, resolve, reject := vm.NewPromise()
		callID := rt.nextCallID
		rt.nextCallID++
		rt.pending[callID] = pendingCall{resolve: resolve, reject: reject}
		s.sendAPICall(rt, name, args, callID)
		return promise
	})
}

func (s *Slot) sendAPICall(rt *scriptRuntime, name string, args []any, callID uint64) {
	cmd := protocol.NewCommand(protocol.CommandType(name), map[string]any{"argv": args})
	s.outbox <- SlotMessage{Kind: SlotAPICall, SlotID: s.id, ScriptID: rt.id, CallID: callID, Command: cmd}
}

func (s *Slot) handleAPIResponse(msg HostMessage) {
	rt, ok := s.scripts[msg.ScriptID]
	if !ok {
		return
	}
	pc, ok := rt.pending[msg.Response.CallID]
	if !ok {
		return
	}
	delete(rt.pending, msg.Response.CallID)
	s.withRecover(rt, func() {
		rt.loop.Run(func(*goja.Runtime) {
			if msg.Response.Error != "" {
				pc.reject(msg.Response.Error)
			} else {
				pc.resolve(msg.Response.Result)
			}
		})
	})
}

// handleEvent looks up the current state's handler for the event and, if
// present, invokes it. A changeState call during the handler is applied
// after the handler returns, never mid-handler (spec §4.4 NodeStateChange
// lowers to `return __host.changeState(...)`, so the handler body always
// exits immediately after requesting one).
func (s *Slot) handleEvent(msg HostMessage) {
	rt, ok := s.scripts[msg.ScriptID]
	if !ok {
		return
	}
	if rt.state != StateReady && rt.state != StateRunning {
		return
	}
	name, ok := protocol.HandlerName(msg.Event.Type)
	if !ok {
		glog.Warn("worker: unmapped event type", "type", msg.Event.Type, "scriptId", rt.id)
		return
	}
	s.withRecover(rt, func() {
		rt.loop.Run(func(vm *goja.Runtime) {
			states := rt.instance.Get("states")
			if states == nil || goja.IsUndefined(states) {
				return
			}
			handlerSet := states.ToObject(vm).Get(rt.currentState)
			if handlerSet == nil || goja.IsUndefined(handlerSet) {
				return
			}
			handlerVal := handlerSet.ToObject(vm).Get(name)
			if handlerVal == nil || goja.IsUndefined(handlerVal) {
				return
			}
			fn, ok := goja.AssertFunction(handlerVal)
			if !ok {
				return
			}
			args := eventArgs(vm, msg.Event)
			rt.state = StateRunning
			_, err := fn(rt.instance, args...)
			rt.state = StateReady
			if err != nil {
				panic(err)
			}
		})
	})
	if rt.pendingState != "" {
		rt.currentState, rt.pendingState = rt.pendingState, ""
	}
}

// eventArgs builds the positional argument list for an event handler call
// from the event's fixed per-type template (protocol.ArgOrder), not from
// map iteration: ev.Args is a map and Go gives no ordering guarantee over
// it, but a handler like onListen(channel, name, id, message) depends on
// receiving its arguments in exactly that order.
func eventArgs(vm *goja.Runtime, ev protocol.Event) []goja.Value {
	order := protocol.ArgOrder(ev.Type)
	vals := make([]goja.Value, len(order))
	for i, k := range order {
		vals[i] = vm.ToValue(ev.Args[k])
	}
	return vals
}

func (s *Slot) handleTerminate(msg HostMessage) {
	rt, ok := s.scripts[msg.ScriptID]
	if !ok {
		return
	}
	rt.state = StateTerminated
	delete(s.scripts, msg.ScriptID)
	s.scriptCount.Store(int32(len(s.scripts)))
}

// startIndex clamps an exclusive/start-style index to [0,n]: negative
// values count from the end of the string (spec §4.2).
func startIndex(i, n int) int {
	if i < 0 {
		i += n
	}
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

// endIndex clamps an inclusive-end index to [-1,n-1]: -1 means "before the
// first rune" (so end+1 == 0), n-1 is the last valid rune.
func endIndex(i, n int) int {
	if i < 0 {
		i += n
	}
	if i < 0 {
		return -1
	}
	if i > n-1 {
		return n - 1
	}
	return i
}

// substringOp implements the inclusive-end, wrap-around substring helper
// (spec §4.2): negative indices count from the end, and start > end means
// "concat the suffix from start with the prefix up to end inclusive".
func substringOp(src string, start, end int) string {
	r := []rune(src)
	n := len(r)
	if n == 0 {
		return ""
	}
	s, e := startIndex(start, n), endIndex(end, n)
	if s > e {
		return string(r[s:n]) + string(r[:e+1])
	}
	return string(r[s : e+1])
}

// deleteSubStringOp implements the inclusive-end, wrap-around
// delete-substring helper (spec §4.2): start > end deletes the outer
// range (prefix and suffix), keeping the middle.
func deleteSubStringOp(src string, start, end int) string {
	r := []rune(src)
	n := len(r)
	if n == 0 {
		return ""
	}
	s, e := startIndex(start, n), endIndex(end, n)
	if s > e {
		lo, hi := e+1, s
		if lo > hi {
			return ""
		}
		return string(r[lo:hi])
	}
	return string(r[:s]) + string(r[e+1:])
}

func (s *Slot) fail(rt *scriptRuntime, err error) {
	rt.state = StateError
	rt.lastErr = err
	s.outbox <- SlotMessage{Kind: SlotError, SlotID: s.id, ScriptID: rt.id, Err: err.Error()}
}

// withRecover turns a goja panic (the loop/recursion guards panic rather
// than return an error, since they fire from deep inside generated
// expressions) into an error-sink message instead of crashing the slot.
func (s *Slot) withRecover(rt *scriptRuntime, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			rt.state = StateError
			s.outbox <- SlotMessage{Kind: SlotError, SlotID: s.id, ScriptID: rt.id, Err: fmt.Sprintf("%v", r)}
		}
	}()
	fn()
}
