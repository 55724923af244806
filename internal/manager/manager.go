// Package manager ties the worker host, timer manager, link bus, and event
// dispatcher into one loadable runtime (spec §4.10). It is the only
// component that knows about all of internal/worker, internal/timers,
// internal/linkbus, and internal/dispatch at once; everything below it
// stays independently testable via injected function types.
package manager

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"glitchscript/internal/dispatch"
	glog "glitchscript/internal/log"
	"glitchscript/internal/lang/codegen"
	"glitchscript/internal/lang/lexer"
	"glitchscript/internal/lang/parser"
	"glitchscript/internal/linkbus"
	"glitchscript/internal/manager/store"
	"glitchscript/internal/protocol"
	"glitchscript/internal/router"
	"glitchscript/internal/sandbox"
	"glitchscript/internal/telemetry"
	"glitchscript/internal/timers"
	"glitchscript/internal/worker"
)

// LoadOptions is the manager's loadScript parameter object (spec §4.10
// `{containerId, linkNumber?, name?, configOverrides?}`). OwnerID is a
// supplement spec.md's distillation left implicit: every container has an
// owning avatar/user distinct from the container id, and the `getOwner`
// built-in (internal/lang/resolver) needs a value to return.
type LoadOptions struct {
	ContainerID     string
	LinkNumber      int
	Name            string
	OwnerID         string
	ConfigOverrides map[string]any
}

// APIResolverFunc is the single host command handler for API methods the
// manager doesn't intercept as a built-in (spec §4.10 "everything else is
// forwarded to the resolver"; spec §4.11 "the router holds a single command
// handler registered by the host"). envelope has already been through
// internal/router, so Command.Type and Command.Args reflect the routed
// command, not the script's raw method name. respond must be called exactly
// once; for a fire-and-forget sync built-in the manager discards whatever is
// passed to it, so an async-unaware implementation can still call
// respond(nil, nil).
type APIResolverFunc func(envelope protocol.CommandEnvelope, respond func(result any, err error))

// asyncCommandNames mirrors internal/worker/runtime.go's async __host list:
// these are the only command types a script is actually suspended
// awaiting, so they're the only ones whose resolution requires a
// Pool.Reply.
var asyncCommandNames = map[protocol.CommandType]bool{
	"sleep": true, "httpRequest": true, "readNotecard": true, "readNotecardLine": true,
	"npcCreate": true, "npcRemove": true, "npcMoveTo": true, "npcSetAnimation": true,
	"npcSay": true, "requestPermissions": true, "rezObject": true,
}

type loadedScript struct {
	source   string
	opts     LoadOptions
	loadedAt time.Time
	state    string // one of ScriptRunning, ScriptError (spec §3 data model)
}

// Script lifecycle states (spec §3 "state ∈ {loading, running, paused,
// terminated, error}"). Paused is not modeled here: this worker host has no
// distinct paused slot state, only placed/terminated, so it is omitted
// rather than faked.
const (
	ScriptRunning = "running"
	ScriptError   = "error"
)

// ScriptStatus is a point-in-time snapshot for getScriptStatus (spec
// §4.11 host adapter facade).
type ScriptStatus struct {
	ScriptID    string
	ContainerID string
	LinkNumber  int
	Name        string
	State       string
	LoadedAt    time.Time
}

// Manager is the spec §4.10 orchestrator. Construct with New, wire
// SetApiResolver/SetLogHandler/SetErrorHandler, then call Start.
type Manager struct {
	store *store.Store

	workerOpts []worker.Option
	timerOpts  []timers.Option
	linkOpts   []linkbus.Option

	loopBound      int
	recursionBound int

	mu      sync.Mutex
	scripts map[string]*loadedScript

	apiResolver  APIResolverFunc
	logHandler   func(scriptID, level string, args []any)
	errorHandler func(scriptID, message string)

	router     *router.Router
	tracer     *telemetry.Tracer
	pool       *worker.Pool
	timerMgr   *timers.Manager
	bus        *linkbus.Bus
	dispatcher *dispatch.Dispatcher
	running    bool
}

// Option configures a Manager at construction.
type Option func(*Manager)

func WithWorkerOptions(opts ...worker.Option) Option {
	return func(m *Manager) { m.workerOpts = append(m.workerOpts, opts...) }
}
func WithTimerOptions(opts ...timers.Option) Option {
	return func(m *Manager) { m.timerOpts = append(m.timerOpts, opts...) }
}
func WithLinkBusOptions(opts ...linkbus.Option) Option {
	return func(m *Manager) { m.linkOpts = append(m.linkOpts, opts...) }
}
func WithTranspileBounds(loop, recursion int) Option {
	return func(m *Manager) { m.loopBound, m.recursionBound = loop, recursion }
}

// New builds a Manager. store may be nil, in which case script source and
// diagnostics are kept in memory only (e.g. a stateless preview session,
// spec §6).
func New(db *store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:          db,
		scripts:        make(map[string]*loadedScript),
		loopBound:      1_000_000,
		recursionBound: 256,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.router = router.New(m.containerOf)
	m.tracer = telemetry.New()
	return m
}

// containerOf is the router's ContainerLookup; it never returns stale data
// since it reads m.scripts directly on every call.
func (m *Manager) containerOf(scriptID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls, ok := m.scripts[scriptID]
	if !ok {
		return ""
	}
	return ls.opts.ContainerID
}

func (m *Manager) SetApiResolver(fn APIResolverFunc)                            { m.apiResolver = fn }
func (m *Manager) SetLogHandler(fn func(scriptID, level string, args []any))     { m.logHandler = fn }
func (m *Manager) SetErrorHandler(fn func(scriptID, message string))            { m.errorHandler = fn }

// Start spawns the worker pool, starts the timer tick loop, and wires the
// link bus and dispatcher to it (spec §4.10 "spawn workers, start timer
// loop").
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}

	m.pool = worker.NewPool(worker.Handlers{
		APIResolver: m.handleAPICall,
		LogSink:     m.handleLog,
		ErrorSink:   m.handleError,
		ReadyHook:   func(string) {},
	}, m.workerOpts...)

	m.timerMgr = timers.NewManager(m.handleTimerFire, m.timerOpts...)

	linkOpts := append([]linkbus.Option{linkbus.WithOnDrop(m.handleLinkDrop)}, m.linkOpts...)
	m.bus = linkbus.New(linkOpts...)
	m.bus.SetDeliver(m.handleLinkDeliver)

	m.dispatcher = dispatch.New(m.isPlaced, func(scriptID string, ev protocol.Event) {
		m.pool.Dispatch(scriptID, ev)
	})

	m.running = true
}

// Stop terminates every worker slot, stops the timer loop, and drops all
// registrations (spec §4.10).
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.pool.Shutdown()
	m.timerMgr.Stop()
	m.scripts = make(map[string]*loadedScript)
	m.running = false
}

// Compile runs source through lex/parse/codegen/sandbox (spec §4.1-4.5)
// without registering or placing anything, so a CLI validate subcommand
// can surface diagnostics without standing up a worker pool. id is used
// only to tag diagnostic locations and need not be a real script id.
func (m *Manager) Compile(source, id, name string) (jsSource string, diags protocol.Diagnostics, err error) {
	tokens, lexErr := lexer.TokenizeAll(strings.NewReader(source), id)
	if lexErr != nil {
		diags.Err("lex", lexErr.Error(), protocol.Location{File: id})
		return "", diags, fmt.Errorf("manager: lex %s: %w", id, lexErr)
	}

	p := parser.New(tokens, id)
	p.CollectMode = true
	prog, parseErr := p.Parse()
	diags = append(diags, p.Diagnostics...)
	if parseErr != nil {
		diags.Err("parse", parseErr.Error(), protocol.Location{File: id})
		return "", diags, fmt.Errorf("manager: parse %s: %w", id, parseErr)
	}
	if diags.HasErrors() {
		return "", diags, fmt.Errorf("manager: %s failed to parse with errors", id)
	}

	gen := codegen.New(&diags, id)
	irProg := gen.Generate(prog, className(name))

	transformer := sandbox.New(&diags, id, m.loopBound, m.recursionBound)
	jsSource = transformer.Transform(irProg)

	if diags.HasErrors() {
		return "", diags, fmt.Errorf("manager: %s failed to transpile with errors", id)
	}
	return jsSource, diags, nil
}

// LoadScript transforms source through the full transpile pipeline (spec
// §4.1-4.5), registers the result with the link bus and dispatcher, and
// places it on a worker slot (spec §4.6). A failed load emits diagnostics
// and returns an error with no scriptId; any partial registration is
// rolled back.
func (m *Manager) LoadScript(source string, opts LoadOptions) (scriptID string, diags protocol.Diagnostics, err error) {
	scriptID = uuid.NewString()

	jsSource, diags, err := m.Compile(source, scriptID, opts.Name)
	if err != nil {
		return "", diags, err
	}

	m.mu.Lock()
	m.scripts[scriptID] = &loadedScript{source: source, opts: opts, loadedAt: time.Now(), state: ScriptRunning}
	m.mu.Unlock()

	m.bus.Register(linkbus.Registration{ScriptID: scriptID, ContainerID: opts.ContainerID, LinkNumber: opts.LinkNumber})
	m.dispatcher.RegisterScript(scriptID, opts.ContainerID)

	if err := m.pool.Place(scriptID, jsSource, opts.OwnerID, opts.Name); err != nil {
		m.releaseRegistration(scriptID)
		return "", diags, fmt.Errorf("manager: place %s: %w", scriptID, err)
	}

	if m.store != nil {
		now := time.Now()
		rec := store.ScriptRecord{
			ScriptID: scriptID, ContainerID: opts.ContainerID, LinkNumber: opts.LinkNumber,
			Name: opts.Name, Source: source, Status: "ready", CreatedAt: now, UpdatedAt: now,
		}
		if err := m.store.SaveScript(rec); err != nil {
			glog.Error("manager: failed to persist script record", "scriptId", scriptID, "error", err)
		}
		if err := m.store.RecordDiagnostics(scriptID, diags, now); err != nil {
			glog.Error("manager: failed to persist diagnostics", "scriptId", scriptID, "error", err)
		}
	}

	return scriptID, diags, nil
}

func className(name string) string {
	if name == "" {
		return "Script"
	}
	var b strings.Builder
	upperNext := true
	for _, r := range name {
		if !isIdentRune(r) {
			upperNext = true
			continue
		}
		if upperNext {
			b.WriteRune(toUpper(r))
			upperNext = false
		} else {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "Script"
	}
	return b.String()
}

func isIdentRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func toUpper(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - ('a' - 'A')
	}
	return r
}

// releaseRegistration must be called without m.mu held; it undoes
// LoadScript's bus/dispatcher/scripts bookkeeping for a load that failed
// to place.
func (m *Manager) releaseRegistration(scriptID string) {
	m.bus.Unregister(scriptID)
	m.dispatcher.UnregisterScript(scriptID)
	m.mu.Lock()
	delete(m.scripts, scriptID)
	m.mu.Unlock()
}

// TerminateScript cancels all future dispatch to scriptID, cleans up the
// dispatcher and link bus, and sends the worker terminate message (spec
// §4.10, §5 Cancellation). Idempotent: terminating an unknown or already
// terminated script is a no-op beyond the cleanup calls, each of which is
// itself idempotent.
func (m *Manager) TerminateScript(scriptID string) {
	m.dispatcher.UnregisterScript(scriptID)
	m.bus.Unregister(scriptID)
	m.timerMgr.ClearAll(scriptID)
	m.pool.Terminate(scriptID)

	m.mu.Lock()
	delete(m.scripts, scriptID)
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.DeleteScript(scriptID); err != nil {
			glog.Error("manager: failed to delete script record", "scriptId", scriptID, "error", err)
		}
	}
}

// ResetScript re-runs LoadScript with the retained original source; the
// new script id replaces the old one everywhere (spec §4.10). Resetting an
// unknown script id is an error.
func (m *Manager) ResetScript(scriptID string) (newScriptID string, diags protocol.Diagnostics, err error) {
	m.mu.Lock()
	ls, ok := m.scripts[scriptID]
	m.mu.Unlock()
	if !ok {
		return "", nil, fmt.Errorf("manager: reset: unknown script %s", scriptID)
	}

	m.TerminateScript(scriptID)
	return m.LoadScript(ls.source, ls.opts)
}

func (m *Manager) isPlaced(scriptID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.scripts[scriptID]
	return ok
}

// ScriptsInError counts loaded scripts currently in the error state (spec
// §4.11, for internal/metrics' "scripts in error" gauge).
func (m *Manager) ScriptsInError() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ls := range m.scripts {
		if ls.state == ScriptError {
			n++
		}
	}
	return n
}

// PoolStats exposes the worker pool's point-in-time snapshot for
// internal/metrics. Returns the zero value if the pool hasn't started yet.
func (m *Manager) PoolStats() worker.Stats {
	m.mu.Lock()
	pool := m.pool
	m.mu.Unlock()
	if pool == nil {
		return worker.Stats{}
	}
	return pool.Stats()
}

// GetScriptStatus reports a loaded script's current snapshot (spec §4.11
// host adapter facade `getScriptStatus`). The second return is false for an
// unknown or already-terminated script id.
func (m *Manager) GetScriptStatus(scriptID string) (ScriptStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls, ok := m.scripts[scriptID]
	if !ok {
		return ScriptStatus{}, false
	}
	return ScriptStatus{
		ScriptID: scriptID, ContainerID: ls.opts.ContainerID, LinkNumber: ls.opts.LinkNumber,
		Name: ls.opts.Name, State: ls.state, LoadedAt: ls.loadedAt,
	}, true
}

// RemoveObject terminates every script registered to containerID (spec
// §4.11 host adapter facade `removeObject`). Returns the terminated script
// ids; removing a container with no scripts is a no-op that returns nil.
func (m *Manager) RemoveObject(containerID string) []string {
	m.mu.Lock()
	var ids []string
	for scriptID, ls := range m.scripts {
		if ls.opts.ContainerID == containerID {
			ids = append(ids, scriptID)
		}
	}
	m.mu.Unlock()

	for _, scriptID := range ids {
		m.TerminateScript(scriptID)
	}
	return ids
}

// DispatchWorldEvent injects a host-originated event (spec §4.11 host
// adapter facade `dispatchWorldEvent`).
func (m *Manager) DispatchWorldEvent(env protocol.EventEnvelope) {
	_, span := m.tracer.EventSpan(context.Background(), env)
	defer telemetry.End(span, nil)
	m.dispatcher.Dispatch(env)
}

// handleAPICall is the worker host's single APIResolver handler (spec
// §4.6). Built-in API methods (timer set/clear, listen register/remove,
// link message send, log, script reset) are intercepted here and never
// reach the host resolver (spec §4.10); everything else is forwarded to
// the installed APIResolverFunc.
func (m *Manager) handleAPICall(scriptID string, callID uint64, cmd protocol.Command) {
	argv, _ := cmd.Args["argv"].([]any)

	switch cmd.Type {
	case "setTimerEvent":
		interval := floatAt(argv, 0, 0)
		id := stringAt(argv, 1, "")
		m.timerMgr.Set(scriptID, id, interval, interval > 0)
		return
	case "listen":
		channel := int(floatAt(argv, 0, 0))
		name := stringAt(argv, 1, "")
		id := stringAt(argv, 2, "")
		m.dispatcher.ListenRegister(scriptID, channel, name, id)
		return
	case "listenRemove":
		handle := int(floatAt(argv, 0, 0))
		m.dispatcher.ListenRemove(handle)
		return
	case "sendLinkMessage":
		link := protocol.LinkTarget(int(floatAt(argv, 0, 0)))
		num := int(floatAt(argv, 1, 0))
		str := stringAt(argv, 2, "")
		id := stringAt(argv, 3, "")
		m.bus.Send(scriptID, link, num, str, id)
		return
	case "log":
		level := stringAt(argv, 0, "info")
		var rest []any
		if len(argv) > 1 {
			rest = argv[1:]
		}
		m.handleLog(scriptID, level, rest)
		return
	case "resetScript":
		go func() {
			if _, _, err := m.ResetScript(scriptID); err != nil {
				glog.Error("manager: self-reset failed", "scriptId", scriptID, "error", err)
			}
		}()
		return
	}

	envelope := m.router.Route(scriptID, string(cmd.Type), argv)
	_, span := m.tracer.CommandSpan(context.Background(), envelope)

	if !asyncCommandNames[cmd.Type] {
		if m.apiResolver != nil {
			m.apiResolver(envelope, func(any, error) {})
		}
		telemetry.End(span, nil)
		return
	}

	if m.apiResolver == nil {
		telemetry.End(span, errNoResolver)
		m.pool.Reply(scriptID, protocol.CommandResponse{ScriptID: scriptID, CallID: callID, Error: "no api resolver installed"})
		return
	}
	m.apiResolver(envelope, func(result any, resErr error) {
		defer telemetry.End(span, resErr)
		resp := protocol.CommandResponse{ScriptID: scriptID, CallID: callID}
		if resErr != nil {
			resp.Error = resErr.Error()
		} else {
			resp.Result = result
		}
		m.pool.Reply(scriptID, resp)
	})
}

var errNoResolver = fmt.Errorf("manager: no api resolver installed")

func (m *Manager) handleLog(scriptID, level string, args []any) {
	if m.logHandler != nil {
		m.logHandler(scriptID, level, args)
	}
}

func (m *Manager) handleError(scriptID, message string) {
	m.mu.Lock()
	if ls, ok := m.scripts[scriptID]; ok {
		ls.state = ScriptError
	}
	m.mu.Unlock()
	if m.errorHandler != nil {
		m.errorHandler(scriptID, message)
	}
}

func (m *Manager) handleTimerFire(scriptID, timerID string) {
	m.dispatcher.Dispatch(protocol.EventEnvelope{
		TargetScriptID: scriptID,
		Event:          protocol.NewEvent(protocol.EventTimer, map[string]any{"timerId": timerID}),
	})
}

func (m *Manager) handleLinkDeliver(recipientScriptID string, msg protocol.LinkMessage) {
	m.dispatcher.Dispatch(protocol.EventEnvelope{
		TargetScriptID: recipientScriptID,
		Event: protocol.NewEvent(protocol.EventLinkMessage, map[string]any{
			"senderLink": msg.SenderLink, "num": msg.Num, "str": msg.Str, "id": msg.ID,
		}),
	})
}

func (m *Manager) handleLinkDrop(recipientScriptID string, dropped protocol.LinkMessage) {
	if m.store == nil {
		return
	}
	m.mu.Lock()
	ls, ok := m.scripts[dropped.SenderScriptID]
	m.mu.Unlock()
	containerID := ""
	if ok {
		containerID = ls.opts.ContainerID
	}
	if err := m.store.RecordDeadLetter(containerID, recipientScriptID, dropped, time.Now()); err != nil {
		glog.Error("manager: failed to persist dead letter", "recipient", recipientScriptID, "error", err)
	}
}

func floatAt(argv []any, i int, def float64) float64 {
	if i >= len(argv) {
		return def
	}
	if f, ok := argv[i].(float64); ok {
		return f
	}
	return def
}

func stringAt(argv []any, i int, def string) string {
	if i >= len(argv) {
		return def
	}
	if s, ok := argv[i].(string); ok {
		return s
	}
	return def
}
