// Package dispatch converts world events into worker event messages
// targeting the right handler name on the right script(s) (spec §4.9).
package dispatch

import (
	"sync"

	glog "glitchscript/internal/log"
	"glitchscript/internal/protocol"
)

// Placed reports whether a script is currently loaded, for filtering a
// container broadcast down to live scripts.
type Placed func(scriptID string) bool

// Send delivers one event to one script's worker slot (internal/worker's
// Pool.Dispatch, injected so this package doesn't import internal/worker).
type Send func(scriptID string, ev protocol.Event)

// listenRegistration is one active listen() handle (spec §4.9 "the
// dispatcher also owns listen-handle registration").
type listenRegistration struct {
	handle   int
	scriptID string
	channel  int
	name     string
	id       string
}

// sensorRegistration is one active sensor/sensorRepeat request.
type sensorRegistration struct {
	scriptID string
	repeat   bool
}

// Dispatcher owns per-container script membership, listen-handle and
// sensor-request lifetime, and routes a world event to the right
// handler(s). Grounded on the teacher's registration-map-plus-mutex shape
// (internal/scripting/triggers/manager.go), generalized from a single flat
// trigger table to the container/script/listen-handle hierarchy an event
// dispatcher needs.
type Dispatcher struct {
	mu sync.Mutex

	containers map[string]map[string]bool // containerID -> set of scriptIDs
	scriptOf   map[string]string          // scriptID -> containerID

	listens    map[int]*listenRegistration
	nextHandle int

	sensors map[string]*sensorRegistration // scriptID -> active sensor

	placed Placed
	send   Send
}

func New(placed Placed, send Send) *Dispatcher {
	return &Dispatcher{
		containers: make(map[string]map[string]bool),
		scriptOf:   make(map[string]string),
		listens:    make(map[int]*listenRegistration),
		sensors:    make(map[string]*sensorRegistration),
		placed:     placed,
		send:       send,
	}
}

// RegisterScript adds a script to its container's membership set.
func (d *Dispatcher) RegisterScript(scriptID, containerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := d.containers[containerID]
	if !ok {
		set = make(map[string]bool)
		d.containers[containerID] = set
	}
	set[scriptID] = true
	d.scriptOf[scriptID] = containerID
}

// UnregisterScript removes a script from its container and drops every
// listen handle and sensor request it owns (spec §4.10 terminateScript
// "dispatcher cleanup").
func (d *Dispatcher) UnregisterScript(scriptID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if containerID, ok := d.scriptOf[scriptID]; ok {
		delete(d.containers[containerID], scriptID)
		if len(d.containers[containerID]) == 0 {
			delete(d.containers, containerID)
		}
	}
	delete(d.scriptOf, scriptID)
	delete(d.sensors, scriptID)
	for handle, reg := range d.listens {
		if reg.scriptID == scriptID {
			delete(d.listens, handle)
		}
	}
}

// ListenRegister installs a listen handle and returns its opaque handle id.
func (d *Dispatcher) ListenRegister(scriptID string, channel int, name, id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	handle := d.nextHandle
	d.nextHandle++
	d.listens[handle] = &listenRegistration{handle: handle, scriptID: scriptID, channel: channel, name: name, id: id}
	return handle
}

// ListenRemove drops a listen handle; an unknown handle is a no-op.
func (d *Dispatcher) ListenRemove(handle int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.listens, handle)
}

// SensorRequest records (or replaces) a script's active sensor.
func (d *Dispatcher) SensorRequest(scriptID string, repeat bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sensors[scriptID] = &sensorRegistration{scriptID: scriptID, repeat: repeat}
}

// SensorRemove clears a script's active sensor; a script with none is a
// no-op.
func (d *Dispatcher) SensorRemove(scriptID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sensors, scriptID)
}

// Dispatch routes an incoming world event (spec §4.9). Broadcast vs.
// single-script delivery is chosen by envelope shape (spec §3): an empty
// TargetScriptID broadcasts to every placed script in the container.
// Unknown event types are logged and dropped.
func (d *Dispatcher) Dispatch(env protocol.EventEnvelope) {
	if _, ok := protocol.HandlerName(env.Event.Type); !ok {
		glog.Warn("dispatch: unknown event type, dropping", "type", env.Event.Type)
		return
	}
	if !env.Broadcast() {
		if d.placed(env.TargetScriptID) {
			d.send(env.TargetScriptID, env.Event)
		}
		return
	}

	d.mu.Lock()
	scriptIDs := make([]string, 0, len(d.containers[env.TargetObjectID]))
	for scriptID := range d.containers[env.TargetObjectID] {
		scriptIDs = append(scriptIDs, scriptID)
	}
	d.mu.Unlock()

	for _, scriptID := range scriptIDs {
		if d.placed(scriptID) {
			d.send(scriptID, env.Event)
		}
	}
}

// DispatchListen routes a listen() event to every listen handle whose
// channel and filters match, within the emitting object's container.
func (d *Dispatcher) DispatchListen(containerID string, channel int, name, id, message string) {
	d.mu.Lock()
	var targets []string
	for _, reg := range d.listens {
		if d.scriptOf[reg.scriptID] != containerID {
			continue
		}
		if reg.channel != channel {
			continue
		}
		if reg.name != "" && reg.name != name {
			continue
		}
		if reg.id != "" && reg.id != id {
			continue
		}
		targets = append(targets, reg.scriptID)
	}
	d.mu.Unlock()

	ev := protocol.NewEvent(protocol.EventListen, map[string]any{
		"channel": channel, "name": name, "id": id, "message": message,
	})
	for _, scriptID := range targets {
		if d.placed(scriptID) {
			d.send(scriptID, ev)
		}
	}
}
