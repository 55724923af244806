// Package worker hosts isolated script execution slots and the bridge that
// demultiplexes their traffic back to the rest of the daemon (spec §4.6).
package worker

import "glitchscript/internal/protocol"

// HostMsgKind is a host-to-slot message kind.
type HostMsgKind string

const (
	HostInit        HostMsgKind = "init"
	HostEvent       HostMsgKind = "event"
	HostAPIResponse HostMsgKind = "api-response"
	HostTerminate   HostMsgKind = "terminate"
	HostPing        HostMsgKind = "ping"
)

// SlotMsgKind is a slot-to-host message kind.
type SlotMsgKind string

const (
	SlotAPICall SlotMsgKind = "api-call"
	SlotReady   SlotMsgKind = "ready"
	SlotError   SlotMsgKind = "error"
	SlotLog     SlotMsgKind = "log"
	SlotPong    SlotMsgKind = "pong"
)

// HostMessage is a message sent from the pool down into a slot. Every kind
// except ping carries a ScriptID (spec §4.6 "Each message carries the
// script id except ping/pong").
type HostMessage struct {
	Kind     HostMsgKind
	ScriptID string

	// HostInit
	Source         string // transformed source from internal/sandbox
	LoopBound      int
	RecursionBound int
	OwnerID        string
	ObjectName     string

	// HostEvent
	Event protocol.Event

	// HostAPIResponse
	Response protocol.CommandResponse

	// HostPing
	Timestamp int64
}

// SlotMessage is a message sent from a slot's goroutine back up to the pool.
type SlotMessage struct {
	Kind     SlotMsgKind
	SlotID   int
	ScriptID string

	// SlotAPICall
	CallID  uint64
	Command protocol.Command

	// SlotError
	Err string

	// SlotLog
	Level   string
	LogArgs []any

	// SlotPong
	Timestamp int64
}
