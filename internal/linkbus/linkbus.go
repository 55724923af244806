// Package linkbus routes numeric+string+key messages between scripts in the
// same container by the six target-link modes (spec §4.8).
package linkbus

import (
	"sync"

	"glitchscript/internal/protocol"
)

const defaultQueueBound = 64

// DropPolicy decides which message to discard when a recipient queue is at
// its bound. Only DropOldest is implemented (spec §9 Open Question,
// resolved as drop-oldest); the seam exists so a future workload-driven
// revision is a one-line change.
type DropPolicy int

const (
	DropOldest DropPolicy = iota
)

// Registration is what a script's link-bus membership looks like (spec
// §4.8 "Registrations carry {scriptId, containerId, linkNumber}").
type Registration struct {
	ScriptID    string
	ContainerID string
	LinkNumber  int
}

// Deliver receives one routed message for a single recipient script.
type Deliver func(recipientScriptID string, msg protocol.LinkMessage)

// Bus owns script registrations and a bounded per-script FIFO queue for
// messages awaiting a delivery handler (spec §4.8 "If no delivery handler
// has been registered yet, messages accumulate up to the cap"). Grounded
// on the teacher's registration-map-plus-mutex shape
// (internal/scripting/triggers/manager.go); the bounded ring buffer per
// queue is a bespoke stdlib structure; the pack carries no generic
// bounded-queue dependency to repurpose for one FIFO shape.
type Bus struct {
	mu      sync.Mutex
	byID    map[string]Registration
	queues  map[string][]protocol.LinkMessage
	bound   int
	policy  DropPolicy
	deliver Deliver // nil until a delivery handler is registered
	onDrop  func(recipientScriptID string, dropped protocol.LinkMessage)
}

// Option configures a Bus at construction.
type Option func(*Bus)

func WithBound(n int) Option { return func(b *Bus) { b.bound = n } }

// WithOnDrop installs a hook invoked with the message a drop-oldest
// overflow discards, so a caller (internal/manager) can keep a
// dead-letter record of it.
func WithOnDrop(fn func(recipientScriptID string, dropped protocol.LinkMessage)) Option {
	return func(b *Bus) { b.onDrop = fn }
}

func New(opts ...Option) *Bus {
	b := &Bus{
		byID:   make(map[string]Registration),
		queues: make(map[string][]protocol.LinkMessage),
		bound:  defaultQueueBound,
		policy: DropOldest,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetDeliver installs the delivery handler, flushing anything already
// queued for scripts the handler can reach.
func (b *Bus) SetDeliver(deliver Deliver) {
	b.mu.Lock()
	b.deliver = deliver
	pending := b.queues
	b.queues = make(map[string][]protocol.LinkMessage)
	b.mu.Unlock()

	for scriptID, msgs := range pending {
		for _, msg := range msgs {
			deliver(scriptID, msg)
		}
	}
}

// Register adds or replaces a script's link-bus membership.
func (b *Bus) Register(reg Registration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byID[reg.ScriptID] = reg
}

// Unregister removes a script's membership and drops its pending queue,
// called on termination.
func (b *Bus) Unregister(scriptID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.byID, scriptID)
	delete(b.queues, scriptID)
}

// Send resolves the sender's registration and the recipient set from link,
// then enqueues (or delivers directly) to every recipient (spec §4.8). A
// sender that isn't registered is a silent no-op.
func (b *Bus) Send(senderScriptID string, link protocol.LinkTarget, num int, str, id string) {
	b.mu.Lock()
	sender, ok := b.byID[senderScriptID]
	if !ok {
		b.mu.Unlock()
		return
	}
	recipients := b.recipients(sender, link)
	msg := protocol.LinkMessage{
		SenderScriptID: senderScriptID,
		SenderLink:     sender.LinkNumber,
		Num:            num,
		Str:            str,
		ID:             id,
	}
	deliver := b.deliver
	for _, r := range recipients {
		if deliver == nil {
			b.enqueueLocked(r, msg)
		}
	}
	b.mu.Unlock()

	if deliver != nil {
		for _, r := range recipients {
			deliver(r, msg)
		}
	}
}

// recipients must be called with b.mu held.
func (b *Bus) recipients(sender Registration, link protocol.LinkTarget) []string {
	var out []string
	for scriptID, reg := range b.byID {
		if reg.ContainerID != sender.ContainerID {
			continue
		}
		if matchesLink(reg, sender, link) {
			out = append(out, scriptID)
		}
	}
	return out
}

func matchesLink(reg, sender Registration, link protocol.LinkTarget) bool {
	switch link {
	case protocol.LinkSet:
		return true
	case protocol.LinkThis:
		return reg.LinkNumber == sender.LinkNumber
	case protocol.LinkRoot:
		return reg.LinkNumber == 0
	case protocol.LinkAllOthers:
		return reg.LinkNumber != sender.LinkNumber
	case protocol.LinkAllChildren:
		return reg.LinkNumber > 1
	default:
		return reg.LinkNumber == int(link)
	}
}

// enqueueLocked must be called with b.mu held. Drop-oldest on overflow
// (spec §9 Open Question resolution).
func (b *Bus) enqueueLocked(scriptID string, msg protocol.LinkMessage) {
	q := b.queues[scriptID]
	if len(q) >= b.bound {
		if b.onDrop != nil {
			b.onDrop(scriptID, q[0])
		}
		q = q[1:]
	}
	b.queues[scriptID] = append(q, msg)
}

// Drain removes and returns a script's queued messages, oldest first. Used
// when a delivery handler attaches mid-flight for a single script (e.g. a
// script reset) rather than the whole bus.
func (b *Bus) Drain(scriptID string) []protocol.LinkMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queues[scriptID]
	delete(b.queues, scriptID)
	return q
}
