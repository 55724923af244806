package worker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"glitchscript/internal/protocol"
)

const simpleStateEntryScript = `
class Greeter extends __RuntimeBase {
  constructor() {
    super();
    this.greeted = 0;
  }
  get states() {
    return {
      default: {
        state_entry: function() {
          this.greeted = this.greeted + 1;
          __host.say(["hello " + this.greeted]);
        }
      }
    };
  }
}
__exports.default = Greeter;
`

func TestPoolPlaceAndDispatchInvokesHandler(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var calls []protocol.Command
	ready := make(chan string, 1)

	pool := NewPool(Handlers{
		APIResolver: func(scriptID string, callID uint64, cmd protocol.Command) {
			mu.Lock()
			calls = append(calls, cmd)
			mu.Unlock()
		},
		ReadyHook: func(scriptID string) { ready <- scriptID },
	}, WithSlotCount(1))
	defer pool.Shutdown()

	require.NoError(t, pool.Place("script-1", simpleStateEntryScript, "owner-1", "Greeter Prim"))

	select {
	case id := <-ready:
		require.Equal(t, "script-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for script ready")
	}

	pool.Dispatch("script-1", protocol.NewEvent(protocol.EventStateEntry, nil))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	require.Equal(t, protocol.CmdSay, calls[0].Type)
	mu.Unlock()
}

func TestPoolPlaceRefusesWhenEverySlotIsFull(t *testing.T) {
	t.Parallel()

	pool := NewPool(Handlers{}, WithSlotCount(1), WithSlotCap(1))
	defer pool.Shutdown()

	require.NoError(t, pool.Place("s1", simpleStateEntryScript, "owner", "obj"))
	// The second placement's slot count check races the first script's
	// async init; give the slot a moment to register it before probing
	// the cap.
	require.Eventually(t, func() bool {
		return pool.slots[0].ScriptCount() == 1
	}, time.Second, 5*time.Millisecond)

	err := pool.Place("s2", simpleStateEntryScript, "owner", "obj")
	require.Error(t, err)
}

func TestPoolTerminateIsIdempotent(t *testing.T) {
	t.Parallel()

	pool := NewPool(Handlers{}, WithSlotCount(1))
	defer pool.Shutdown()

	require.NoError(t, pool.Place("s1", simpleStateEntryScript, "owner", "obj"))
	pool.Terminate("s1")
	pool.Terminate("s1") // no panic, no error return, nothing to assert but survival
}

func TestLinkTargetIsSentinel(t *testing.T) {
	t.Parallel()

	require.True(t, protocol.LinkSet.IsSentinel())
	require.True(t, protocol.LinkAllChildren.IsSentinel())
	require.False(t, protocol.LinkTarget(0).IsSentinel())
	require.False(t, protocol.LinkTarget(3).IsSentinel())
}
