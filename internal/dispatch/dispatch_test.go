package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"glitchscript/internal/protocol"
)

func alwaysPlaced(string) bool { return true }

func TestDispatchBroadcastReachesEveryScriptInContainer(t *testing.T) {
	t.Parallel()

	var delivered []string
	d := New(alwaysPlaced, func(scriptID string, ev protocol.Event) { delivered = append(delivered, scriptID) })

	d.RegisterScript("s1", "c1")
	d.RegisterScript("s2", "c1")
	d.RegisterScript("s3", "c2")

	d.Dispatch(protocol.EventEnvelope{
		TargetObjectID: "c1",
		Event:          protocol.NewEvent(protocol.EventTouchStart, nil),
	})

	require.ElementsMatch(t, []string{"s1", "s2"}, delivered)
}

func TestDispatchSingleScriptTargetsOnlyThatScript(t *testing.T) {
	t.Parallel()

	var delivered []string
	d := New(alwaysPlaced, func(scriptID string, ev protocol.Event) { delivered = append(delivered, scriptID) })
	d.RegisterScript("s1", "c1")
	d.RegisterScript("s2", "c1")

	d.Dispatch(protocol.EventEnvelope{
		TargetObjectID: "c1",
		TargetScriptID: "s2",
		Event:          protocol.NewEvent(protocol.EventTimer, nil),
	})

	require.Equal(t, []string{"s2"}, delivered)
}

func TestDispatchUnknownEventTypeIsDropped(t *testing.T) {
	t.Parallel()

	var delivered []string
	d := New(alwaysPlaced, func(scriptID string, ev protocol.Event) { delivered = append(delivered, scriptID) })
	d.RegisterScript("s1", "c1")

	d.Dispatch(protocol.EventEnvelope{TargetObjectID: "c1", Event: protocol.Event{Type: "bogus"}})
	require.Empty(t, delivered)
}

func TestUnregisterScriptDropsListenHandles(t *testing.T) {
	t.Parallel()

	var delivered []string
	d := New(alwaysPlaced, func(scriptID string, ev protocol.Event) { delivered = append(delivered, scriptID) })
	d.RegisterScript("s1", "c1")
	d.ListenRegister("s1", 0, "", "")

	d.UnregisterScript("s1")
	d.RegisterScript("s1", "c1") // re-register so DispatchListen's container lookup still finds it absent from listens

	d.DispatchListen("c1", 0, "speaker", "", "hi")
	require.Empty(t, delivered)
}

func TestListenRemoveIsIdempotent(t *testing.T) {
	t.Parallel()
	d := New(alwaysPlaced, func(string, protocol.Event) {})
	handle := d.ListenRegister("s1", 0, "", "")
	d.ListenRemove(handle)
	require.NotPanics(t, func() { d.ListenRemove(handle) })
}

func TestDispatchListenFiltersByChannelAndName(t *testing.T) {
	t.Parallel()

	var delivered []string
	d := New(alwaysPlaced, func(scriptID string, ev protocol.Event) { delivered = append(delivered, scriptID) })
	d.RegisterScript("s1", "c1")
	d.ListenRegister("s1", 0, "Bob", "")

	d.DispatchListen("c1", 0, "Alice", "", "hi")
	require.Empty(t, delivered)

	d.DispatchListen("c1", 0, "Bob", "", "hi")
	require.Equal(t, []string{"s1"}, delivered)
}
